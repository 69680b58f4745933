package zremote

// 以下枚举在线路上都是普通整数，取值与 remote api 插件保持一致

// CongestionControl 拥塞控制
type CongestionControl uint8

const (
	CongestionDrop  CongestionControl = 0
	CongestionBlock CongestionControl = 1
)

// Priority 消息优先级
type Priority uint8

const (
	PriorityRealTime        Priority = 1
	PriorityInteractiveHigh Priority = 2
	PriorityInteractiveLow  Priority = 3
	PriorityDataHigh        Priority = 4
	PriorityData            Priority = 5
	PriorityDataLow         Priority = 6
	PriorityBackground      Priority = 7
)

// Reliability 可靠性
type Reliability uint8

const (
	Reliable   Reliability = 0
	BestEffort Reliability = 1
)

// ConsolidationMode 查询应答的合并策略（由远端执行）
type ConsolidationMode uint8

const (
	ConsolidationAuto      ConsolidationMode = 0
	ConsolidationNone      ConsolidationMode = 1
	ConsolidationMonotonic ConsolidationMode = 2
	ConsolidationLatest    ConsolidationMode = 3
)

// SampleKind sample 类型
type SampleKind uint8

const (
	SampleKindPut SampleKind = iota
	SampleKindDelete
)

func (k SampleKind) String() string {
	if k == SampleKindDelete {
		return "Delete"
	}
	return "Put"
}

// 常用 encoding
const (
	EncodingBytes   = "zenoh/bytes"
	EncodingString  = "zenoh/string"
	EncodingJSON    = "application/json"
	EncodingMsgpack = "application/msgpack"
)

const defaultChannelSize = 256 // 与 zenoh 内部 API_DATA_RECEPTION_CHANNEL_SIZE 一致
