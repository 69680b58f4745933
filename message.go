package zremote

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Message 线路上的顶层消息: {"Session": id} | {"Control": ...} | {"Data": ...}
type Message interface {
	isMessage()
}

// ControlMsg 会话管理、声明/注销类消息
type ControlMsg interface {
	Message
	isControl()
}

// DataMsg 携带数据的消息，除 PublisherPut 外都带有关联 id
type DataMsg interface {
	Message
	isData()
}

// SessionMsg 顶层 {"Session": id}
type SessionMsg struct {
	ID string
}

func (*SessionMsg) isMessage() {}

// ================================ control ================================

type (
	OpenSessionMsg  struct{}
	CloseSessionMsg struct{}

	// SessionReplyMsg 服务端分配的会话 id
	SessionReplyMsg struct {
		ID string
	}

	GetMsg struct {
		KeyExpr           string             `json:"key_expr"`
		Parameters        *string            `json:"parameters"`
		Handler           HandlerChannel     `json:"handler"`
		ID                string             `json:"id"`
		Consolidation     *ConsolidationMode `json:"consolidation"`
		CongestionControl *CongestionControl `json:"congestion_control"`
		Priority          *Priority          `json:"priority"`
		Express           *bool              `json:"express"`
		Encoding          *string            `json:"encoding"`
		Payload           ZBytes             `json:"payload"`
		Attachment        ZBytes             `json:"attachment"`
	}

	GetFinishedMsg struct {
		ID string `json:"id"`
	}

	PutMsg struct {
		KeyExpr           string             `json:"key_expr"`
		Payload           ZBytes             `json:"payload"`
		Encoding          *string            `json:"encoding"`
		CongestionControl *CongestionControl `json:"congestion_control"`
		Priority          *Priority          `json:"priority"`
		Express           *bool              `json:"express"`
		Attachment        ZBytes             `json:"attachment"`
	}

	DeleteMsg struct {
		KeyExpr           string             `json:"key_expr"`
		CongestionControl *CongestionControl `json:"congestion_control"`
		Priority          *Priority          `json:"priority"`
		Express           *bool              `json:"express"`
		Attachment        ZBytes             `json:"attachment"`
	}

	DeclareSubscriberMsg struct {
		KeyExpr string         `json:"key_expr"`
		Handler HandlerChannel `json:"handler"`
		ID      string         `json:"id"`
	}

	// SubscriberAckMsg 服务端对 DeclareSubscriber 的确认
	SubscriberAckMsg struct {
		ID string
	}

	UndeclareSubscriberMsg struct {
		ID string
	}

	DeclarePublisherMsg struct {
		KeyExpr           string             `json:"key_expr"`
		Encoding          *string            `json:"encoding"`
		CongestionControl *CongestionControl `json:"congestion_control"`
		Priority          *Priority          `json:"priority"`
		Reliability       *Reliability       `json:"reliability"`
		Express           *bool              `json:"express"`
		ID                string             `json:"id"`
	}

	UndeclarePublisherMsg struct {
		ID string
	}

	DeclareQueryableMsg struct {
		KeyExpr  string `json:"key_expr"`
		ID       string `json:"id"`
		Complete bool   `json:"complete"`
	}

	UndeclareQueryableMsg struct {
		ID string
	}
)

func (*OpenSessionMsg) isMessage()         {}
func (*CloseSessionMsg) isMessage()        {}
func (*SessionReplyMsg) isMessage()        {}
func (*GetMsg) isMessage()                 {}
func (*GetFinishedMsg) isMessage()         {}
func (*PutMsg) isMessage()                 {}
func (*DeleteMsg) isMessage()              {}
func (*DeclareSubscriberMsg) isMessage()   {}
func (*SubscriberAckMsg) isMessage()       {}
func (*UndeclareSubscriberMsg) isMessage() {}
func (*DeclarePublisherMsg) isMessage()    {}
func (*UndeclarePublisherMsg) isMessage()  {}
func (*DeclareQueryableMsg) isMessage()    {}
func (*UndeclareQueryableMsg) isMessage()  {}

func (*OpenSessionMsg) isControl()         {}
func (*CloseSessionMsg) isControl()        {}
func (*SessionReplyMsg) isControl()        {}
func (*GetMsg) isControl()                 {}
func (*GetFinishedMsg) isControl()         {}
func (*PutMsg) isControl()                 {}
func (*DeleteMsg) isControl()              {}
func (*DeclareSubscriberMsg) isControl()   {}
func (*SubscriberAckMsg) isControl()       {}
func (*UndeclareSubscriberMsg) isControl() {}
func (*DeclarePublisherMsg) isControl()    {}
func (*UndeclarePublisherMsg) isControl()  {}
func (*DeclareQueryableMsg) isControl()    {}
func (*UndeclareQueryableMsg) isControl()  {}

// ================================ data ================================

type (
	// PublisherPutMsg 客户端 -> 服务端
	PublisherPutMsg struct {
		ID         string  `json:"id"`
		Payload    ZBytes  `json:"payload"`
		Attachment ZBytes  `json:"attachment"`
		Encoding   *string `json:"encoding"`
	}

	// SampleMsg 服务端 -> 客户端，投递给订阅者
	SampleMsg struct {
		Sample       SampleWS
		SubscriberID string
	}

	// GetReplyMsg 服务端 -> 客户端，get 的应答
	GetReplyMsg struct {
		QueryID string      `json:"query_uuid"`
		Result  ReplyResult `json:"result"`
	}

	// QueryMsg 服务端 -> 客户端，投递给 queryable
	QueryMsg struct {
		QueryableID string  `json:"queryable_uuid"`
		Query       QueryWS `json:"query"`
	}

	// QueryReplyMsg 客户端 -> 服务端，queryable 对某个 query 的应答
	QueryReplyMsg struct {
		Reply QueryReplyWS `json:"reply"`
	}
)

func (*PublisherPutMsg) isMessage() {}
func (*SampleMsg) isMessage()       {}
func (*GetReplyMsg) isMessage()     {}
func (*QueryMsg) isMessage()        {}
func (*QueryReplyMsg) isMessage()   {}

func (*PublisherPutMsg) isData() {}
func (*SampleMsg) isData()       {}
func (*GetReplyMsg) isData()     {}
func (*QueryMsg) isData()        {}
func (*QueryReplyMsg) isData()   {}

// SampleWS 线路上的 sample
type SampleWS struct {
	KeyExpr           string            `json:"key_expr"`
	Value             ZBytes            `json:"value"`
	Kind              SampleKind        `json:"kind"`
	Encoding          string            `json:"encoding"`
	Timestamp         *string           `json:"timestamp"`
	CongestionControl CongestionControl `json:"congestion_control"`
	Priority          Priority          `json:"priority"`
	Express           bool              `json:"express"`
	Attachment        ZBytes            `json:"attachement"`
}

// ReplyErrorWS get 得到的错误应答
type ReplyErrorWS struct {
	Payload  ZBytes `json:"payload"`
	Encoding string `json:"encoding"`
}

// ReplyResult {"Ok": sample} | {"Err": error}
//  两者都为空或都不为空时由 Receiver 判定为 MalformedReply
type ReplyResult struct {
	Ok  *SampleWS
	Err *ReplyErrorWS
}

func (r ReplyResult) MarshalJSON() ([]byte, error) {
	if r.Ok == nil && r.Err == nil {
		return []byte("null"), nil
	}
	m := make(map[string]any, 2)
	if r.Ok != nil {
		m["Ok"] = r.Ok
	}
	if r.Err != nil {
		m["Err"] = r.Err
	}
	return json.Marshal(m)
}

func (r *ReplyResult) UnmarshalJSON(b []byte) error {
	*r = ReplyResult{}
	if isNull(b) {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if raw, ok := m["Ok"]; ok && !isNull(raw) {
		r.Ok = new(SampleWS)
		if err := json.Unmarshal(raw, r.Ok); err != nil {
			return err
		}
	}
	if raw, ok := m["Err"]; ok && !isNull(raw) {
		r.Err = new(ReplyErrorWS)
		if err := json.Unmarshal(raw, r.Err); err != nil {
			return err
		}
	}
	return nil
}

// QueryWS 线路上的 query
type QueryWS struct {
	QueryID    string  `json:"query_uuid"`
	KeyExpr    string  `json:"key_expr"`
	Parameters string  `json:"parameters"`
	Encoding   *string `json:"encoding"`
	Attachment ZBytes  `json:"attachment"`
	Payload    ZBytes  `json:"payload"`
}

// QueryReplyWS queryable 的应答
type QueryReplyWS struct {
	QueryID string            `json:"query_uuid"`
	Result  QueryReplyVariant `json:"result"`
}

// QueryReplyVariant Reply | ReplyErr | ReplyDelete
type QueryReplyVariant interface {
	isQueryReply()
}

type (
	QueryReplySample struct {
		KeyExpr string `json:"key_expr"`
		Payload ZBytes `json:"payload"`
	}
	QueryReplyErr struct {
		Payload ZBytes `json:"payload"`
	}
	QueryReplyDelete struct {
		KeyExpr string `json:"key_expr"`
	}
)

func (*QueryReplySample) isQueryReply() {}
func (*QueryReplyErr) isQueryReply()    {}
func (*QueryReplyDelete) isQueryReply() {}

func (r QueryReplyWS) MarshalJSON() ([]byte, error) {
	var result any
	switch v := r.Result.(type) {
	case *QueryReplySample:
		result = map[string]any{"Reply": v}
	case *QueryReplyErr:
		result = map[string]any{"ReplyErr": v}
	case *QueryReplyDelete:
		result = map[string]any{"ReplyDelete": v}
	default:
		return nil, errors.Errorf("zremote: unknown query reply variant %T", r.Result)
	}
	return json.Marshal(struct {
		QueryID string `json:"query_uuid"`
		Result  any    `json:"result"`
	}{r.QueryID, result})
}

func (r *QueryReplyWS) UnmarshalJSON(b []byte) error {
	var raw struct {
		QueryID string          `json:"query_uuid"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tag, body, err := splitVariant(raw.Result)
	if err != nil {
		return err
	}
	r.QueryID = raw.QueryID
	switch tag {
	case "Reply":
		v := new(QueryReplySample)
		r.Result, err = v, unmarshalBody(body, v)
	case "ReplyErr":
		v := new(QueryReplyErr)
		r.Result, err = v, unmarshalBody(body, v)
	case "ReplyDelete":
		v := new(QueryReplyDelete)
		r.Result, err = v, unmarshalBody(body, v)
	default:
		return errors.Errorf("unknown query reply tag %q", tag)
	}
	return err
}

// HandlerKind 服务端为订阅/查询创建的通道类型
type HandlerKind int

const (
	HandlerFifo HandlerKind = iota
	HandlerRing
)

// HandlerChannel {"Fifo": n} | {"Ring": n}
//  本地的队列消费者使用同样的类型和容量，Fifo(0) 表示本地无界
type HandlerChannel struct {
	Kind HandlerKind
	Size int
}

// FifoChannel 有界 FIFO，本地队列满了丢弃新到的数据
func FifoChannel(size int) HandlerChannel {
	return HandlerChannel{Kind: HandlerFifo, Size: size}
}

// RingChannel 有界环形缓冲，满了丢弃最旧的
func RingChannel(size int) HandlerChannel {
	return HandlerChannel{Kind: HandlerRing, Size: size}
}

func (h HandlerChannel) MarshalJSON() ([]byte, error) {
	tag := "Fifo"
	if h.Kind == HandlerRing {
		tag = "Ring"
	}
	return json.Marshal(map[string]int{tag: h.Size})
}

func (h *HandlerChannel) UnmarshalJSON(b []byte) error {
	tag, body, err := splitVariant(b)
	if err != nil {
		return err
	}
	switch tag {
	case "Fifo":
		h.Kind = HandlerFifo
	case "Ring":
		h.Kind = HandlerRing
	default:
		return errors.Errorf("unknown handler tag %q", tag)
	}
	h.Size = 0
	return unmarshalBody(body, &h.Size)
}

func (k SampleKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON 兼容 "Put"/"Delete" 和 0/1 两种写法
func (k *SampleKind) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*k = SampleKindPut
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "Put":
			*k = SampleKindPut
		case "Delete":
			*k = SampleKindDelete
		default:
			return errors.Errorf("unknown sample kind %q", s)
		}
		return nil
	}
	var n uint8
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if n > uint8(SampleKindDelete) {
		return errors.Errorf("unknown sample kind %d", n)
	}
	*k = SampleKind(n)
	return nil
}
