package zremote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ZBytes 线路上的二进制负载
//  JSON 编码为 base64 字符串，nil 编码为 null（表示字段缺省）
type ZBytes []byte

// NewZBytes 总是返回非 nil 的 ZBytes
func NewZBytes(b []byte) ZBytes {
	if b == nil {
		return ZBytes{}
	}
	return ZBytes(b)
}

// ZBytesFromString 字符串负载
func ZBytesFromString(s string) ZBytes {
	return ZBytes(s)
}

// String 按 utf-8 解释
func (z ZBytes) String() string {
	return string(z)
}

func (z ZBytes) MarshalJSON() ([]byte, error) {
	if z == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(z))
}

// UnmarshalJSON 支持 base64 字符串、数字数组和 null
func (z *ZBytes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || isNull(b) {
		*z = nil
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return errors.Wrap(err, "payload is not base64")
		}
		*z = NewZBytes(raw)
	case '[':
		var nums []int
		if err := json.Unmarshal(b, &nums); err != nil {
			return err
		}
		raw := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return errors.Errorf("payload byte %d out of range", n)
			}
			raw[i] = byte(n)
		}
		*z = raw
	default:
		return errors.Errorf("unexpected payload %s", b)
	}
	return nil
}

// Serialize 使用 msgpack 序列化任意值，配合 EncodingMsgpack 使用
func Serialize(v any) (ZBytes, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "zremote: serialize")
	}
	return NewZBytes(raw), nil
}

// Deserialize 反序列化 Serialize 生成的负载
func Deserialize(z ZBytes, v any) error {
	if err := msgpack.Unmarshal(z, v); err != nil {
		return errors.Wrap(err, "zremote: deserialize")
	}
	return nil
}
