package zremote

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Encode 将消息编码为一个 JSON 文本帧
func Encode(msg Message) ([]byte, error) {
	var env map[string]any
	switch m := msg.(type) {
	case *SessionMsg:
		env = map[string]any{"Session": m.ID}
	case ControlMsg:
		v, err := encodeControl(m)
		if err != nil {
			return nil, err
		}
		env = map[string]any{"Control": v}
	case DataMsg:
		v, err := encodeData(m)
		if err != nil {
			return nil, err
		}
		env = map[string]any{"Data": v}
	default:
		return nil, errors.Errorf("zremote: cannot encode %T", msg)
	}
	return json.Marshal(env)
}

func encodeControl(msg ControlMsg) (any, error) {
	switch m := msg.(type) {
	case *OpenSessionMsg:
		return "OpenSession", nil
	case *CloseSessionMsg:
		return "CloseSession", nil
	case *SessionReplyMsg:
		return variant("Session", m.ID), nil
	case *GetMsg:
		return variant("Get", m), nil
	case *GetFinishedMsg:
		return variant("GetFinished", m), nil
	case *PutMsg:
		return variant("Put", m), nil
	case *DeleteMsg:
		return variant("Delete", m), nil
	case *DeclareSubscriberMsg:
		return variant("DeclareSubscriber", m), nil
	case *SubscriberAckMsg:
		return variant("Subscriber", m.ID), nil
	case *UndeclareSubscriberMsg:
		return variant("UndeclareSubscriber", m.ID), nil
	case *DeclarePublisherMsg:
		return variant("DeclarePublisher", m), nil
	case *UndeclarePublisherMsg:
		return variant("UndeclarePublisher", m.ID), nil
	case *DeclareQueryableMsg:
		return variant("DeclareQueryable", m), nil
	case *UndeclareQueryableMsg:
		return variant("UndeclareQueryable", m.ID), nil
	}
	return nil, errors.Errorf("zremote: cannot encode control %T", msg)
}

func encodeData(msg DataMsg) (any, error) {
	switch m := msg.(type) {
	case *PublisherPutMsg:
		return variant("PublisherPut", m), nil
	case *SampleMsg:
		return variant("Sample", []any{m.Sample, m.SubscriberID}), nil
	case *GetReplyMsg:
		return variant("GetReply", m), nil
	case *QueryMsg:
		return variant("Queryable", variant("Query", m)), nil
	case *QueryReplyMsg:
		return variant("Queryable", variant("Reply", m)), nil
	}
	return nil, errors.Errorf("zremote: cannot encode data %T", msg)
}

func variant(tag string, body any) map[string]any {
	return map[string]any{tag: body}
}

// Decode 解码一帧，任何无法识别的结构都返回 *DecodeError
func Decode(frame []byte) (Message, error) {
	tag, body, err := splitVariant(frame)
	if err != nil {
		return nil, decodeErr(frame, "%v", err)
	}
	if body == nil {
		return nil, decodeErr(frame, "unexpected unit variant %q", tag)
	}

	var msg Message
	switch tag {
	case "Session":
		var id string
		if id, err = sessionID(body); err == nil {
			msg = &SessionMsg{ID: id}
		}
	case "Control":
		msg, err = decodeControl(body)
	case "Data":
		msg, err = decodeData(body)
	default:
		err = errors.Errorf("unknown tag %q", tag)
	}
	if err != nil {
		return nil, decodeErr(frame, "%v", err)
	}
	return msg, nil
}

func decodeControl(raw json.RawMessage) (ControlMsg, error) {
	tag, body, err := splitVariant(raw)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "OpenSession":
		return &OpenSessionMsg{}, nil
	case "CloseSession":
		return &CloseSessionMsg{}, nil
	}
	if body == nil {
		return nil, errors.Errorf("unknown control %q", tag)
	}

	var id string
	switch tag {
	case "Session":
		id, err = sessionID(body)
		return &SessionReplyMsg{ID: id}, err
	case "Subscriber":
		err = json.Unmarshal(body, &id)
		return &SubscriberAckMsg{ID: id}, err
	case "UndeclareSubscriber":
		err = json.Unmarshal(body, &id)
		return &UndeclareSubscriberMsg{ID: id}, err
	case "UndeclarePublisher":
		err = json.Unmarshal(body, &id)
		return &UndeclarePublisherMsg{ID: id}, err
	case "UndeclareQueryable":
		err = json.Unmarshal(body, &id)
		return &UndeclareQueryableMsg{ID: id}, err
	case "Get":
		m := new(GetMsg)
		return m, unmarshalBody(body, m)
	case "GetFinished":
		m := new(GetFinishedMsg)
		return m, unmarshalBody(body, m)
	case "Put":
		m := new(PutMsg)
		return m, unmarshalBody(body, m)
	case "Delete":
		m := new(DeleteMsg)
		return m, unmarshalBody(body, m)
	case "DeclareSubscriber":
		m := new(DeclareSubscriberMsg)
		return m, unmarshalBody(body, m)
	case "DeclarePublisher":
		m := new(DeclarePublisherMsg)
		return m, unmarshalBody(body, m)
	case "DeclareQueryable":
		m := new(DeclareQueryableMsg)
		return m, unmarshalBody(body, m)
	}
	return nil, errors.Errorf("unknown control %q", tag)
}

func decodeData(raw json.RawMessage) (DataMsg, error) {
	tag, body, err := splitVariant(raw)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.Errorf("unknown data %q", tag)
	}

	switch tag {
	case "PublisherPut":
		m := new(PublisherPutMsg)
		if parts, ok := tuple(body); ok {
			// 早期客户端使用的元组形式 [payload, id]
			if len(parts) != 2 {
				return nil, errors.Errorf("publisher put expects 2 fields, got %d", len(parts))
			}
			if err = json.Unmarshal(parts[0], &m.Payload); err != nil {
				return nil, err
			}
			return m, json.Unmarshal(parts[1], &m.ID)
		}
		return m, unmarshalBody(body, m)
	case "Sample":
		var parts []json.RawMessage
		if err = json.Unmarshal(body, &parts); err != nil {
			return nil, err
		}
		if len(parts) != 2 {
			return nil, errors.Errorf("sample expects 2 fields, got %d", len(parts))
		}
		m := new(SampleMsg)
		if err = json.Unmarshal(parts[0], &m.Sample); err != nil {
			return nil, err
		}
		return m, json.Unmarshal(parts[1], &m.SubscriberID)
	case "GetReply":
		m := new(GetReplyMsg)
		return m, unmarshalBody(body, m)
	case "Queryable":
		qtag, qbody, err := splitVariant(body)
		if err != nil {
			return nil, err
		}
		switch qtag {
		case "Query":
			m := new(QueryMsg)
			return m, unmarshalBody(qbody, m)
		case "Reply":
			m := new(QueryReplyMsg)
			return m, unmarshalBody(qbody, m)
		}
		return nil, errors.Errorf("unknown queryable message %q", qtag)
	}
	return nil, errors.Errorf("unknown data %q", tag)
}

// splitVariant 拆分外部标签形式的枚举: "Tag" 或 {"Tag": body}
//  unit variant 返回的 body 为 nil
func splitVariant(raw []byte) (string, json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil, errors.New("empty value")
	}
	if raw[0] == '"' {
		var tag string
		if err := json.Unmarshal(raw, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, errors.Errorf("expected exactly one tag, got %d", len(obj))
	}
	for tag, body := range obj {
		if body == nil {
			body = json.RawMessage("null")
		}
		return tag, body, nil
	}
	return "", nil, nil // unreachable
}

// sessionID 服务端分配的会话 id 不能为空
func sessionID(body json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(body, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("empty session id")
	}
	return id, nil
}

func tuple(body json.RawMessage) ([]json.RawMessage, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, false
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

func unmarshalBody(body json.RawMessage, v any) error {
	if body == nil {
		return errors.New("missing body")
	}
	return json.Unmarshal(body, v)
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
