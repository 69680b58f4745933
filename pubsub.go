package zremote

import (
	"context"
	"sync"

	"github.com/hunyxv/utils/spinlock"
	"github.com/pkg/errors"
)

// Sample 订阅者收到的数据
type Sample struct {
	KeyExpr           string
	Payload           ZBytes
	Kind              SampleKind
	Encoding          string
	Timestamp         string
	CongestionControl CongestionControl
	Priority          Priority
	Express           bool
	Attachment        ZBytes
}

func sampleFromWS(ws *SampleWS) Sample {
	s := Sample{
		KeyExpr:           ws.KeyExpr,
		Payload:           ws.Value,
		Kind:              ws.Kind,
		Encoding:          ws.Encoding,
		CongestionControl: ws.CongestionControl,
		Priority:          ws.Priority,
		Express:           ws.Express,
		Attachment:        ws.Attachment,
	}
	if ws.Timestamp != nil {
		s.Timestamp = *ws.Timestamp
	}
	return s
}

// handle 各种声明句柄共有的部分
type handle struct {
	session    *Session
	id         string
	keyExpr    string
	lock       sync.Locker
	undeclared bool
}

func newHandle(s *Session, keyExpr string) handle {
	return handle{
		session: s,
		id:      NewID(),
		keyExpr: keyExpr,
		lock:    spinlock.NewSpinLock(),
	}
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) KeyExpr() string {
	return h.keyExpr
}

// markUndeclared 只有第一次调用返回 true
func (h *handle) markUndeclared() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.undeclared {
		return false
	}
	h.undeclared = true
	return true
}

func (h *handle) isUndeclared() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.undeclared
}

// undeclare 注销本地注册并通知服务端，会话已关闭时只做本地清理
func (h *handle) undeclare(ctx context.Context, op string, msg ControlMsg) (err error) {
	if !h.markUndeclared() {
		return nil
	}
	_, span := h.session.startSpan(ctx, op, h.keyExpr, h.id)
	defer func() { endSpan(span, err) }()

	if e, ok := h.session.reg.unregister(h.id); ok {
		e.close(reasonEndOfStream)
	}
	if err = h.session.send(msg); errors.Is(err, ErrSessionClosed) {
		err = nil
	}
	return err
}

// ================================ subscriber ================================

type Subscriber struct {
	handle
	consumer consumer[Sample]
}

func (sub *Subscriber) deliver(msg DataMsg) error {
	m, ok := msg.(*SampleMsg)
	if !ok {
		return errors.Errorf("subscriber %s cannot accept %T", sub.id, msg)
	}
	return pushed(sub.consumer.push(sampleFromWS(&m.Sample)))
}

func (sub *Subscriber) close(reason closeReason) {
	sub.consumer.close(reason)
}

// Recv 阻塞直到收到 sample；订阅结束返回 ErrEndOfStream，连接断开返回 ErrDisconnected
//  回调形式的订阅者返回 ErrCallbackConsumer
func (sub *Subscriber) Recv(ctx context.Context) (Sample, error) {
	return sub.consumer.recv(ctx)
}

// Undeclare 取消订阅，可重复调用
func (sub *Subscriber) Undeclare(ctx context.Context) error {
	return sub.undeclare(ctx, "undeclare_subscriber", &UndeclareSubscriberMsg{ID: sub.id})
}

// ================================ publisher ================================

type Publisher struct {
	handle
	encoding          string
	congestionControl CongestionControl
	priority          Priority
	express           bool
}

// deliver publisher 不接收数据
func (p *Publisher) deliver(msg DataMsg) error {
	return errors.Errorf("publisher %s cannot accept %T", p.id, msg)
}

func (p *Publisher) close(closeReason) {}

func (p *Publisher) Encoding() string {
	return p.encoding
}

// Put 发布数据，可通过 WithEncoding/WithAttachment 覆盖本次的编码和附件
//  Undeclare 之后返回 ErrUndeclared
func (p *Publisher) Put(ctx context.Context, payload []byte, opts ...OpOption) (err error) {
	if p.isUndeclared() {
		return ErrUndeclared
	}
	o := newOpOptions(opts)
	_, span := p.session.startSpan(ctx, "publisher_put", p.keyExpr, p.id)
	defer func() { endSpan(span, err) }()

	msg := &PublisherPutMsg{
		ID:         p.id,
		Payload:    NewZBytes(payload),
		Attachment: o.attachment,
		Encoding:   o.encoding,
	}
	return p.session.send(msg)
}

// Delete 在发布者的 key expr 上发出 delete，使用发布者的 QoS
func (p *Publisher) Delete(ctx context.Context, opts ...OpOption) (err error) {
	if p.isUndeclared() {
		return ErrUndeclared
	}
	o := newOpOptions(opts)
	_, span := p.session.startSpan(ctx, "publisher_delete", p.keyExpr, p.id)
	defer func() { endSpan(span, err) }()

	msg := &DeleteMsg{
		KeyExpr:           p.keyExpr,
		CongestionControl: ptr(p.congestionControl),
		Priority:          ptr(p.priority),
		Express:           ptr(p.express),
		Attachment:        o.attachment,
	}
	return p.session.send(msg)
}

// Undeclare 注销发布者，可重复调用
func (p *Publisher) Undeclare(ctx context.Context) error {
	return p.undeclare(ctx, "undeclare_publisher", &UndeclarePublisherMsg{ID: p.id})
}
