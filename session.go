package zremote

import (
	"context"

	"github.com/pkg/errors"
)

// Put 发布数据，不等待应答
func (s *Session) Put(ctx context.Context, keyExpr string, payload []byte, opts ...OpOption) (err error) {
	if err := checkKeyExpr(keyExpr); err != nil {
		return err
	}
	o := newOpOptions(opts)
	_, span := s.startSpan(ctx, "put", keyExpr, "")
	defer func() { endSpan(span, err) }()

	return s.send(&PutMsg{
		KeyExpr:           keyExpr,
		Payload:           NewZBytes(payload),
		Encoding:          o.encoding,
		CongestionControl: o.congestionControl,
		Priority:          o.priority,
		Express:           o.express,
		Attachment:        o.attachment,
	})
}

// Delete 删除 keyExpr 上的数据，不等待应答
func (s *Session) Delete(ctx context.Context, keyExpr string, opts ...OpOption) (err error) {
	if err := checkKeyExpr(keyExpr); err != nil {
		return err
	}
	o := newOpOptions(opts)
	_, span := s.startSpan(ctx, "delete", keyExpr, "")
	defer func() { endSpan(span, err) }()

	return s.send(&DeleteMsg{
		KeyExpr:           keyExpr,
		CongestionControl: o.congestionControl,
		Priority:          o.priority,
		Express:           o.express,
		Attachment:        o.attachment,
	})
}

// Get 发起查询，selector 形如 <KeyExpr>?<Parameters>
//  应答通过返回的 Receiver 读取，get 本身没有超时，需要时由调用方控制 Recv 的 ctx
func (s *Session) Get(ctx context.Context, selector string, opts ...OpOption) (*Receiver, error) {
	return s.get(ctx, selector, newOpOptions(opts), nil)
}

// get start 在发送 Get 之前执行，失败时不发送
func (s *Session) get(ctx context.Context, selector string, o *opOptions, start func(*Receiver) error) (rcv *Receiver, err error) {
	keyExpr, params, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	rcv = &Receiver{
		handle:   newHandle(s, keyExpr),
		consumer: newQueue[ReplyResult](o.handler),
	}
	_, span := s.startSpan(ctx, "get", keyExpr, rcv.id)
	defer func() { endSpan(span, err) }()

	if start != nil {
		if err = start(rcv); err != nil {
			return nil, err
		}
	}
	msg := &GetMsg{
		KeyExpr:           keyExpr,
		Parameters:        params,
		Handler:           o.handler,
		ID:                rcv.id,
		Consolidation:     o.consolidation,
		CongestionControl: o.congestionControl,
		Priority:          o.priority,
		Express:           o.express,
		Encoding:          o.encoding,
		Payload:           o.payload,
		Attachment:        o.attachment,
	}
	if err = s.declare(rcv.id, rcv, msg); err != nil {
		return nil, err
	}
	return rcv, nil
}

// GetFunc 发起查询，在会话的协程池中读取应答并调用 fn，直到查询结束或连接断开
//  协程池满时返回 ants.ErrPoolOverload 且不发送 Get；不合法的应答记录日志后跳过
func (s *Session) GetFunc(ctx context.Context, selector string, fn func(Reply) error, opts ...OpOption) error {
	drainCtx := context.WithoutCancel(ctx)
	drain := func(rcv *Receiver) {
		for {
			reply, err := rcv.Recv(drainCtx)
			switch {
			case err == nil:
				if err := fn(reply); err != nil {
					s.logger.Warnf("[zremote]: get %s callback returned error: %v", rcv.id, err)
				}
			case errors.Is(err, ErrMalformedReply):
				s.logger.Warnf("[zremote]: get %s: %v", rcv.id, err)
			case errors.Is(err, ErrEndOfStream):
				return
			default:
				s.logger.Debugf("[zremote]: get %s ended: %v", rcv.id, err)
				return
			}
		}
	}
	_, err := s.get(ctx, selector, newOpOptions(opts), func(rcv *Receiver) error {
		if err := s.submit(func() { drain(rcv) }); err != nil {
			return errors.WithMessage(err, "zremote: submit get drain")
		}
		return nil
	})
	return err
}

// DeclareSubscriber 声明订阅者，通过 Subscriber.Recv 读取数据
func (s *Session) DeclareSubscriber(ctx context.Context, keyExpr string, opts ...OpOption) (*Subscriber, error) {
	o := newOpOptions(opts)
	return s.declareSubscriber(ctx, keyExpr, newQueue[Sample](o.handler), o)
}

// DeclareSubscriberFunc 声明订阅者，每个 sample 在分发协程中调用 fn
//  fn 不应长时间阻塞；返回的错误和 panic 只记录日志
func (s *Session) DeclareSubscriberFunc(ctx context.Context, keyExpr string, fn func(Sample) error, opts ...OpOption) (*Subscriber, error) {
	o := newOpOptions(opts)
	return s.declareSubscriber(ctx, keyExpr, newCallback(fn, s.logger), o)
}

func (s *Session) declareSubscriber(ctx context.Context, keyExpr string, c consumer[Sample], o *opOptions) (sub *Subscriber, err error) {
	if err := checkKeyExpr(keyExpr); err != nil {
		return nil, err
	}
	sub = &Subscriber{handle: newHandle(s, keyExpr), consumer: c}
	_, span := s.startSpan(ctx, "declare_subscriber", keyExpr, sub.id)
	defer func() { endSpan(span, err) }()

	msg := &DeclareSubscriberMsg{KeyExpr: keyExpr, Handler: o.handler, ID: sub.id}
	if err = s.declare(sub.id, sub, msg); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeclarePublisher 声明发布者
//  默认 congestion control Drop、priority Data、express false、encoding zenoh/bytes
func (s *Session) DeclarePublisher(ctx context.Context, keyExpr string, opts ...OpOption) (pub *Publisher, err error) {
	if err := checkKeyExpr(keyExpr); err != nil {
		return nil, err
	}
	o := newOpOptions(opts)
	pub = &Publisher{
		handle:            newHandle(s, keyExpr),
		encoding:          EncodingBytes,
		congestionControl: CongestionDrop,
		priority:          PriorityData,
	}
	if o.encoding != nil {
		pub.encoding = *o.encoding
	}
	if o.congestionControl != nil {
		pub.congestionControl = *o.congestionControl
	}
	if o.priority != nil {
		pub.priority = *o.priority
	}
	if o.express != nil {
		pub.express = *o.express
	}
	_, span := s.startSpan(ctx, "declare_publisher", keyExpr, pub.id)
	defer func() { endSpan(span, err) }()

	msg := &DeclarePublisherMsg{
		KeyExpr:           keyExpr,
		Encoding:          ptr(pub.encoding),
		CongestionControl: ptr(pub.congestionControl),
		Priority:          ptr(pub.priority),
		Reliability:       o.reliability,
		Express:           ptr(pub.express),
		ID:                pub.id,
	}
	if err = s.declare(pub.id, pub, msg); err != nil {
		return nil, err
	}
	return pub, nil
}

// DeclareQueryable 声明 queryable，通过 Queryable.Recv 读取 query
func (s *Session) DeclareQueryable(ctx context.Context, keyExpr string, complete bool, opts ...OpOption) (*Queryable, error) {
	o := newOpOptions(opts)
	return s.declareQueryable(ctx, keyExpr, complete, newQueue[*Query](o.handler))
}

// DeclareQueryableFunc 声明 queryable，每个 query 在分发协程中调用 fn
func (s *Session) DeclareQueryableFunc(ctx context.Context, keyExpr string, complete bool, fn func(*Query) error) (*Queryable, error) {
	return s.declareQueryable(ctx, keyExpr, complete, newCallback(fn, s.logger))
}

func (s *Session) declareQueryable(ctx context.Context, keyExpr string, complete bool, c consumer[*Query]) (qa *Queryable, err error) {
	if err := checkKeyExpr(keyExpr); err != nil {
		return nil, err
	}
	qa = &Queryable{handle: newHandle(s, keyExpr), complete: complete, consumer: c}
	_, span := s.startSpan(ctx, "declare_queryable", keyExpr, qa.id)
	defer func() { endSpan(span, err) }()

	msg := &DeclareQueryableMsg{KeyExpr: keyExpr, ID: qa.id, Complete: complete}
	if err = s.declare(qa.id, qa, msg); err != nil {
		return nil, err
	}
	return qa, nil
}

// declare 先注册再发送，保证对端的第一条数据到达时注册已完成
//  不等待对端确认
func (s *Session) declare(id string, e entry, msg ControlMsg) error {
	if err := s.reg.register(id, e); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			s.logger.Errorf("[zremote]: %v", err)
		}
		return err
	}
	if err := s.send(msg); err != nil {
		s.reg.unregister(id)
		e.close(reasonDisconnected)
		return err
	}
	return nil
}
