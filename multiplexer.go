package zremote

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

type sessionState int32

const (
	stateInit sessionState = iota
	stateOpening
	stateOpen
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	}
	return "closed"
}

// Session 一个到 remote api 的会话，独占 Channel 和注册表
//  所有入站消息由唯一的 dispatcher 协程解码并分发
type Session struct {
	ch     Channel
	reg    *registry
	opts   *options
	logger Logger
	tracer trace.Tracer
	pool   *ants.Pool

	state atomic.Int32
	id    atomic.Pointer[string]

	opened    chan struct{} // 收到服务端分配的会话 id
	openOnce  sync.Once
	done      chan struct{} // dispatcher 退出
	closeOnce sync.Once
	closeErr  error
}

func newSession(ch Channel, opts *options) (*Session, error) {
	// Submit 不阻塞，池满时返回 ants.ErrPoolOverload
	pool, err := ants.NewPool(opts.WorkPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	s := &Session{
		ch:     ch,
		reg:    newRegistry(),
		opts:   opts,
		logger: opts.Logger,
		tracer: newTracer(opts.TracerProvider),
		pool:   pool,
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
	return s, nil
}

// openWithChannel 在已建立的 Channel 上打开会话：
//  启动 dispatcher，发送 OpenSession，等待 Session 应答
func openWithChannel(ctx context.Context, ch Channel, opts *options) (*Session, error) {
	s, err := newSession(ch, opts)
	if err != nil {
		ch.Close()
		return nil, err
	}
	s.state.Store(int32(stateOpening))
	go s.dispatcher()

	if err := s.send(&OpenSessionMsg{}); err != nil {
		s.shutdown(false)
		return nil, err
	}

	if opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.OpenTimeout)
		defer cancel()
	}
	select {
	case <-s.opened:
		if !s.state.CompareAndSwap(int32(stateOpening), int32(stateOpen)) {
			return nil, ErrSessionClosed
		}
		s.logger.Infof("[zremote]: session %s opened", s.ID())
		return s, nil
	case <-s.done:
		s.shutdown(false)
		return nil, errors.WithMessage(ErrConnection, "channel closed before the session was opened")
	case <-ctx.Done():
		s.shutdown(false)
		return nil, errors.WithMessage(ErrConnection, ctx.Err().Error())
	}
}

// ID 服务端分配的会话 id，打开前为空
func (s *Session) ID() string {
	if id := s.id.Load(); id != nil {
		return *id
	}
	return ""
}

func (s *Session) setID(id string) {
	if old := s.ID(); old != "" && old != id {
		s.logger.Debugf("[zremote]: session id changed %s -> %s", old, id)
	}
	s.id.Store(&id)
	s.openOnce.Do(func() { close(s.opened) })
}

func (s *Session) getState() sessionState {
	return sessionState(s.state.Load())
}

// Done dispatcher 退出（连接断开或会话关闭）后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// send 编码并发送，Channel 保证并发写安全
func (s *Session) send(msg Message) error {
	if s.getState() == stateClosed {
		return ErrSessionClosed
	}
	s.opts.hooks.sending(msg)
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.ch.Send(frame)
}

func (s *Session) dispatcher() {
	defer close(s.done)
	for {
		frame, err := s.ch.Recv()
		if err != nil {
			if s.getState() != stateClosed {
				s.logger.Warnf("[zremote]: connection lost: %v", err)
			}
			s.shutdown(false)
			return
		}

		msg, err := Decode(frame)
		if err != nil {
			s.logger.Warnf("[zremote]: drop frame: %v", err)
			continue
		}
		s.opts.hooks.received(msg)
		s.handle(msg)
	}
}

func (s *Session) handle(msg Message) {
	switch m := msg.(type) {
	case *SessionMsg:
		s.setID(m.ID)
	case *SessionReplyMsg:
		s.setID(m.ID)
	case *GetFinishedMsg:
		if e, ok := s.reg.unregister(m.ID); ok {
			e.close(reasonEndOfStream)
		} else {
			s.logger.Debugf("[zremote]: get %s finished after it was removed", m.ID)
		}
	case *SubscriberAckMsg:
		s.logger.Debugf("[zremote]: subscriber %s declared", m.ID)
	case ControlMsg:
		s.logger.Warnf("[zremote]: unexpected control message %T", m)
	case *SampleMsg:
		s.deliver(m.SubscriberID, m)
	case *GetReplyMsg:
		s.deliver(m.QueryID, m)
	case *QueryMsg:
		s.deliver(m.QueryableID, m)
	default:
		s.logger.Warnf("[zremote]: unexpected message %T", m)
	}
}

func (s *Session) deliver(id string, msg DataMsg) {
	if err := s.reg.dispatch(id, msg); err != nil {
		s.logger.Warnf("[zremote]: drop %T for %s: %v", msg, id, err)
	}
}

// Close 关闭会话，可重复调用
//  不等待 dispatcher 退出，可以在回调中调用
func (s *Session) Close() error {
	return s.shutdown(true)
}

func (s *Session) shutdown(graceful bool) error {
	s.closeOnce.Do(func() {
		if graceful && !s.ch.Closed() {
			if err := s.send(&CloseSessionMsg{}); err != nil {
				s.logger.Debugf("[zremote]: send CloseSession: %v", err)
			}
		}
		s.state.Store(int32(stateClosed))
		s.closeErr = s.ch.Close()
		for _, e := range s.reg.drain() {
			e.close(reasonDisconnected)
		}
		s.pool.Release()
		s.logger.Infof("[zremote]: session %s closed", s.ID())
	})
	return s.closeErr
}

// submit 在会话的协程池中执行
func (s *Session) submit(f func()) error {
	if s.getState() == stateClosed {
		return ErrSessionClosed
	}
	return s.pool.Submit(f)
}
