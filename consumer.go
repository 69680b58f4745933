package zremote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// closeReason 消费者关闭的原因
type closeReason int32

const (
	reasonNone closeReason = iota
	reasonEndOfStream
	reasonDisconnected
)

func (r closeReason) err() error {
	switch r {
	case reasonEndOfStream:
		return ErrEndOfStream
	case reasonDisconnected:
		return ErrDisconnected
	}
	return nil
}

var (
	errConsumerClosed = errors.New("consumer closed")
	errQueueFull      = errors.New("fifo full, newest item dropped")
)

// consumer 每个订阅/查询/queryable 对应一个
//  回调和队列两种实现，二者只能选其一
type consumer[T any] interface {
	// push 由分发协程调用，从不阻塞
	//  已关闭返回 errConsumerClosed，FIFO 已满丢弃 v 并返回 errQueueFull
	push(v T) error
	// recv 阻塞直到有数据、关闭或 ctx 结束
	recv(ctx context.Context) (T, error)
	close(reason closeReason) bool
}

// ================================ callback ================================

type callback[T any] struct {
	fn     func(T) error
	logger Logger
	closed atomic.Bool
}

func newCallback[T any](fn func(T) error, logger Logger) *callback[T] {
	return &callback[T]{fn: fn, logger: logger}
}

func (c *callback[T]) push(v T) error {
	if c.closed.Load() {
		return errConsumerClosed
	}
	defer func() {
		if r := recover(); r != nil {
			err := errors.WithStack(fmt.Errorf("%v", r))
			c.logger.Errorf("[zremote]: callback panic: %+v", err)
		}
	}()
	if err := c.fn(v); err != nil {
		c.logger.Warnf("[zremote]: callback returned error: %v", err)
	}
	return nil
}

func (c *callback[T]) recv(context.Context) (T, error) {
	var zero T
	return zero, ErrCallbackConsumer
}

func (c *callback[T]) close(closeReason) bool {
	return c.closed.CompareAndSwap(false, true)
}

// ================================ queue ================================

type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	ring   bool
	size   int // 0 表示无界
	reason closeReason

	notEmpty chan struct{}
	done     chan struct{}
}

func newQueue[T any](h HandlerChannel) *queue[T] {
	size := h.Size
	if size < 0 {
		size = 0
	}
	ring := h.Kind == HandlerRing
	if ring && size == 0 {
		size = 1
	}
	return &queue[T]{
		ring:     ring,
		size:     size,
		notEmpty: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// push 不阻塞分发协程：FIFO 满了丢弃新到的，Ring 满了丢弃最旧的
func (q *queue[T]) push(v T) error {
	q.mu.Lock()
	if q.reason != reasonNone {
		q.mu.Unlock()
		return errConsumerClosed
	}
	switch {
	case q.size == 0 || len(q.items) < q.size:
		q.items = append(q.items, v)
	case q.ring:
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = v
	default:
		q.mu.Unlock()
		return errQueueFull
	}
	q.mu.Unlock()
	signal(q.notEmpty)
	return nil
}

func (q *queue[T]) recv(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				signal(q.notEmpty)
			}
			return v, nil
		}
		if q.reason != reasonNone {
			reason := q.reason
			q.mu.Unlock()
			return zero, reason.err()
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.notEmpty:
		case <-q.done:
		}
	}
}

func (q *queue[T]) close(reason closeReason) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reason != reasonNone {
		return false
	}
	q.reason = reason
	close(q.done)
	return true
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pushed 已关闭的消费者静默丢弃（注销与分发并发时的正常情况）
func pushed(err error) error {
	if err == errConsumerClosed {
		return nil
	}
	return err
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
