package zremote

import (
	"sync"

	"github.com/pkg/errors"
)

// entry 注册表中的一项，持有对应的消费者
type entry interface {
	// deliver 投递一条数据消息，消息类型不匹配时返回错误
	deliver(msg DataMsg) error
	close(reason closeReason)
}

// registry 关联 id -> entry
//  查找在锁内，投递在锁外，回调中可以 undeclare 或 declare
type registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]entry)}
}

func (r *registry) register(id string, e entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSessionClosed
	}
	if _, ok := r.entries[id]; ok {
		return errors.WithMessagef(ErrDuplicateID, "id %s", id)
	}
	r.entries[id] = e
	return nil
}

// unregister id 不存在时什么都不做
func (r *registry) unregister(id string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

func (r *registry) lookup(id string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// dispatch 将数据投递给 id 对应的消费者
func (r *registry) dispatch(id string, msg DataMsg) error {
	e, ok := r.lookup(id)
	if !ok {
		return errors.WithMessagef(ErrUnknownCorrelation, "id %s", id)
	}
	return e.deliver(msg)
}

// drain 清空注册表并拒绝之后的注册
func (r *registry) drain() []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	entries := make([]entry, 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		delete(r.entries, id)
	}
	return entries
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
