package zremote

import (
	"sync"
	"testing"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
)

// fakeZk 内存中的子节点列表，set 触发一次 children watch
type fakeZk struct {
	mu       sync.Mutex
	children []string
	data     map[string][]byte
	watch    chan zk.Event
	paths    []string
	closed   bool
}

func (f *fakeZk) ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, nil, zk.ErrClosing
	}
	f.paths = append(f.paths, path)
	f.watch = make(chan zk.Event, 1)
	return append([]string(nil), f.children...), &zk.Stat{}, f.watch, nil
}

func (f *fakeZk) Get(path string) ([]byte, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return data, &zk.Stat{}, nil
}

func (f *fakeZk) Close() {
	f.mu.Lock()
	f.closed = true
	watch := f.watch
	f.mu.Unlock()
	if watch != nil {
		watch <- zk.Event{Type: zk.EventNotWatching, State: zk.StateDisconnected, Err: zk.ErrClosing}
	}
}

func (f *fakeZk) set(children ...string) {
	f.mu.Lock()
	f.children = children
	watch := f.watch
	f.mu.Unlock()
	watch <- zk.Event{Type: zk.EventNodeChildrenChanged, State: zk.StateHasSession}
}

func TestZookeeperDiscoverWatch(t *testing.T) {
	conn := &fakeZk{
		children: []string{"n1", "n2", "gone"},
		data: map[string][]byte{
			"/zremote/api/n1": []byte(`{"host":"10.0.0.1","port":10000}`),
			"/zremote/api/n2": []byte(`{"scheme":"wss","host":"10.0.0.2","port":443}`),
			"/zremote/api/n3": []byte(`{"host":"10.0.0.3","port":10000}`),
		},
	}
	d := newZookeeperDiscover(&DiscoverConfig{
		ServicePrefix: "/zremote",
		ServiceName:   "api",
		Logger:        discardLogger(),
	}, conn)

	cb := newRecordingCallback()
	done := watchInBackground(d, cb)

	// gone 读取失败，只记录日志
	cb.expect(t,
		watchEvent{op: "put", id: "n1", locator: "ws://10.0.0.1:10000"},
		watchEvent{op: "put", id: "n2", locator: "wss://10.0.0.2:443"},
	)
	cb.expectNone(t)

	conn.set("n2", "n3")
	cb.expect(t,
		watchEvent{op: "put", id: "n2", locator: "wss://10.0.0.2:443"},
		watchEvent{op: "put", id: "n3", locator: "ws://10.0.0.3:10000"},
		watchEvent{op: "delete", id: "n1"},
	)
	cb.expectNone(t)

	d.Stop()
	waitDone(t, done)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, []string{"/zremote/api", "/zremote/api"}, conn.paths)
}

func TestZookeeperDiscoverClosedConn(t *testing.T) {
	conn := &fakeZk{closed: true}
	d := newZookeeperDiscover(&DiscoverConfig{ServiceName: "api", Logger: discardLogger()}, conn)

	done := watchInBackground(d, newRecordingCallback())
	waitDone(t, done)
}
