package zremote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDiscover struct {
	nodes    map[string]string
	stop     chan struct{}
	stopOnce sync.Once
}

func newStaticDiscover(nodes map[string]string) *staticDiscover {
	return &staticDiscover{nodes: nodes, stop: make(chan struct{})}
}

func (d *staticDiscover) Watch(cb WatchCallback) {
	for id, meta := range d.nodes {
		_ = cb.AddOrUpdate(id, []byte(meta))
	}
	<-d.stop
}

func (d *staticDiscover) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

type watchEvent struct {
	op      string
	id      string
	locator string
}

// recordingCallback 记录 Watch 产生的每个事件
type recordingCallback struct {
	events chan watchEvent
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{events: make(chan watchEvent, 16)}
}

func (r *recordingCallback) AddOrUpdate(id string, metadata []byte) error {
	ev := watchEvent{op: "put", id: id, locator: string(metadata)}
	if e, err := ParseEndpoint(metadata); err == nil {
		ev.locator = e.Locator()
	}
	r.events <- ev
	return nil
}

func (r *recordingCallback) Delete(id string) {
	r.events <- watchEvent{op: "delete", id: id}
}

// expect 收集 len(want) 个事件，不关心顺序
func (r *recordingCallback) expect(t *testing.T, want ...watchEvent) {
	t.Helper()
	got := make([]watchEvent, 0, len(want))
	for range want {
		select {
		case ev := <-r.events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for watch events, got %v", got)
		}
	}
	assert.ElementsMatch(t, want, got)
}

func (r *recordingCallback) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected watch event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func watchInBackground(d ServiceDiscover, cb WatchCallback) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.Watch(cb)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint([]byte(`{"host":"10.0.0.1","port":10000}`))
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:10000", e.Locator())

	e, err = ParseEndpoint([]byte(`{"scheme":"wss","host":"::1","port":443,"path":"/remote"}`))
	require.NoError(t, err)
	assert.Equal(t, "wss://[::1]:443/remote", e.Locator())

	e, err = ParseEndpoint([]byte(`{"scheme":"zmq+ipc","path":"/tmp/zremote.sock"}`))
	require.NoError(t, err)
	assert.Equal(t, "zmq+ipc:///tmp/zremote.sock", e.Locator())

	_, err = ParseEndpoint([]byte(`{"port":1}`))
	assert.Error(t, err)
	_, err = ParseEndpoint([]byte(`not json`))
	assert.Error(t, err)
}

func TestEndpointSet(t *testing.T) {
	set := newEndpointSet()
	_, ok := set.pick()
	assert.False(t, ok)

	assert.Error(t, set.AddOrUpdate("bad", []byte(`{}`)))
	require.NoError(t, set.AddOrUpdate("n1", []byte(`{"host":"a","port":1}`)))
	e, ok := set.pick()
	require.True(t, ok)
	assert.Equal(t, "a", e.Host)

	require.NoError(t, set.AddOrUpdate("n1", []byte(`{"host":"b","port":1}`)))
	e, _ = set.pick()
	assert.Equal(t, "b", e.Host)

	set.Delete("n1")
	set.Delete("n1")
	_, ok = set.pick()
	assert.False(t, ok)
}

func TestEndpointSetWait(t *testing.T) {
	set := newEndpointSet()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = set.AddOrUpdate("n1", []byte(`{"host":"a","port":1}`))
	}()
	e, err := set.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://a:1", e.Locator())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = newEndpointSet().wait(ctx)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestResolveLocator(t *testing.T) {
	d := newStaticDiscover(map[string]string{"n1": `{"scheme":"ws","host":"127.0.0.1","port":7447}`})
	opts := testOptions()
	opts.Discover = d

	loc, err := resolveLocator(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:7447", loc)

	select {
	case <-d.stop:
	default:
		t.Fatal("discover was not stopped")
	}
}

func TestResolveLocatorTimeout(t *testing.T) {
	opts := testOptions()
	opts.Discover = newStaticDiscover(nil)
	opts.OpenTimeout = 20 * time.Millisecond

	_, err := resolveLocator(context.Background(), opts)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestOpenWithoutLocator(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestNewDiscoverUnknownBackend(t *testing.T) {
	_, err := NewDiscover(&DiscoverConfig{Backend: "mdns"})
	assert.Error(t, err)
}
