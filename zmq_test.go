package zremote

import (
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*zmq.Socket, string) {
	t.Helper()
	router, err := zmq.NewSocket(zmq.ROUTER)
	require.NoError(t, err)
	router.SetLinger(0)
	router.SetRcvtimeo(2 * time.Second)
	require.NoError(t, router.Bind("tcp://127.0.0.1:*"))
	endpoint, err := router.GetLastEndpoint()
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })
	return router, endpoint
}

func TestZmqRoundTrip(t *testing.T) {
	router, endpoint := newRouter(t)
	ch, err := dialZmq(endpoint, discardLogger())
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send([]byte(`{"Control":"OpenSession"}`)))
	msg, err := router.RecvMessageBytes(0)
	require.NoError(t, err)
	require.Len(t, msg, 2)
	assert.Equal(t, ch.id, string(msg[0]))
	assert.Equal(t, `{"Control":"OpenSession"}`, string(msg[1]))

	_, err = router.SendMessage(msg[0], `{"Session":"s"}`)
	require.NoError(t, err)
	frame, err := ch.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"Session":"s"}`, string(frame))
}

func TestZmqSendIsNotBatchedByPoll(t *testing.T) {
	router, endpoint := newRouter(t)
	ch, err := dialZmq(endpoint, discardLogger())
	require.NoError(t, err)
	defer ch.Close()

	// 第一帧等连接建立
	require.NoError(t, ch.Send([]byte("warmup")))
	_, err = router.RecvMessageBytes(0)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, ch.Send([]byte("ping")))
		msg, err := router.RecvMessageBytes(0)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(msg[1]))
	}
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestZmqCloseFlushesQueuedFrames(t *testing.T) {
	router, endpoint := newRouter(t)
	ch, err := dialZmq(endpoint, discardLogger())
	require.NoError(t, err)

	require.NoError(t, ch.Send([]byte("first")))
	msg, err := router.RecvMessageBytes(0)
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg[1]))

	require.NoError(t, ch.Send([]byte(`{"Control":"CloseSession"}`)))
	require.NoError(t, ch.Close())

	msg, err = router.RecvMessageBytes(0)
	require.NoError(t, err)
	assert.Equal(t, `{"Control":"CloseSession"}`, string(msg[1]))

	assert.True(t, ch.Closed())
	assert.ErrorIs(t, ch.Send([]byte("x")), ErrConnection)
	_, err = ch.Recv()
	assert.ErrorIs(t, err, ErrConnection)
}
