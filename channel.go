package zremote

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Channel 到 remote api 的唯一一条双向文本帧流
//  Send 可被多个协程并发调用，Recv 只由分发协程调用
type Channel interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
	Closed() bool
}

// dial 根据 locator 的 scheme 选择实现
func dial(ctx context.Context, locator string, opts *options) (Channel, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, errors.WithMessage(ErrUnsupportedLocator, err.Error())
	}
	switch u.Scheme {
	case "ws", "wss":
		return dialWebsocket(ctx, locator, opts.HandshakeTimeout)
	case "zmq+tcp", "zmq+ipc":
		return dialZmq(strings.TrimPrefix(locator, "zmq+"), opts.Logger)
	}
	return nil, errors.WithMessagef(ErrUnsupportedLocator, "%q", locator)
}

type wsChannel struct {
	conn      *websocket.Conn
	wlock     sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func dialWebsocket(ctx context.Context, locator string, handshake time.Duration) (*wsChannel, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}
	conn, _, err := dialer.DialContext(ctx, locator, nil)
	if err != nil {
		return nil, errors.WithMessagef(ErrConnection, "dial %s: %v", locator, err)
	}
	return newWsChannel(conn), nil
}

func newWsChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

// Send 发送一个文本帧
func (c *wsChannel) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrConnection
	}
	c.wlock.Lock()
	defer c.wlock.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.WithMessage(ErrConnection, err.Error())
	}
	return nil
}

// Recv 读取下一帧，对端关闭或读错误都返回 ErrConnection
func (c *wsChannel) Recv() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			return nil, errors.WithMessage(ErrConnection, err.Error())
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		// WriteControl 可与 WriteMessage 并发，不需要 wlock
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsChannel) Closed() bool {
	return c.closed.Load()
}
