// Package zremote 通过一条 websocket（或 zmq）连接访问 zenoh remote api，
// 在这条连接上复用 put/delete/get 以及 subscriber、publisher、queryable 的声明。
package zremote

import (
	"context"
)

// Open 连接 locator 并打开会话
//  locator: ws://host:port, wss://..., zmq+tcp://host:port, zmq+ipc://path
//  locator 为空且设置了 WithDiscover 时，通过服务发现选择节点
func Open(ctx context.Context, locator string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}

	if locator == "" {
		if o.Discover == nil {
			return nil, ErrNoEndpoint
		}
		var err error
		if locator, err = resolveLocator(ctx, o); err != nil {
			return nil, err
		}
	}

	ch, err := dial(ctx, locator, o)
	if err != nil {
		return nil, err
	}
	return openWithChannel(ctx, ch, o)
}
