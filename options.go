package zremote

import (
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Option func(opt *options)

type options struct {
	Logger           Logger               // logger
	OpenTimeout      time.Duration        // 等待 Session 应答的最长时间
	HandshakeTimeout time.Duration        // websocket 握手超时
	WorkPoolSize     int                  // 回调形式 get 使用的协程池大小
	TracerProvider   trace.TracerProvider // otel
	Discover         ServiceDiscover      // remote api 节点发现
	hooks            hooks
}

func defaultOptions() *options {
	return &options{
		Logger:           defaultLogger(),
		OpenTimeout:      10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WorkPoolSize:     runtime.NumCPU(),
	}
}

// WithLogger 设置 logger
func WithLogger(logger Logger) Option {
	return func(opt *options) {
		opt.Logger = logger
	}
}

// WithOpenTimeout 设置等待服务端分配会话 id 的最长时间
func WithOpenTimeout(t time.Duration) Option {
	return func(opt *options) {
		opt.OpenTimeout = t
	}
}

// WithHandshakeTimeout 设置 websocket 握手超时
func WithHandshakeTimeout(t time.Duration) Option {
	return func(opt *options) {
		opt.HandshakeTimeout = t
	}
}

// WithWorkPoolSize 设置协程池大小
func WithWorkPoolSize(size int) Option {
	return func(opt *options) {
		opt.WorkPoolSize = size
	}
}

// WithTracerProvider 设置 otel TracerProvider，默认使用全局的
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opt *options) {
		opt.TracerProvider = tp
	}
}

// WithDiscover locator 为空时通过服务发现选择节点
func WithDiscover(d ServiceDiscover) Option {
	return func(opt *options) {
		opt.Discover = d
	}
}

func WithBeforeSend(f BeforeSend) Option {
	return func(opt *options) {
		opt.hooks.beforeSend = append(opt.hooks.beforeSend, f)
	}
}

func WithAfterRecv(f AfterRecv) Option {
	return func(opt *options) {
		opt.hooks.afterRecv = append(opt.hooks.afterRecv, f)
	}
}

// OpOption 单个操作（put/get/declare ...）的参数
type OpOption func(opt *opOptions)

type opOptions struct {
	encoding          *string
	congestionControl *CongestionControl
	priority          *Priority
	express           *bool
	reliability       *Reliability
	consolidation     *ConsolidationMode
	attachment        ZBytes
	payload           ZBytes
	handler           HandlerChannel
}

func newOpOptions(opts []OpOption) *opOptions {
	o := &opOptions{handler: FifoChannel(defaultChannelSize)}
	for _, f := range opts {
		f(o)
	}
	return o
}

// WithEncoding 负载编码
func WithEncoding(encoding string) OpOption {
	return func(opt *opOptions) {
		opt.encoding = &encoding
	}
}

func WithCongestionControl(cc CongestionControl) OpOption {
	return func(opt *opOptions) {
		opt.congestionControl = &cc
	}
}

func WithPriority(p Priority) OpOption {
	return func(opt *opOptions) {
		opt.priority = &p
	}
}

func WithExpress(express bool) OpOption {
	return func(opt *opOptions) {
		opt.express = &express
	}
}

// WithReliability 仅 DeclarePublisher 使用
func WithReliability(r Reliability) OpOption {
	return func(opt *opOptions) {
		opt.reliability = &r
	}
}

// WithConsolidation 仅 Get 使用
func WithConsolidation(c ConsolidationMode) OpOption {
	return func(opt *opOptions) {
		opt.consolidation = &c
	}
}

func WithAttachment(attachment []byte) OpOption {
	return func(opt *opOptions) {
		opt.attachment = NewZBytes(attachment)
	}
}

// WithQueryPayload Get 携带的负载
func WithQueryPayload(payload []byte) OpOption {
	return func(opt *opOptions) {
		opt.payload = NewZBytes(payload)
	}
}

// WithHandler 服务端与本地队列的类型和容量，默认 Fifo(256)
func WithHandler(h HandlerChannel) OpOption {
	return func(opt *opOptions) {
		opt.handler = h
	}
}
