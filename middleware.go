package zremote

// BeforeSend 消息编码发送前执行
type BeforeSend func(msg Message)

// AfterRecv 收到的消息解码后、分发前执行
type AfterRecv func(msg Message)

type hooks struct {
	beforeSend []BeforeSend
	afterRecv  []AfterRecv
}

func (h *hooks) sending(msg Message) {
	for _, f := range h.beforeSend {
		f(msg)
	}
}

func (h *hooks) received(msg Message) {
	for _, f := range h.afterRecv {
		f(msg)
	}
}
