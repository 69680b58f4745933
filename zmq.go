package zremote

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pborman/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/pkg/errors"
)

const chanCap = 256

type command string

const (
	_SEND  = command("send")  // 发送一帧
	_CLOSE = command("close") // 关闭 socket
)

// zmqChannel 通过 DEALER socket 连接到 ROUTER 前置的 remote api，
//  一个 zmq 消息帧对应一个 JSON 文本帧
//  zmq socket 不是协程安全的：DEALER 只由 mainLoop 使用，
//  Send 经 sendChan 交给 sendLoop，再由 inproc PAIR 唤醒 mainLoop
type zmqChannel struct {
	id       string
	endpoint string
	socket   *zmq.Socket
	logger   Logger

	recvChan chan []byte
	sendChan chan []byte
	stop     chan struct{}
	done     chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	err       error // mainLoop 退出的原因，done 关闭后可读
}

func dialZmq(endpoint string, logger Logger) (*zmqChannel, error) {
	soc, err := zmq.NewSocket(zmq.DEALER)
	if err != nil {
		return nil, errors.WithMessage(ErrConnection, err.Error())
	}
	id := uuid.NewRandom().String()
	soc.SetIdentity(id)
	soc.SetLinger(100 * time.Millisecond)
	if err := soc.Connect(endpoint); err != nil {
		soc.Close()
		return nil, errors.WithMessagef(ErrConnection, "connect %s: %v", endpoint, err)
	}

	// pipe 两端在启动协程前建立，之后各归一个协程所有
	addr := fmt.Sprintf("inproc://zremote_pipe_%s", id)
	in, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		soc.Close()
		return nil, errors.WithMessage(ErrConnection, err.Error())
	}
	out, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		soc.Close()
		in.Close()
		return nil, errors.WithMessage(ErrConnection, err.Error())
	}
	if err = in.Bind(addr); err == nil {
		err = out.Connect(addr)
	}
	if err != nil {
		soc.Close()
		in.Close()
		out.Close()
		return nil, errors.WithMessage(ErrConnection, err.Error())
	}

	c := &zmqChannel{
		id:       id,
		endpoint: endpoint,
		socket:   soc,
		logger:   logger,
		recvChan: make(chan []byte, chanCap),
		sendChan: make(chan []byte, chanCap),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.mainLoop(out)
	go c.sendLoop(in)
	return c, nil
}

func (c *zmqChannel) mainLoop(pipe *zmq.Socket) {
	defer close(c.done)
	defer c.socket.Close()
	defer pipe.Close()

	poller := zmq.NewPoller()
	poller.Add(c.socket, zmq.POLLIN)
	poller.Add(pipe, zmq.POLLIN)
	for {
		polls, err := poller.Poll(-1)
		if err != nil {
			c.err = errors.WithMessage(ErrConnection, err.Error())
			return
		}

		for _, p := range polls {
			switch p.Socket {
			case pipe:
				cmd, err := pipe.RecvMessageBytes(0)
				if err != nil {
					c.err = errors.WithMessage(ErrConnection, err.Error())
					return
				}
				switch command(cmd[0]) {
				case _SEND:
					if _, err := c.socket.SendBytes(cmd[1], 0); err != nil {
						c.logger.Warnf("[zremote]: zmq send to %s: %v", c.endpoint, err)
					}
				case _CLOSE:
					c.err = ErrConnection
					return
				}
			case c.socket:
				msg, err := c.socket.RecvMessageBytes(0)
				if err != nil {
					c.logger.Warnf("[zremote]: zmq recv from %s: %v", c.endpoint, err)
					continue
				}
				if len(msg) == 0 {
					continue
				}
				select {
				case c.recvChan <- msg[len(msg)-1]:
				case <-c.stop:
					c.err = ErrConnection
					return
				}
			}
		}
	}
}

// sendLoop 把 sendChan 中的帧按顺序转给 mainLoop，关闭时先转完排队的帧
func (c *zmqChannel) sendLoop(pipe *zmq.Socket) {
	defer pipe.Close()
	for {
		select {
		case frame := <-c.sendChan:
			c.forward(pipe, frame)
		case <-c.stop:
			select {
			case <-c.done:
				return
			default:
			}
			for len(c.sendChan) > 0 {
				c.forward(pipe, <-c.sendChan)
			}
			if _, err := pipe.SendMessage(string(_CLOSE)); err != nil {
				c.logger.Warnf("[zremote]: zmq pipe: %v", err)
			}
			return
		case <-c.done:
			return
		}
	}
}

func (c *zmqChannel) forward(pipe *zmq.Socket, frame []byte) {
	if _, err := pipe.SendMessage(string(_SEND), frame); err != nil {
		c.logger.Warnf("[zremote]: zmq pipe: %v", err)
	}
}

// Send 交给 sendLoop 发送
func (c *zmqChannel) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrConnection
	}
	select {
	case c.sendChan <- frame:
		return nil
	case <-c.done:
		return ErrConnection
	}
}

func (c *zmqChannel) Recv() ([]byte, error) {
	select {
	case frame := <-c.recvChan:
		return frame, nil
	case <-c.done:
		select {
		case frame := <-c.recvChan:
			return frame, nil
		default:
		}
		c.closed.Store(true)
		return nil, c.err
	}
}

// Close 等待 mainLoop 发完排队的帧并关闭 socket
func (c *zmqChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
	})
	<-c.done
	return nil
}

func (c *zmqChannel) Closed() bool {
	return c.closed.Load()
}
