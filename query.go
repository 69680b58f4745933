package zremote

import (
	"context"
	"sync"

	"github.com/hunyxv/utils/spinlock"
	"github.com/pkg/errors"
)

// ReplyError 对端对 get 返回的错误
type ReplyError struct {
	Payload  ZBytes
	Encoding string
}

func (e *ReplyError) Error() string {
	return "zremote: reply error: " + e.Payload.String()
}

// Reply get 的一个应答，Sample 和 Err 有且只有一个不为空
type Reply struct {
	Sample *Sample
	Err    *ReplyError
}

func (r Reply) IsOk() bool {
	return r.Sample != nil
}

// replyFromResult 校验应答结构，不合法的返回 ErrMalformedReply
func replyFromResult(r ReplyResult) (Reply, error) {
	if (r.Ok == nil) == (r.Err == nil) {
		return Reply{}, errors.WithMessage(ErrMalformedReply, "result must be exactly one of Ok or Err")
	}
	if r.Err != nil {
		return Reply{Err: &ReplyError{Payload: r.Err.Payload, Encoding: r.Err.Encoding}}, nil
	}
	if r.Ok.KeyExpr == "" {
		return Reply{}, errors.WithMessage(ErrMalformedReply, "sample without key expression")
	}
	sample := sampleFromWS(r.Ok)
	return Reply{Sample: &sample}, nil
}

// ================================ receiver ================================

// Receiver get 的应答序列
type Receiver struct {
	handle
	consumer consumer[ReplyResult]
}

func (rcv *Receiver) deliver(msg DataMsg) error {
	m, ok := msg.(*GetReplyMsg)
	if !ok {
		return errors.Errorf("receiver %s cannot accept %T", rcv.id, msg)
	}
	return pushed(rcv.consumer.push(m.Result))
}

func (rcv *Receiver) close(reason closeReason) {
	rcv.consumer.close(reason)
}

// Recv 返回下一个应答。三种结束/异常情况互不混淆：
//  ErrEndOfStream  对端发送了 GetFinished
//  ErrDisconnected 连接断开或会话关闭
//  ErrMalformedReply 本条应答结构不合法，之后仍可继续 Recv
func (rcv *Receiver) Recv(ctx context.Context) (Reply, error) {
	r, err := rcv.consumer.recv(ctx)
	if err != nil {
		return Reply{}, err
	}
	return replyFromResult(r)
}

// Close 放弃剩余的应答，仅本地生效
func (rcv *Receiver) Close() {
	if !rcv.markUndeclared() {
		return
	}
	if e, ok := rcv.session.reg.unregister(rcv.id); ok {
		e.close(reasonEndOfStream)
	}
}

// ================================ queryable ================================

type Queryable struct {
	handle
	complete bool
	consumer consumer[*Query]
}

func (qa *Queryable) deliver(msg DataMsg) error {
	m, ok := msg.(*QueryMsg)
	if !ok {
		return errors.Errorf("queryable %s cannot accept %T", qa.id, msg)
	}
	return pushed(qa.consumer.push(newQuery(qa.session, &m.Query)))
}

func (qa *Queryable) close(reason closeReason) {
	qa.consumer.close(reason)
}

func (qa *Queryable) Complete() bool {
	return qa.complete
}

// Recv 阻塞直到收到 query
func (qa *Queryable) Recv(ctx context.Context) (*Query, error) {
	return qa.consumer.recv(ctx)
}

// Undeclare 注销 queryable，可重复调用
func (qa *Queryable) Undeclare(ctx context.Context) error {
	return qa.undeclare(ctx, "undeclare_queryable", &UndeclareQueryableMsg{ID: qa.id})
}

// Query queryable 收到的查询，用自己的 id 应答
type Query struct {
	session    *Session
	id         string
	keyExpr    string
	parameters string
	encoding   string
	payload    ZBytes
	attachment ZBytes

	lock      sync.Locker
	finalized bool
}

func newQuery(s *Session, ws *QueryWS) *Query {
	q := &Query{
		session:    s,
		id:         ws.QueryID,
		keyExpr:    ws.KeyExpr,
		parameters: ws.Parameters,
		payload:    ws.Payload,
		attachment: ws.Attachment,
		lock:       spinlock.NewSpinLock(),
	}
	if ws.Encoding != nil {
		q.encoding = *ws.Encoding
	}
	return q
}

func (q *Query) ID() string         { return q.id }
func (q *Query) KeyExpr() string    { return q.keyExpr }
func (q *Query) Parameters() string { return q.parameters }
func (q *Query) Encoding() string   { return q.encoding }
func (q *Query) Payload() ZBytes    { return q.payload }
func (q *Query) Attachment() ZBytes { return q.attachment }

// Selector <KeyExpr>?<Parameters>
func (q *Query) Selector() string {
	if q.parameters == "" {
		return q.keyExpr
	}
	return q.keyExpr + "?" + q.parameters
}

// Reply 应答一个 sample
func (q *Query) Reply(ctx context.Context, keyExpr string, payload []byte) error {
	if err := checkKeyExpr(keyExpr); err != nil {
		return err
	}
	return q.reply(ctx, "query_reply", &QueryReplySample{KeyExpr: keyExpr, Payload: NewZBytes(payload)})
}

// ReplyErr 应答一个错误
func (q *Query) ReplyErr(ctx context.Context, payload []byte) error {
	return q.reply(ctx, "query_reply_err", &QueryReplyErr{Payload: NewZBytes(payload)})
}

// ReplyDelete 应答一个 delete
func (q *Query) ReplyDelete(ctx context.Context, keyExpr string) error {
	if err := checkKeyExpr(keyExpr); err != nil {
		return err
	}
	return q.reply(ctx, "query_reply_delete", &QueryReplyDelete{KeyExpr: keyExpr})
}

// Finalize 结束应答，之后的 Reply* 返回 ErrQueryFinalized
//  协议中没有显式的结束消息，由对端在自己的 query 释放时完成
func (q *Query) Finalize() {
	q.lock.Lock()
	q.finalized = true
	q.lock.Unlock()
}

func (q *Query) reply(ctx context.Context, op string, result QueryReplyVariant) (err error) {
	q.lock.Lock()
	finalized := q.finalized
	q.lock.Unlock()
	if finalized {
		return ErrQueryFinalized
	}

	_, span := q.session.startSpan(ctx, op, q.keyExpr, q.id)
	defer func() { endSpan(span, err) }()
	return q.session.send(&QueryReplyMsg{Reply: QueryReplyWS{QueryID: q.id, Result: result}})
}
