package zremote

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrConnection         = errors.New("zremote: connection error")
	ErrSessionClosed      = errors.New("zremote: session is closed")
	ErrDecode             = errors.New("zremote: decode error")
	ErrDuplicateID        = errors.New("zremote: duplicate correlation id")
	ErrUnknownCorrelation = errors.New("zremote: unknown correlation id")
	ErrMalformedReply     = errors.New("zremote: malformed reply")
	ErrEndOfStream        = errors.New("zremote: end of stream")
	ErrDisconnected       = errors.New("zremote: disconnected")
	ErrInvalidSelector    = errors.New("zremote: invalid selector, expected <KeyExpr>?<Parameters>")
	ErrInvalidKeyExpr     = errors.New("zremote: invalid key expression")
	ErrUnsupportedLocator = errors.New("zremote: unsupported locator")
	ErrCallbackConsumer   = errors.New("zremote: handle was declared with a callback and cannot be polled")
	ErrQueryFinalized     = errors.New("zremote: query already finalized")
	ErrUndeclared         = errors.New("zremote: handle already undeclared")
	ErrNoEndpoint         = errors.New("zremote: no remote api endpoint available")
)

// DecodeError 一帧数据无法解码
type DecodeError struct {
	Frame  string
	Reason string
}

func (e *DecodeError) Error() string {
	frame := e.Frame
	if len(frame) > 128 {
		frame = frame[:128] + "..."
	}
	return fmt.Sprintf("zremote: decode error: %s, frame: %s", e.Reason, frame)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeErr(frame []byte, format string, args ...any) error {
	return &DecodeError{Frame: string(frame), Reason: fmt.Sprintf(format, args...)}
}
