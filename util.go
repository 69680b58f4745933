package zremote

import (
	"strings"

	"github.com/pborman/uuid"
)

// NewID 生成会话内唯一的关联 id（随机 uuid）
func NewID() string {
	return uuid.NewRandom().String()
}

// parseSelector 拆分 "<KeyExpr>?<Parameters>"
func parseSelector(selector string) (keyExpr string, params *string, err error) {
	parts := strings.Split(selector, "?")
	switch len(parts) {
	case 1:
		keyExpr = parts[0]
	case 2:
		keyExpr = parts[0]
		params = &parts[1]
	default:
		return "", nil, ErrInvalidSelector
	}
	if err = checkKeyExpr(keyExpr); err != nil {
		return "", nil, err
	}
	return keyExpr, params, nil
}

// checkKeyExpr 只做最基本的检查，完整的语法由远端校验
func checkKeyExpr(keyExpr string) error {
	if keyExpr == "" || strings.HasPrefix(keyExpr, "/") || strings.HasSuffix(keyExpr, "/") {
		return ErrInvalidKeyExpr
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
