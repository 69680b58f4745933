package zremote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, id)
		seen[id] = struct{}{}
	}
}

func BenchmarkNewID(b *testing.B) {
	b.RunParallel(func(p *testing.PB) {
		for p.Next() {
			NewID()
		}
	})
}

func TestParseSelector(t *testing.T) {
	ke, params, err := parseSelector("demo/example/**")
	require.NoError(t, err)
	assert.Equal(t, "demo/example/**", ke)
	assert.Nil(t, params)

	ke, params, err = parseSelector("demo/example?a=1;b=2")
	require.NoError(t, err)
	assert.Equal(t, "demo/example", ke)
	require.NotNil(t, params)
	assert.Equal(t, "a=1;b=2", *params)

	ke, params, err = parseSelector("demo/example?")
	require.NoError(t, err)
	assert.Equal(t, "demo/example", ke)
	assert.Equal(t, "", *params)

	_, _, err = parseSelector("a?b?c")
	assert.ErrorIs(t, err, ErrInvalidSelector)

	for _, bad := range []string{"", "/a", "a/", "?x=1"} {
		_, _, err = parseSelector(bad)
		assert.ErrorIs(t, err, ErrInvalidKeyExpr, bad)
	}
}
