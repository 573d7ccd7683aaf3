package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/scanbridge/pkg/logger"
)

func TestCachePutGet(t *testing.T) {
	cache := NewCache(time.Minute, logger.Nop())
	resp := &Response{Status: "success"}

	cache.Put("a", resp)

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Same(t, resp, got)

	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(20*time.Millisecond, logger.Nop())
	cache.Put("a", &Response{Status: "success"})

	_, ok := cache.Get("a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = cache.Get("a")
	assert.False(t, ok, "expired entry must not be served")
}

func TestCacheKeyDistinguishesParams(t *testing.T) {
	a := Params{Limit: 10, Offset: 0, WindowSize: 200, Mode: ModeStrided}
	b := a
	b.Offset = 200

	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Params{Limit: 10, WindowSize: 200, Mode: ModeStrided}.Key())
}

func TestCacheSweep(t *testing.T) {
	cache := NewCache(20*time.Millisecond, logger.Nop())
	cache.Put("old", &Response{Status: "success"})

	time.Sleep(30 * time.Millisecond)
	cache.Put("fresh", &Response{Status: "success"})

	dropped := cache.Sweep()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("fresh")
	assert.True(t, ok)
}
