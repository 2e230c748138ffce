package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/finanzen-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	val, ok := c.Get("key1")

	require.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	assert.False(t, ok, "expected cache entry to be expired")
}

func TestCache_SetWithTTL(t *testing.T) {
	c := cache.New[string](time.Hour)
	defer c.Close()

	c.SetWithTTL("short", "v", 30*time.Millisecond)
	c.SetWithTTL("default", "v", 0)
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("default")
	assert.True(t, ok)
}

func TestCache_Take(t *testing.T) {
	c := cache.New[int](time.Minute)
	defer c.Close()

	c.Set("state", 42)

	v, ok := c.Take("state")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Take("state")
	assert.False(t, ok, "a value can only be taken once")
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
