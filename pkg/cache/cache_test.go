package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int](Options{TTL: time.Minute})
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.SetWithTTL("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.deleteExpired()
	assert.Equal(t, 1, c.Len())
}

func TestMaxItemsEvictsSoonestExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int](Options{MaxItems: 2})
	c.now = func() time.Time { return now }

	c.SetWithTTL("long", 1, time.Hour)
	c.SetWithTTL("short", 2, time.Minute)
	c.SetWithTTL("new", 3, time.Hour)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestGetOrLoad(t *testing.T) {
	c := New[string, string](Options{TTL: time.Minute})
	calls := 0
	load := func() (string, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad("bad", func() (string, error) { return "", errors.New("boom") })
	assert.Error(t, err)
	_, ok := c.Get("bad")
	assert.False(t, ok)

	c.Flush()
	assert.Zero(t, c.Len())
}
