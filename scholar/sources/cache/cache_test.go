package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 1, c.Prune())
}

func TestNewDefaultsToMemory(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	r, err := New("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, r)
	assert.NoError(t, r.Close())

	_, err = New("::bad::")
	assert.Error(t, err)
}
