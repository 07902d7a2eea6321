package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })

	t.Run("should miss on an unknown key", func(t *testing.T) {
		_, ok, err := m.Get(ctx, "noindex_seo_options")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("should expire after the ttl", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "noindex_seo_options", []byte(`{"a":1}`), time.Hour))
		now = now.Add(59 * time.Minute)
		v, ok, err := m.Get(ctx, "noindex_seo_options")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, string(v))

		now = now.Add(time.Minute)
		_, ok, _ = m.Get(ctx, "noindex_seo_options")
		assert.False(t, ok)
	})

	t.Run("should delete explicitly", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, m.Delete(ctx, "k"))
		_, ok, _ := m.Get(ctx, "k")
		assert.False(t, ok)
	})
}

// Runs only against a live server: NOINDEX_SEO_TEST_REDIS=localhost:6379.
func TestRedis(t *testing.T) {
	addr := os.Getenv("NOINDEX_SEO_TEST_REDIS")
	if addr == "" {
		t.Skip("NOINDEX_SEO_TEST_REDIS not set")
	}
	r, err := NewRedis(RedisOptions{Addr: addr, Prefix: "test:"})
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "noindex_seo_options", []byte("x"), time.Minute))
	v, ok, err := r.Get(ctx, "noindex_seo_options")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", string(v))

	require.NoError(t, r.Delete(ctx, "noindex_seo_options"))
	_, ok, err = r.Get(ctx, "noindex_seo_options")
	require.NoError(t, err)
	assert.False(t, ok)
}
