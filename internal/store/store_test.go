package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullStore interface {
	OptionStore
	MetaStore
}

func newGormStore(t *testing.T) *Gorm {
	t.Helper()
	db, err := Open(OpenOptions{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	return NewGorm(db)
}

func TestStores(t *testing.T) {
	impls := map[string]func(t *testing.T) fullStore{
		"memory": func(t *testing.T) fullStore { return NewMemory() },
		"gorm":   func(t *testing.T) fullStore { return newGormStore(t) },
	}
	for name, mk := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("should set get and delete options", func(t *testing.T) {
				s := mk(t)
				_, err := s.GetOption(ctx, "noindex_seo_search")
				assert.ErrorIs(t, err, ErrNotFound)

				require.NoError(t, s.SetOption(ctx, "noindex_seo_search", "1"))
				require.NoError(t, s.SetOption(ctx, "noindex_seo_search", "0"))
				v, err := s.GetOption(ctx, "noindex_seo_search")
				require.NoError(t, err)
				assert.Equal(t, "0", v)

				require.NoError(t, s.DeleteOption(ctx, "noindex_seo_search"))
				_, err = s.GetOption(ctx, "noindex_seo_search")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("add option keeps existing values", func(t *testing.T) {
				s := mk(t)
				added, err := s.AddOption(ctx, "nofollow_seo_tag", "0")
				require.NoError(t, err)
				assert.True(t, added)

				require.NoError(t, s.SetOption(ctx, "nofollow_seo_tag", "1"))
				added, err = s.AddOption(ctx, "nofollow_seo_tag", "0")
				require.NoError(t, err)
				assert.False(t, added)
				v, _ := s.GetOption(ctx, "nofollow_seo_tag")
				assert.Equal(t, "1", v)
			})

			t.Run("should delete by prefix only", func(t *testing.T) {
				s := mk(t)
				require.NoError(t, s.SetOption(ctx, "nosnippet_seo_tag", "1"))
				require.NoError(t, s.SetOption(ctx, "nosnippet_seo_day", "0"))
				require.NoError(t, s.SetOption(ctx, "nosnippetXseo_other", "1"))
				n, err := s.DeleteOptionsByPrefix(ctx, "nosnippet_seo_")
				require.NoError(t, err)
				assert.EqualValues(t, 2, n)
				_, err = s.GetOption(ctx, "nosnippetXseo_other")
				assert.NoError(t, err)
			})

			t.Run("should manage item meta", func(t *testing.T) {
				s := mk(t)
				require.NoError(t, s.SetMeta(ctx, 7, "_noindex_seo_override", "1"))
				require.NoError(t, s.SetMeta(ctx, 9, "_noindex_seo_override", "0"))
				require.NoError(t, s.UpsertMetaBulk(ctx, []uint64{3, 9}, "_noindex_seo_override", "1"))

				ids, err := s.ItemsWithMeta(ctx, "_noindex_seo_override", "1")
				require.NoError(t, err)
				assert.Equal(t, []uint64{3, 7, 9}, ids)

				n, err := s.DeleteMetaBulk(ctx, []uint64{3, 7}, "_noindex_seo_override")
				require.NoError(t, err)
				assert.EqualValues(t, 2, n)

				require.NoError(t, s.DeleteMeta(ctx, 9, "_noindex_seo_override"))
				_, err = s.GetMeta(ctx, 9, "_noindex_seo_override")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("should delete a meta key across items", func(t *testing.T) {
				s := mk(t)
				require.NoError(t, s.SetMeta(ctx, 1, "_noindex_seo_noindex", "1"))
				require.NoError(t, s.SetMeta(ctx, 2, "_noindex_seo_noindex", "0"))
				require.NoError(t, s.SetMeta(ctx, 2, "_noindex_seo_nofollow", "1"))
				n, err := s.DeleteMetaKey(ctx, "_noindex_seo_noindex")
				require.NoError(t, err)
				assert.EqualValues(t, 2, n)
				v, err := s.GetMeta(ctx, 2, "_noindex_seo_nofollow")
				require.NoError(t, err)
				assert.Equal(t, "1", v)
			})
		})
	}
}
