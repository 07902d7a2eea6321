package settings

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noindex-seo/internal/cache"
	"noindex-seo/internal/metrics"
	"noindex-seo/internal/models"
	"noindex-seo/internal/store"
)

type fixture struct {
	svc   *Service
	store *store.Memory
	cache *cache.Memory
	m     *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := store.NewMemory()
	c := cache.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	return fixture{svc: NewService(st, st, c, WithMetrics(m)), store: st, cache: c, m: m}
}

func formOf(method string, granular bool, on ...string) Form {
	f := Form{Values: map[string]string{}, Method: method, Granular: boolValue(granular)}
	for _, k := range on {
		f.Values[k] = "1"
	}
	return f
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("should seed defaults at the current version", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Activate(ctx))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.MethodMeta, cfg.Method)
		assert.False(t, cfg.GranularEnabled)
		assert.Equal(t, CurrentVersion, cfg.ConfigVersion)
		for _, c := range models.AllContexts {
			for _, d := range models.AllDirectives {
				assert.False(t, cfg.Enabled(c, d))
			}
		}
	})

	t.Run("should keep existing values", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.store.SetOption(ctx, "noindex_seo_search", "1"))
		require.NoError(t, fx.store.SetOption(ctx, KeyMethod, "both"))
		require.NoError(t, fx.svc.Activate(ctx))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
		assert.Equal(t, models.MethodBoth, cfg.Method)
	})
}

func TestMigration(t *testing.T) {
	ctx := context.Background()

	t.Run("should upgrade a v1 store and keep noindex values", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.store.SetOption(ctx, "noindex_seo_search", "1"))
		require.NoError(t, fx.store.SetOption(ctx, "noindex_seo_tag", "0"))

		ran, err := fx.svc.CheckMigration(ctx)
		require.NoError(t, err)
		assert.True(t, ran)

		v, err := fx.store.GetOption(ctx, KeyVersion)
		require.NoError(t, err)
		assert.Equal(t, "2", v)
		for _, c := range models.AllContexts {
			for _, d := range models.AllDirectives[1:] {
				v, err := fx.store.GetOption(ctx, models.OptionKey(d, c))
				require.NoError(t, err, models.OptionKey(d, c))
				assert.Equal(t, "0", v)
			}
		}
		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
	})

	t.Run("should be a no-op at the current version", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.store.SetOption(ctx, KeyVersion, "2"))
		require.NoError(t, fx.store.SetOption(ctx, "nofollow_seo_tag", "1"))

		ran, err := fx.svc.CheckMigration(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
		_, err = fx.store.GetOption(ctx, "nofollow_seo_search")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("running twice leaves the same state", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.CheckMigration(ctx)
		require.NoError(t, err)
		require.NoError(t, fx.store.SetOption(ctx, "nofollow_seo_tag", "1"))

		ran, err := fx.svc.CheckMigration(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
		v, err := fx.store.GetOption(ctx, "nofollow_seo_tag")
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("should rewrite every pair and only accept 1", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Activate(ctx))
		require.NoError(t, fx.store.SetOption(ctx, "nofollow_seo_tag", "1"))

		f := formOf("meta", false, "noindex_seo_search")
		f.Values["nosnippet_seo_search"] = "yes"
		require.NoError(t, fx.svc.Save(ctx, f))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
		assert.False(t, cfg.Enabled(models.ContextSearch, models.NoSnippet))
		assert.False(t, cfg.Enabled(models.ContextTag, models.NoFollow))
	})

	t.Run("should force header-only contexts off under meta", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Save(ctx, formOf("meta", false, "noindex_seo_feed", "noindex_seo_attachment")))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled(models.ContextFeed, models.NoIndex))
		assert.False(t, cfg.Enabled(models.ContextAttachment, models.NoIndex))
	})

	t.Run("should keep header-only contexts when headers are sent", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Save(ctx, formOf("header", false, "noindex_seo_feed")))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextFeed, models.NoIndex))
		assert.Equal(t, models.MethodHeader, cfg.Method)
	})

	t.Run("should coerce an unknown method to meta", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Save(ctx, formOf("smoke-signals", true)))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.MethodMeta, cfg.Method)
		assert.True(t, cfg.GranularEnabled)
	})

	t.Run("should invalidate the cached snapshot", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		_, ok, _ := fx.cache.Get(ctx, CacheKey)
		require.True(t, ok)

		require.NoError(t, fx.svc.Save(ctx, formOf("meta", false, "noindex_seo_search")))
		_, ok, _ = fx.cache.Get(ctx, CacheKey)
		assert.False(t, ok)

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
		assert.Equal(t, 1.0, testutil.ToFloat64(fx.m.SettingsSavesTotal))
	})

	t.Run("form round-trips through url values", func(t *testing.T) {
		v := url.Values{}
		v.Set("noindex_seo_search", "1")
		v.Set(KeyMethod, "both")
		v.Set(KeyGranular, "1")
		v.Set("unrelated", "1")
		f := FormFromValues(v)
		assert.Equal(t, map[string]string{"noindex_seo_search": "1"}, f.Values)
		assert.Equal(t, "both", f.Method)
		assert.Equal(t, "1", f.Granular)
	})

	t.Run("form from config restores the same config", func(t *testing.T) {
		fx := newFixture(t)
		want := models.DefaultGlobalConfig()
		want.Method = models.MethodBoth
		want.GranularEnabled = true
		want.Set(models.ContextFeed, models.NoIndex, true)
		want.Set(models.ContextSingle, models.NoArchive, true)
		require.NoError(t, fx.svc.Save(ctx, FormFromConfig(want)))

		got, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.Flags, got.Flags)
		assert.Equal(t, want.Method, got.Method)
		assert.True(t, got.GranularEnabled)
	})
}

func TestLoadCache(t *testing.T) {
	ctx := context.Background()

	t.Run("should serve flags from cache until expiry", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		st := store.NewMemory()
		c := cache.NewMemory().WithClock(func() time.Time { return now })
		svc := NewService(st, st, c)

		_, err := svc.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, st.SetOption(ctx, "noindex_seo_search", "1"))

		cfg, err := svc.Load(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled(models.ContextSearch, models.NoIndex))

		now = now.Add(DefaultTTL + time.Second)
		cfg, err = svc.Load(ctx)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
	})

	t.Run("should serve scalar settings from the cached snapshot", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Activate(ctx))
		_, err := fx.svc.Load(ctx)
		require.NoError(t, err)

		require.NoError(t, fx.store.SetOption(ctx, KeyMethod, "header"))
		require.NoError(t, fx.store.SetOption(ctx, KeyGranular, "1"))
		require.NoError(t, fx.store.SetOption(ctx, KeySuppressNotes, "1"))

		cfg, err := fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.MethodMeta, cfg.Method)
		assert.False(t, cfg.GranularEnabled)
		assert.False(t, cfg.SuppressConflictWarnings)
		assert.Equal(t, CurrentVersion, cfg.ConfigVersion)

		fx.svc.Invalidate(ctx)
		cfg, err = fx.svc.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.MethodHeader, cfg.Method)
		assert.True(t, cfg.GranularEnabled)
		assert.True(t, cfg.SuppressConflictWarnings)
	})

	t.Run("should read the store once per ttl", func(t *testing.T) {
		st := &countingStore{Memory: store.NewMemory()}
		svc := NewService(st, st, cache.NewMemory())
		require.NoError(t, svc.Activate(ctx))

		_, err := svc.Load(ctx)
		require.NoError(t, err)
		reads := st.reads
		for i := 0; i < 5; i++ {
			_, err := svc.Load(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, reads, st.reads)
	})
}

type countingStore struct {
	*store.Memory
	reads int
}

func (c *countingStore) GetOption(ctx context.Context, name string) (string, error) {
	c.reads++
	return c.Memory.GetOption(ctx, name)
}

func TestOverrides(t *testing.T) {
	ctx := context.Background()

	granular := func(t *testing.T) fixture {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Save(ctx, formOf("meta", true, "noindex_seo_single")))
		return fx
	}

	t.Run("should refuse writes while granular is off", func(t *testing.T) {
		fx := newFixture(t)
		err := fx.svc.SaveOverride(ctx, 7, models.Override{Enabled: true})
		assert.ErrorIs(t, err, ErrGranularDisabled)
		_, err = fx.svc.BulkEnable(ctx, []uint64{7})
		assert.ErrorIs(t, err, ErrGranularDisabled)
	})

	t.Run("should store and read an enabled override", func(t *testing.T) {
		fx := granular(t)
		ov := models.Override{Enabled: true, Directives: map[models.Directive]bool{models.NoFollow: true}}
		require.NoError(t, fx.svc.SaveOverride(ctx, 42, ov))

		got, err := fx.svc.GetOverride(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.DirectiveSet{models.NoFollow}, got.Set())

		for _, d := range models.AllDirectives {
			_, err := fx.store.GetMeta(ctx, 42, MetaDirectiveKey(d))
			assert.NoError(t, err, "all five directive keys are written")
		}
	})

	t.Run("disabling clears the directives", func(t *testing.T) {
		fx := granular(t)
		require.NoError(t, fx.svc.SaveOverride(ctx, 42, models.Override{Enabled: true, Directives: map[models.Directive]bool{models.NoIndex: true}}))
		require.NoError(t, fx.svc.SaveOverride(ctx, 42, models.Override{Enabled: false}))

		got, err := fx.svc.GetOverride(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, got)
		_, err = fx.store.GetMeta(ctx, 42, MetaDirectiveKey(models.NoIndex))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("preview shows global and effective sets", func(t *testing.T) {
		fx := granular(t)
		require.NoError(t, fx.svc.SaveOverride(ctx, 42, models.Override{Enabled: true, Directives: map[models.Directive]bool{}}))

		p, err := fx.svc.Preview(ctx, 42, false)
		require.NoError(t, err)
		assert.Equal(t, models.ContextSingle, p.Context)
		assert.Equal(t, models.DirectiveSet{models.NoIndex}, p.Global)
		assert.Empty(t, p.Effective)

		p, err = fx.svc.Preview(ctx, 43, false)
		require.NoError(t, err)
		assert.Nil(t, p.Override)
		assert.Equal(t, models.DirectiveSet{models.NoIndex}, p.Effective)
	})

	t.Run("bulk enable and disable", func(t *testing.T) {
		fx := granular(t)
		require.NoError(t, fx.svc.SaveOverride(ctx, 3, models.Override{Enabled: true, Directives: map[models.Directive]bool{models.NoArchive: true}}))

		n, err := fx.svc.BulkEnable(ctx, []uint64{2, 0, 1, 2})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ids, err := fx.svc.ItemsWithOverride(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, ids)

		n, err = fx.svc.BulkDisable(ctx, []uint64{3})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got, err := fx.svc.GetOverride(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, got)
		_, err = fx.store.GetMeta(ctx, 3, MetaDirectiveKey(models.NoArchive))
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Equal(t, 1.0, testutil.ToFloat64(fx.m.OverrideSavesTotal.WithLabelValues("bulk_disable")))
	})

	t.Run("state reads back as flat values", func(t *testing.T) {
		fx := granular(t)
		require.NoError(t, fx.svc.SaveOverride(ctx, 9, models.Override{Enabled: true, Directives: map[models.Directive]bool{models.NoSnippet: true}}))

		st, err := fx.svc.State(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, 1, st["override"])
		assert.Equal(t, 1, st["nosnippet"])
		assert.Equal(t, 0, st["noindex"])
	})
}

func TestParseState(t *testing.T) {
	t.Run("should accept numbers strings and bools", func(t *testing.T) {
		st, ok := ParseState(`{"override":"1","noindex":1,"nofollow":true,"noarchive":"junk"}`)
		require.True(t, ok)
		assert.Equal(t, 1, st["override"])
		assert.Equal(t, 1, st["noindex"])
		assert.Equal(t, 1, st["nofollow"])
		assert.Equal(t, 0, st["noarchive"])
		assert.Equal(t, models.DirectiveSet{models.NoIndex, models.NoFollow}, st.Override().Set())
	})

	t.Run("should reject anything but a JSON object", func(t *testing.T) {
		for _, raw := range []string{`{"override":1,"noindex":1`, `{broken`, "", "null", "[1,2]", `"1"`} {
			st, ok := ParseState(raw)
			assert.False(t, ok, raw)
			assert.Empty(t, st, raw)
		}
	})

	t.Run("should accept an empty object", func(t *testing.T) {
		st, ok := ParseState(`{}`)
		require.True(t, ok)
		assert.False(t, st.Override().Enabled)
	})
}

func TestUninstall(t *testing.T) {
	ctx := context.Background()

	t.Run("should remove every option and item meta", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, fx.svc.Activate(ctx))
		require.NoError(t, fx.store.SetOption(ctx, "noindex_seo_retired_context", "1"))
		require.NoError(t, fx.store.SetOption(ctx, "blogname", "kept"))
		require.NoError(t, fx.svc.Save(ctx, formOf("meta", true)))
		require.NoError(t, fx.svc.SaveOverride(ctx, 5, models.Override{Enabled: true}))
		_, err := fx.svc.Load(ctx)
		require.NoError(t, err)

		rep, err := fx.svc.Uninstall(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rep.Options)
		assert.Equal(t, int64(6), rep.Meta)

		for _, k := range []string{KeyMethod, KeyGranular, KeyVersion, "noindex_seo_search"} {
			_, err := fx.store.GetOption(ctx, k)
			assert.ErrorIs(t, err, store.ErrNotFound, k)
		}
		v, err := fx.store.GetOption(ctx, "blogname")
		require.NoError(t, err)
		assert.Equal(t, "kept", v)
		_, ok, _ := fx.cache.Get(ctx, CacheKey)
		assert.False(t, ok)
	})
}

func TestDetectConflict(t *testing.T) {
	cfg := models.DefaultGlobalConfig()

	t.Run("should report the first known integration", func(t *testing.T) {
		in, ok := DetectConflict(cfg, []string{"wordpress-seo", "slim-seo"})
		require.True(t, ok)
		assert.Equal(t, "slim-seo", in.Slug)
	})

	t.Run("ignores unknown integrations", func(t *testing.T) {
		_, ok := DetectConflict(cfg, []string{"hello-dolly"})
		assert.False(t, ok)
	})

	t.Run("stays quiet when warnings are suppressed", func(t *testing.T) {
		c := cfg
		c.SuppressConflictWarnings = true
		_, ok := DetectConflict(c, []string{"wordpress-seo"})
		assert.False(t, ok)
	})
}

func TestGormBacked(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(store.OpenOptions{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	st := store.NewGorm(db)
	svc := NewService(st, st, cache.NewMemory())

	require.NoError(t, svc.Activate(ctx))
	require.NoError(t, svc.Save(ctx, formOf("both", true, "noindex_seo_search", "noimageindex_seo_feed")))
	require.NoError(t, svc.SaveOverride(ctx, 11, models.Override{Enabled: true, Directives: map[models.Directive]bool{models.NoFollow: true}}))

	cfg, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled(models.ContextSearch, models.NoIndex))
	assert.True(t, cfg.Enabled(models.ContextFeed, models.NoImageIndex))

	ov, err := svc.GetOverride(ctx, 11)
	require.NoError(t, err)
	require.NotNil(t, ov)
	assert.Equal(t, models.DirectiveSet{models.NoFollow}, ov.Set())
}
