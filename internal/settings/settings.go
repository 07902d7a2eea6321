// Package settings reads and writes the global robots configuration and the
// per-item overrides on top of an option store, a meta store and a cache.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"noindex-seo/internal/cache"
	"noindex-seo/internal/metrics"
	"noindex-seo/internal/models"
	"noindex-seo/internal/store"
	"noindex-seo/pkg/logger"
)

const (
	KeyMethod        = "noindex_seo_config_method"
	KeyGranular      = "noindex_seo_config_granular"
	KeySuppressNotes = "noindex_seo_config_seoplugins"
	KeyVersion       = "noindex_seo_config_version"

	CacheKey   = "noindex_seo_options"
	DefaultTTL = time.Hour

	CurrentVersion = 2
)

var ErrGranularDisabled = errors.New("granular control is disabled")

type Service struct {
	options store.OptionStore
	meta    store.MetaStore
	cache   cache.Cache
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(options store.OptionStore, meta store.MetaStore, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		options: options,
		meta:    meta,
		cache:   c,
		ttl:     DefaultTTL,
		log:     logger.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// snapshot is every option Load needs, cached as one JSON value under CacheKey.
type snapshot struct {
	Pairs         map[string]int `json:"pairs"`
	Method        string         `json:"method"`
	Granular      int            `json:"granular"`
	SuppressNotes int            `json:"suppressNotes"`
	Version       int            `json:"version"`
}

// Load returns the current configuration from the cached snapshot. Save,
// migration and uninstall drop the snapshot; other writers wait for the TTL.
func (s *Service) Load(ctx context.Context) (models.GlobalConfig, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.GlobalConfig{}, err
	}
	cfg := models.DefaultGlobalConfig()
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			cfg.Set(c, d, snap.Pairs[models.OptionKey(d, c)] == 1)
		}
	}
	cfg.Method = models.ParseMethod(snap.Method)
	cfg.GranularEnabled = snap.Granular == 1
	cfg.SuppressConflictWarnings = snap.SuppressNotes == 1
	cfg.ConfigVersion = snap.Version
	return cfg, nil
}

func (s *Service) snapshot(ctx context.Context) (snapshot, error) {
	raw, ok, err := s.cache.Get(ctx, CacheKey)
	if err != nil {
		s.log.WithError(err).Warnf("options cache read failed, using store")
	}
	if ok {
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err == nil && len(snap.Pairs) > 0 {
			s.metrics.RecordCache(true)
			return snap, nil
		}
	}
	s.metrics.RecordCache(false)

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return snapshot{}, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		if err := s.cache.Set(ctx, CacheKey, raw, s.ttl); err != nil {
			s.log.WithError(err).Warnf("options cache write failed")
		}
	}
	return snap, nil
}

func (s *Service) readSnapshot(ctx context.Context) (snapshot, error) {
	snap := snapshot{Pairs: make(map[string]int, len(models.AllContexts)*len(models.AllDirectives))}
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			key := models.OptionKey(d, c)
			v, err := s.intOption(ctx, key)
			if err != nil {
				return snapshot{}, err
			}
			snap.Pairs[key] = v
		}
	}

	var err error
	if snap.Method, err = s.option(ctx, KeyMethod, string(models.MethodMeta)); err != nil {
		return snapshot{}, err
	}
	scalars := []struct {
		key string
		dst *int
	}{
		{KeyGranular, &snap.Granular},
		{KeySuppressNotes, &snap.SuppressNotes},
		{KeyVersion, &snap.Version},
	}
	for _, sc := range scalars {
		if *sc.dst, err = s.intOption(ctx, sc.key); err != nil {
			return snapshot{}, err
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, CacheKey); err != nil {
		s.log.WithError(err).Warnf("options cache delete failed")
	}
}

func (s *Service) option(ctx context.Context, name, def string) (string, error) {
	v, err := s.options.GetOption(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Service) intOption(ctx context.Context, name string) (int, error) {
	v, err := s.option(ctx, name, "0")
	if err != nil {
		return 0, err
	}
	return absint(v), nil
}

func (s *Service) flag(ctx context.Context, name string) (bool, error) {
	v, err := s.intOption(ctx, name)
	return v == 1, err
}

// absint parses leniently: anything unparsable is 0, negatives lose their sign.
func absint(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	if n < 0 {
		return -n
	}
	return n
}

func boolValue(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// Form is a submitted settings form: checkbox values keyed by option name
// ("noindex_seo_search" = "1") plus the scalar fields, all as raw strings.
type Form struct {
	Values                   map[string]string
	Method                   string
	Granular                 string
	SuppressConflictWarnings string
}

func FormFromValues(v url.Values) Form {
	f := Form{
		Values:                   map[string]string{},
		Method:                   v.Get(KeyMethod),
		Granular:                 v.Get(KeyGranular),
		SuppressConflictWarnings: v.Get(KeySuppressNotes),
	}
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			key := models.OptionKey(d, c)
			if v.Has(key) {
				f.Values[key] = v.Get(key)
			}
		}
	}
	return f
}

func FormFromConfig(cfg models.GlobalConfig) Form {
	f := Form{
		Values:                   map[string]string{},
		Method:                   string(cfg.Method),
		Granular:                 boolValue(cfg.GranularEnabled),
		SuppressConflictWarnings: boolValue(cfg.SuppressConflictWarnings),
	}
	for c, ds := range cfg.Flags {
		for d, on := range ds {
			if on {
				f.Values[models.OptionKey(d, c)] = "1"
			}
		}
	}
	return f
}

// Save stores a whole form. Every pair is rewritten: "1" turns it on, anything
// else off, and header-only contexts are forced off unless the submitted method
// sends headers. Unknown methods become meta.
func (s *Service) Save(ctx context.Context, f Form) error {
	method := models.ParseMethod(f.Method)
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			key := models.OptionKey(d, c)
			on := strings.TrimSpace(f.Values[key]) == "1"
			if c.HeaderOnly() && !method.IncludesHeader() {
				on = false
			}
			if err := s.options.SetOption(ctx, key, boolValue(on)); err != nil {
				return err
			}
		}
	}

	scalars := []struct{ key, value string }{
		{KeySuppressNotes, boolValue(absint(f.SuppressConflictWarnings) == 1)},
		{KeyMethod, string(method)},
		{KeyGranular, boolValue(absint(f.Granular) == 1)},
	}
	for _, kv := range scalars {
		if err := s.options.SetOption(ctx, kv.key, kv.value); err != nil {
			return err
		}
	}

	s.Invalidate(ctx)
	s.metrics.RecordSettingsSave()
	s.log.WithField("method", method).Infof("settings saved")
	return nil
}

// Activate seeds defaults without touching existing values and runs any
// pending migration.
func (s *Service) Activate(ctx context.Context) error {
	defaults := map[string]string{
		KeyMethod:        string(models.MethodMeta),
		KeyGranular:      "0",
		KeySuppressNotes: "0",
	}
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			defaults[models.OptionKey(d, c)] = "0"
		}
	}
	seeded := false
	for k, v := range defaults {
		added, err := s.options.AddOption(ctx, k, v)
		if err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		seeded = seeded || added
	}
	migrated, err := s.CheckMigration(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if seeded && !migrated {
		s.Invalidate(ctx)
	}
	return nil
}

type UninstallReport struct {
	Options int64 `json:"options"`
	Meta    int64 `json:"meta"`
}

// Uninstall removes every option, the cache entry and all item meta.
func (s *Service) Uninstall(ctx context.Context) (UninstallReport, error) {
	var rep UninstallReport
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives {
			if err := s.options.DeleteOption(ctx, models.OptionKey(d, c)); err != nil {
				return rep, fmt.Errorf("uninstall: %w", err)
			}
		}
	}
	for _, k := range []string{KeySuppressNotes, KeyMethod, KeyGranular, KeyVersion} {
		if err := s.options.DeleteOption(ctx, k); err != nil {
			return rep, fmt.Errorf("uninstall: %w", err)
		}
	}
	s.Invalidate(ctx)

	// Leftovers from partial installs or contexts no longer known.
	for _, d := range models.AllDirectives {
		n, err := s.options.DeleteOptionsByPrefix(ctx, string(d)+"_seo_")
		if err != nil {
			return rep, fmt.Errorf("uninstall: %w", err)
		}
		rep.Options += n
	}
	for _, key := range metaKeys() {
		n, err := s.meta.DeleteMetaKey(ctx, key)
		if err != nil {
			return rep, fmt.Errorf("uninstall: %w", err)
		}
		rep.Meta += n
	}
	s.log.WithFields(map[string]any{"options": rep.Options, "meta": rep.Meta}).Infof("uninstalled")
	return rep, nil
}
