package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"noindex-seo/internal/models"
	"noindex-seo/internal/robots"
	"noindex-seo/internal/store"
)

const (
	MetaOverride     = "_noindex_seo_override"
	metaPrefix       = "_noindex_seo_"
	StateKeyOverride = "override"
)

func MetaDirectiveKey(d models.Directive) string { return metaPrefix + string(d) }

func metaKeys() []string {
	keys := []string{MetaOverride}
	for _, d := range models.AllDirectives {
		keys = append(keys, MetaDirectiveKey(d))
	}
	return keys
}

func (s *Service) metaInt(ctx context.Context, itemID uint64, key string) (int, error) {
	v, err := s.meta.GetMeta(ctx, itemID, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return absint(v), nil
}

// GetOverride returns nil when the item has no enabled override.
func (s *Service) GetOverride(ctx context.Context, itemID uint64) (*models.Override, error) {
	on, err := s.metaInt(ctx, itemID, MetaOverride)
	if err != nil {
		return nil, fmt.Errorf("read override %d: %w", itemID, err)
	}
	if on != 1 {
		return nil, nil
	}
	ov := &models.Override{Enabled: true, Directives: map[models.Directive]bool{}}
	for _, d := range models.AllDirectives {
		v, err := s.metaInt(ctx, itemID, MetaDirectiveKey(d))
		if err != nil {
			return nil, fmt.Errorf("read override %d: %w", itemID, err)
		}
		ov.Directives[d] = v == 1
	}
	return ov, nil
}

// SaveOverride writes the override of one item. A disabled override removes
// the stored directives.
func (s *Service) SaveOverride(ctx context.Context, itemID uint64, ov models.Override) error {
	if err := s.requireGranular(ctx); err != nil {
		return err
	}
	if err := s.meta.SetMeta(ctx, itemID, MetaOverride, boolValue(ov.Enabled)); err != nil {
		return err
	}
	if !ov.Enabled {
		s.metrics.RecordOverrideSave("disable")
		return s.ClearDirectives(ctx, itemID)
	}
	for _, d := range models.AllDirectives {
		if err := s.meta.SetMeta(ctx, itemID, MetaDirectiveKey(d), boolValue(ov.Directives[d])); err != nil {
			return err
		}
	}
	s.metrics.RecordOverrideSave("enable")
	return nil
}

func (s *Service) ClearDirectives(ctx context.Context, itemID uint64) error {
	for _, d := range models.AllDirectives {
		if err := s.meta.DeleteMeta(ctx, itemID, MetaDirectiveKey(d)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteItem drops all robots meta of an item that no longer exists.
func (s *Service) DeleteItem(ctx context.Context, itemID uint64) error {
	if err := s.meta.DeleteMeta(ctx, itemID, MetaOverride); err != nil {
		return err
	}
	return s.ClearDirectives(ctx, itemID)
}

// BulkEnable switches the override flag on for many items, leaving any stored
// directives as they are. It returns how many items were touched.
func (s *Service) BulkEnable(ctx context.Context, itemIDs []uint64) (int, error) {
	if err := s.requireGranular(ctx); err != nil {
		return 0, err
	}
	ids := cleanIDs(itemIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.meta.UpsertMetaBulk(ctx, ids, MetaOverride, "1"); err != nil {
		return 0, err
	}
	s.metrics.RecordOverrideSave("bulk_enable")
	return len(ids), nil
}

// BulkDisable switches the override off and removes the directives.
func (s *Service) BulkDisable(ctx context.Context, itemIDs []uint64) (int, error) {
	if err := s.requireGranular(ctx); err != nil {
		return 0, err
	}
	ids := cleanIDs(itemIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.meta.UpsertMetaBulk(ctx, ids, MetaOverride, "0"); err != nil {
		return 0, err
	}
	for _, d := range models.AllDirectives {
		if _, err := s.meta.DeleteMetaBulk(ctx, ids, MetaDirectiveKey(d)); err != nil {
			return 0, err
		}
	}
	s.metrics.RecordOverrideSave("bulk_disable")
	return len(ids), nil
}

func (s *Service) ItemsWithOverride(ctx context.Context) ([]uint64, error) {
	return s.meta.ItemsWithMeta(ctx, MetaOverride, "1")
}

func (s *Service) requireGranular(ctx context.Context) error {
	on, err := s.flag(ctx, KeyGranular)
	if err != nil {
		return err
	}
	if !on {
		return ErrGranularDisabled
	}
	return nil
}

func cleanIDs(ids []uint64) []uint64 {
	seen := map[uint64]bool{}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ItemPreview is what an editor sees for one item: what the global settings
// would apply and what actually applies.
type ItemPreview struct {
	ItemID    uint64              `json:"itemId"`
	Context   models.Context      `json:"context"`
	Global    models.DirectiveSet `json:"global"`
	Override  *models.Override    `json:"override,omitempty"`
	Effective models.DirectiveSet `json:"effective"`
}

// Preview evaluates an item as a page (isPage) or a single post.
func (s *Service) Preview(ctx context.Context, itemID uint64, isPage bool) (ItemPreview, error) {
	cfg, err := s.Load(ctx)
	if err != nil {
		return ItemPreview{}, err
	}
	c := models.ContextSingle
	if isPage {
		c = models.ContextPage
	}
	p := ItemPreview{ItemID: itemID, Context: c, Global: robots.CollectActive(c, cfg)}
	if cfg.GranularEnabled {
		if p.Override, err = s.GetOverride(ctx, itemID); err != nil {
			return ItemPreview{}, err
		}
	}
	p.Effective = robots.ResolveForItem(p.Override, c, cfg)
	return p, nil
}

// ItemState is the flat row data editors round-trip through list views:
// "override" plus one 0/1 entry per directive.
type ItemState map[string]int

func (s *Service) State(ctx context.Context, itemID uint64) (ItemState, error) {
	st := ItemState{}
	for _, key := range metaKeys() {
		v, err := s.metaInt(ctx, itemID, key)
		if err != nil {
			return nil, err
		}
		name := key[len(metaPrefix):]
		st[name] = v
	}
	return st, nil
}

// ParseState decodes row data cached by a client. Values may be numbers,
// bools or numeric strings. ok is false when raw is not a JSON object; such
// state must not be saved.
func ParseState(raw string) (ItemState, bool) {
	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil || loose == nil {
		return ItemState{}, false
	}
	st := ItemState{}
	for k, v := range loose {
		switch n := v.(type) {
		case float64:
			st[k] = int(n)
		case bool:
			if n {
				st[k] = 1
			} else {
				st[k] = 0
			}
		case string:
			st[k] = absint(n)
		}
	}
	return st, true
}

func (st ItemState) Override() models.Override {
	ov := models.Override{Enabled: st[StateKeyOverride] == 1, Directives: map[models.Directive]bool{}}
	for _, d := range models.AllDirectives {
		ov.Directives[d] = st[string(d)] == 1
	}
	return ov
}
