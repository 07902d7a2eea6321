package settings

import (
	"context"
	"fmt"
	"strconv"

	"noindex-seo/internal/models"
)

// CheckMigration brings the stored options up to CurrentVersion. It reports
// whether anything ran; at the current version it is a no-op.
func (s *Service) CheckMigration(ctx context.Context) (bool, error) {
	v, err := s.intOption(ctx, KeyVersion)
	if err != nil {
		return false, fmt.Errorf("read config version: %w", err)
	}
	if v >= CurrentVersion {
		return false, nil
	}
	if err := s.migrateToV2(ctx); err != nil {
		return false, err
	}
	s.log.WithField("from", v).Infof("options migrated to version %d", CurrentVersion)
	return true, nil
}

// Version 1 only stored noindex per context. The existing noindex values are
// kept; the four newer directives start off.
func (s *Service) migrateToV2(ctx context.Context) error {
	for _, c := range models.AllContexts {
		for _, d := range models.AllDirectives[1:] {
			if _, err := s.options.AddOption(ctx, models.OptionKey(d, c), "0"); err != nil {
				return fmt.Errorf("migrate %s: %w", models.OptionKey(d, c), err)
			}
		}
	}
	if err := s.options.SetOption(ctx, KeyVersion, strconv.Itoa(CurrentVersion)); err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	s.Invalidate(ctx)
	return nil
}
