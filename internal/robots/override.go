package robots

import "noindex-seo/internal/models"

// ResolveForItem gives an enabled override full precedence over the global
// settings. An enabled override with no directives means "no restrictions".
func ResolveForItem(ov *models.Override, ctx models.Context, cfg models.GlobalConfig) models.DirectiveSet {
	if ov != nil && ov.Enabled {
		return ov.Set()
	}
	return CollectActive(ctx, cfg)
}
