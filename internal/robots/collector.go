package robots

import "noindex-seo/internal/models"

// CollectActive returns the directives switched on for ctx. Header-only contexts
// yield nothing while the method is meta, whatever the stored flags say.
func CollectActive(ctx models.Context, cfg models.GlobalConfig) models.DirectiveSet {
	if ctx.HeaderOnly() && !cfg.Method.IncludesHeader() {
		return models.DirectiveSet{}
	}
	var on []models.Directive
	for _, d := range models.AllDirectives {
		if cfg.Enabled(ctx, d) {
			on = append(on, d)
		}
	}
	return models.NewDirectiveSet(on...)
}
