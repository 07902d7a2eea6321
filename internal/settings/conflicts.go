package settings

import "noindex-seo/internal/models"

// Integration is another SEO layer that also writes robots directives.
type Integration struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

var KnownIntegrations = []Integration{
	{"all-in-one-seo-pack", "All in One SEO"},
	{"premium-seo-pack", "Premium SEO Pack"},
	{"seo-by-rank-math", "Rank Math SEO"},
	{"wp-seopress", "SEOPress"},
	{"slim-seo", "Slim SEO"},
	{"squirrly-seo", "Squirrly SEO"},
	{"autodescription", "The SEO Framework"},
	{"wordpress-seo", "Yoast SEO"},
}

// DetectConflict returns the first known integration that is active, unless
// the warnings are switched off.
func DetectConflict(cfg models.GlobalConfig, active []string) (Integration, bool) {
	if cfg.SuppressConflictWarnings {
		return Integration{}, false
	}
	on := make(map[string]bool, len(active))
	for _, a := range active {
		on[a] = true
	}
	for _, in := range KnownIntegrations {
		if on[in.Slug] {
			return in, true
		}
	}
	return Integration{}, false
}
