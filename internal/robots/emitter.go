package robots

import (
	"net/http"
	"strings"

	"noindex-seo/internal/models"
)

const HeaderName = "X-Robots-Tag"

// Emit plans how set reaches the client. A header that can no longer be sent
// degrades to meta flags.
func Emit(set models.DirectiveSet, method models.Method, headersSent bool) models.EmissionPlan {
	set = models.NewDirectiveSet(set...)
	method = models.ParseMethod(string(method))
	var plan models.EmissionPlan
	if len(set) == 0 {
		return plan
	}

	if method.IncludesHeader() && !headersSent {
		plan.Header = strings.Join(set.Strings(), ", ")
		plan.HasHeader = true
	}
	fallback := method.IncludesHeader() && headersSent
	if method.IncludesMeta() || fallback {
		plan.MetaFlags = set
		plan.HasMeta = true
		plan.Fallback = fallback
	}
	return plan
}

// ApplyHeader adds the header line without replacing values set upstream.
func ApplyHeader(h http.Header, plan models.EmissionPlan) {
	if !plan.HasHeader {
		return
	}
	h.Add(HeaderName, plan.Header)
}

// MergeRobots adds the meta flags to a robots tag list.
func MergeRobots(tags map[string]bool, plan models.EmissionPlan) map[string]bool {
	if tags == nil {
		tags = map[string]bool{}
	}
	if !plan.HasMeta {
		return tags
	}
	for _, d := range plan.MetaFlags {
		tags[string(d)] = true
	}
	return tags
}
