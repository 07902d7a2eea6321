// Package robots turns page context flags and settings into robots directives.
package robots

import "noindex-seo/internal/models"

// DefaultOrder is the resolution priority, most specific first. The header-only
// feed contexts and robots.txt come last: nothing above can match alongside them.
var DefaultOrder = []models.Context{
	models.ContextSingle,
	models.ContextPage,
	models.ContextPrivacyPolicy,
	models.ContextAttachment,
	models.ContextCategory,
	models.ContextTag,
	models.ContextAuthor,
	models.ContextPostTypeArchive,
	models.ContextDate,
	models.ContextDay,
	models.ContextMonth,
	models.ContextYear,
	models.ContextArchive,
	models.ContextSearch,
	models.ContextError,
	models.ContextFrontPage,
	models.ContextHome,
	models.ContextSingular,
	models.ContextPaged,
	models.ContextPreview,
	models.ContextCustomizePreview,
	models.ContextTime,
	models.ContextCommentFeed,
	models.ContextFeed,
	models.ContextRobots,
}

// Resolve returns the first context in order whose flag is set.
//
// Overlapping predicates must already be masked by the caller (archive must not
// be set together with category, for instance); Resolve does not second-guess
// the flags it is given.
func Resolve(flags map[models.Context]bool, order []models.Context) (models.Context, bool) {
	for _, c := range order {
		if flags[c] {
			return c, true
		}
	}
	return "", false
}

// Matches returns every flagged context, in priority order.
func Matches(flags map[models.Context]bool, order []models.Context) []models.Context {
	var out []models.Context
	for _, c := range order {
		if flags[c] {
			out = append(out, c)
		}
	}
	return out
}
