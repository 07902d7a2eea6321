package classifier

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"noindex-seo/internal/config"
	"noindex-seo/internal/models"
)

// Hint headers an origin may set on its response to state the context
// directly. They are removed before the response leaves the proxy.
const (
	HintContext = "X-Robots-Context"
	HintItem    = "X-Robots-Item"
)

type rule struct {
	re        *regexp.Regexp
	query     string
	sets      []models.Context
	itemGroup int
}

// Classifier turns a request into the page predicates of models.Query.
// Rules are tried in order and the first match wins.
type Classifier struct {
	rules []rule
}

// DefaultRules follow the usual blog permalink layout.
var DefaultRules = []config.RouteRule{
	{Pattern: `^/robots\.txt$`, Sets: []string{"robots"}},
	{Pattern: `^/comments/feed/?$`, Sets: []string{"comment_feed", "feed"}},
	{Pattern: `^/.+/feed/?$`, Sets: []string{"feed"}},
	{Pattern: `^/feed/?$`, Sets: []string{"feed"}},
	{Pattern: `^/?$`, Query: "s", Sets: []string{"search"}},
	{Pattern: `^/?$`, Query: "p", Sets: []string{"single"}},
	{Pattern: `^/?$`, Query: "page_id", Sets: []string{"page"}},
	{Pattern: `^/?$`, Query: "attachment_id", Sets: []string{"attachment"}},
	{Pattern: `^/search/[^/]+/?$`, Sets: []string{"search"}},
	{Pattern: `^/privacy-policy/?$`, Sets: []string{"page", "privacy_policy"}},
	{Pattern: `^/\d{4}/\d{2}/\d{2}/[^/]+/attachment/[^/]+/?$`, Sets: []string{"attachment"}},
	{Pattern: `^/\d{4}/\d{2}/\d{2}/[^/]+/?$`, Sets: []string{"single"}},
	{Pattern: `^/\d{4}/\d{2}/\d{2}/?$`, Sets: []string{"day"}},
	{Pattern: `^/\d{4}/\d{2}/?$`, Sets: []string{"month"}},
	{Pattern: `^/\d{4}/?$`, Sets: []string{"year"}},
	{Pattern: `^/category/.+$`, Sets: []string{"category"}},
	{Pattern: `^/tag/[^/]+/?$`, Sets: []string{"tag"}},
	{Pattern: `^/author/[^/]+/?$`, Sets: []string{"author"}},
	{Pattern: `^/type/[^/]+/?$`, Sets: []string{"post_type_archive"}},
	{Pattern: `^/archives/(\d+)/?$`, Sets: []string{"single"}, ItemGroup: 1},
	{Pattern: `^/?$`, Sets: []string{"front_page", "home"}},
	{Pattern: `^/[^/]+/?$`, Sets: []string{"page"}},
}

var pagedRe = regexp.MustCompile(`^(.*?)/page/(\d+)/?$`)

// New compiles rules; an empty list means DefaultRules.
func New(rules []config.RouteRule) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	c := &Classifier{}
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		sets, err := parseContexts(r.Sets)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		if r.ItemGroup > re.NumSubexp() {
			return nil, fmt.Errorf("route %d: item group %d out of range", i, r.ItemGroup)
		}
		c.rules = append(c.rules, rule{re: re, query: r.Query, sets: sets, itemGroup: r.ItemGroup})
	}
	return c, nil
}

func parseContexts(names []string) ([]models.Context, error) {
	out := make([]models.Context, 0, len(names))
	for _, n := range names {
		c := models.Context(strings.TrimSpace(strings.ToLower(n)))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown context %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// Classify looks at path and query only; the response can still refine the
// result through ApplyResponse.
func (c *Classifier) Classify(r *http.Request) models.Query {
	var q models.Query
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	params := r.URL.Query()

	if m := pagedRe.FindStringSubmatch(path); m != nil {
		if n, _ := strconv.Atoi(m[2]); n > 1 {
			q.IsPaged = true
		}
		path = m[1]
		if path == "" {
			path = "/"
		}
	}
	if n, _ := strconv.Atoi(params.Get("paged")); n > 1 {
		q.IsPaged = true
	}
	if params.Get("preview") == "true" {
		q.IsPreview = true
	}
	if params.Has("customize_changeset_uuid") {
		q.IsCustomizePreview = true
	}

	for _, ru := range c.rules {
		m := ru.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if ru.query != "" && !params.Has(ru.query) {
			continue
		}
		for _, s := range ru.sets {
			set(&q, s)
		}
		switch {
		case ru.itemGroup > 0:
			q.ItemID, _ = strconv.ParseUint(m[ru.itemGroup], 10, 64)
		case ru.query != "":
			q.ItemID, _ = strconv.ParseUint(params.Get(ru.query), 10, 64)
		}
		break
	}
	return normalize(q)
}

// ApplyResponse folds the origin's status and hint headers into q and strips
// the hints from h. A context hint replaces the path classification.
func ApplyResponse(q models.Query, status int, h http.Header) models.Query {
	if hint := h.Get(HintContext); hint != "" {
		keep := models.Query{
			IsPaged:            q.IsPaged,
			IsPreview:          q.IsPreview,
			IsCustomizePreview: q.IsCustomizePreview,
			ItemID:             q.ItemID,
		}
		for _, name := range strings.Split(hint, ",") {
			c := models.Context(strings.TrimSpace(strings.ToLower(name)))
			if c.Valid() {
				set(&keep, c)
			}
		}
		q = keep
	}
	if id, err := strconv.ParseUint(strings.TrimSpace(h.Get(HintItem)), 10, 64); err == nil {
		q.ItemID = id
	}
	h.Del(HintContext)
	h.Del(HintItem)

	if status == http.StatusNotFound {
		q.Is404 = true
	}
	return normalize(q)
}

func set(q *models.Query, c models.Context) {
	switch c {
	case models.ContextSingle:
		q.IsSingle = true
	case models.ContextPage:
		q.IsPage = true
	case models.ContextAttachment:
		q.IsAttachment = true
	case models.ContextPrivacyPolicy:
		q.IsPrivacyPolicy = true
	case models.ContextCategory:
		q.IsCategory = true
	case models.ContextTag:
		q.IsTag = true
	case models.ContextAuthor:
		q.IsAuthor = true
	case models.ContextPostTypeArchive:
		q.IsPostTypeArchive = true
	case models.ContextDay:
		q.IsDay = true
	case models.ContextMonth:
		q.IsMonth = true
	case models.ContextYear:
		q.IsYear = true
	case models.ContextTime:
		q.IsTime = true
	case models.ContextDate:
		q.IsDate = true
	case models.ContextArchive:
		q.IsArchive = true
	case models.ContextSearch:
		q.IsSearch = true
	case models.ContextError:
		q.Is404 = true
	case models.ContextFrontPage:
		q.IsFrontPage = true
	case models.ContextHome:
		q.IsHome = true
	case models.ContextSingular:
		q.IsSingular = true
	case models.ContextPaged:
		q.IsPaged = true
	case models.ContextPreview:
		q.IsPreview = true
	case models.ContextCustomizePreview:
		q.IsCustomizePreview = true
	case models.ContextFeed:
		q.IsFeed = true
	case models.ContextCommentFeed:
		q.IsCommentFeed = true
	case models.ContextRobots:
		q.IsRobots = true
	}
}

// normalize fills in the implied predicates: any single item is singular,
// any dated archive is a date archive and every taxonomy/date listing is an
// archive.
func normalize(q models.Query) models.Query {
	if q.IsSingle || q.IsPage || q.IsAttachment {
		q.IsSingular = true
	}
	if q.IsDay || q.IsMonth || q.IsYear || q.IsTime {
		q.IsDate = true
	}
	if q.IsCategory || q.IsTag || q.IsAuthor || q.IsPostTypeArchive || q.IsDate {
		q.IsArchive = true
	}
	if q.IsCommentFeed {
		q.IsFeed = true
	}
	return q
}

// Flags masks the raw predicates so that broad contexts only match when no
// narrower one does.
func Flags(q models.Query) map[models.Context]bool {
	anyDate := q.IsDay || q.IsMonth || q.IsYear || q.IsTime
	return map[models.Context]bool{
		models.ContextSingle:           q.IsSingle,
		models.ContextPage:             q.IsPage,
		models.ContextAttachment:       q.IsAttachment,
		models.ContextPrivacyPolicy:    q.IsPrivacyPolicy,
		models.ContextCategory:         q.IsCategory,
		models.ContextTag:              q.IsTag,
		models.ContextAuthor:           q.IsAuthor,
		models.ContextPostTypeArchive:  q.IsPostTypeArchive,
		models.ContextDay:              q.IsDay,
		models.ContextMonth:            q.IsMonth,
		models.ContextYear:             q.IsYear,
		models.ContextTime:             q.IsTime,
		models.ContextDate:             q.IsDate && !anyDate,
		models.ContextArchive:          q.IsArchive && !(q.IsCategory || q.IsTag || q.IsAuthor || q.IsPostTypeArchive || q.IsDate),
		models.ContextSearch:           q.IsSearch,
		models.ContextError:            q.Is404,
		models.ContextFrontPage:        q.IsFrontPage && !q.IsPaged && !q.IsHome,
		models.ContextHome:             q.IsHome && !q.IsPaged,
		models.ContextSingular:         q.IsSingular && !(q.IsSingle || q.IsPage || q.IsAttachment),
		models.ContextPaged:            q.IsPaged && !q.IsFrontPage && !q.IsHome,
		models.ContextPreview:          q.IsPreview,
		models.ContextCustomizePreview: q.IsCustomizePreview,
		models.ContextFeed:             q.IsFeed && !q.IsCommentFeed,
		models.ContextCommentFeed:      q.IsCommentFeed,
		models.ContextRobots:           q.IsRobots,
	}
}
