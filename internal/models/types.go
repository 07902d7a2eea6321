package models

import (
	"strings"
)

type Context string

const (
	ContextError            Context = "error"
	ContextArchive          Context = "archive"
	ContextAttachment       Context = "attachment"
	ContextAuthor           Context = "author"
	ContextCategory         Context = "category"
	ContextCommentFeed      Context = "comment_feed"
	ContextCustomizePreview Context = "customize_preview"
	ContextDate             Context = "date"
	ContextDay              Context = "day"
	ContextFeed             Context = "feed"
	ContextFrontPage        Context = "front_page"
	ContextHome             Context = "home"
	ContextMonth            Context = "month"
	ContextPage             Context = "page"
	ContextPaged            Context = "paged"
	ContextPostTypeArchive  Context = "post_type_archive"
	ContextPreview          Context = "preview"
	ContextPrivacyPolicy    Context = "privacy_policy"
	ContextRobots           Context = "robots"
	ContextSearch           Context = "search"
	ContextSingle           Context = "single"
	ContextSingular         Context = "singular"
	ContextTag              Context = "tag"
	ContextTime             Context = "time"
	ContextYear             Context = "year"
)

// AllContexts is the storage set: every context that owns a row of directive options.
var AllContexts = []Context{
	ContextError, ContextArchive, ContextAttachment, ContextAuthor, ContextCategory,
	ContextCommentFeed, ContextCustomizePreview, ContextDate, ContextDay, ContextFeed,
	ContextFrontPage, ContextHome, ContextMonth, ContextPage, ContextPaged,
	ContextPostTypeArchive, ContextPreview, ContextPrivacyPolicy, ContextRobots, ContextSearch,
	ContextSingle, ContextSingular, ContextTag, ContextTime, ContextYear,
}

// HeaderOnlyContexts only carry directives over the X-Robots-Tag header.
var HeaderOnlyContexts = map[Context]struct{}{
	ContextAttachment:  {},
	ContextFeed:        {},
	ContextCommentFeed: {},
}

func (c Context) Valid() bool {
	for _, k := range AllContexts {
		if k == c {
			return true
		}
	}
	return false
}

func (c Context) HeaderOnly() bool {
	_, ok := HeaderOnlyContexts[c]
	return ok
}

type Directive string

const (
	NoIndex      Directive = "noindex"
	NoFollow     Directive = "nofollow"
	NoArchive    Directive = "noarchive"
	NoSnippet    Directive = "nosnippet"
	NoImageIndex Directive = "noimageindex"
)

// AllDirectives is in canonical emission order.
var AllDirectives = []Directive{NoIndex, NoFollow, NoArchive, NoSnippet, NoImageIndex}

func (d Directive) Valid() bool {
	for _, k := range AllDirectives {
		if k == d {
			return true
		}
	}
	return false
}

// OptionKey is the option name of one (directive, context) pair, e.g. "nofollow_seo_search".
func OptionKey(d Directive, c Context) string {
	return string(d) + "_seo_" + string(c)
}

// DirectiveSet is always a canonical-ordered subset of AllDirectives.
type DirectiveSet []Directive

// NewDirectiveSet drops unknown and duplicate names and sorts into canonical order.
func NewDirectiveSet(names ...Directive) DirectiveSet {
	seen := make(map[Directive]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	out := DirectiveSet{}
	for _, d := range AllDirectives {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// ParseDirectives accepts a comma or space separated list as found in robots meta content.
func ParseDirectives(s string) DirectiveSet {
	var names []Directive
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == ',' || r == ' ' }) {
		names = append(names, Directive(strings.TrimSpace(f)))
	}
	return NewDirectiveSet(names...)
}

func (s DirectiveSet) Has(d Directive) bool {
	for _, x := range s {
		if x == d {
			return true
		}
	}
	return false
}

func (s DirectiveSet) Strings() []string {
	out := make([]string, len(s))
	for i, d := range s {
		out[i] = string(d)
	}
	return out
}

func (s DirectiveSet) String() string { return strings.Join(s.Strings(), ", ") }

type Method string

const (
	MethodMeta   Method = "meta"
	MethodHeader Method = "header"
	MethodBoth   Method = "both"
)

// ParseMethod coerces anything unknown to MethodMeta.
func ParseMethod(s string) Method {
	switch m := Method(strings.TrimSpace(s)); m {
	case MethodMeta, MethodHeader, MethodBoth:
		return m
	}
	return MethodMeta
}

func (m Method) IncludesHeader() bool { return m == MethodHeader || m == MethodBoth }
func (m Method) IncludesMeta() bool   { return m == MethodMeta || m == MethodBoth }

type GlobalConfig struct {
	Flags                    map[Context]map[Directive]bool `json:"flags" yaml:"flags"`
	Method                   Method                         `json:"method" yaml:"method"`
	GranularEnabled          bool                           `json:"granularEnabled" yaml:"granularEnabled"`
	SuppressConflictWarnings bool                           `json:"suppressConflictWarnings" yaml:"suppressConflictWarnings"`
	ConfigVersion            int                            `json:"configVersion" yaml:"configVersion"`
}

// DefaultGlobalConfig is the state right after first activation.
func DefaultGlobalConfig() GlobalConfig {
	cfg := GlobalConfig{Flags: map[Context]map[Directive]bool{}, Method: MethodMeta}
	for _, c := range AllContexts {
		cfg.Flags[c] = map[Directive]bool{}
		for _, d := range AllDirectives {
			cfg.Flags[c][d] = false
		}
	}
	return cfg
}

func (g GlobalConfig) Enabled(c Context, d Directive) bool {
	return g.Flags[c][d]
}

func (g *GlobalConfig) Set(c Context, d Directive, on bool) {
	if g.Flags == nil {
		g.Flags = map[Context]map[Directive]bool{}
	}
	if g.Flags[c] == nil {
		g.Flags[c] = map[Directive]bool{}
	}
	g.Flags[c][d] = on
}

type Override struct {
	Enabled    bool               `json:"enabled"`
	Directives map[Directive]bool `json:"directives"`
}

func (o Override) Set() DirectiveSet {
	var names []Directive
	for d, on := range o.Directives {
		if on {
			names = append(names, d)
		}
	}
	return NewDirectiveSet(names...)
}

type EmissionPlan struct {
	Header    string       `json:"header,omitempty"`
	HasHeader bool         `json:"hasHeader"`
	MetaFlags DirectiveSet `json:"metaFlags,omitempty"`
	HasMeta   bool         `json:"hasMeta"`
	Fallback  bool         `json:"fallback,omitempty"`
}

func (p EmissionPlan) Empty() bool { return !p.HasHeader && !p.HasMeta }

// Query holds the raw page predicates of one request before masking.
type Query struct {
	IsSingle           bool   `json:"isSingle,omitempty"`
	IsPage             bool   `json:"isPage,omitempty"`
	IsAttachment       bool   `json:"isAttachment,omitempty"`
	IsPrivacyPolicy    bool   `json:"isPrivacyPolicy,omitempty"`
	IsCategory         bool   `json:"isCategory,omitempty"`
	IsTag              bool   `json:"isTag,omitempty"`
	IsAuthor           bool   `json:"isAuthor,omitempty"`
	IsPostTypeArchive  bool   `json:"isPostTypeArchive,omitempty"`
	IsDay              bool   `json:"isDay,omitempty"`
	IsMonth            bool   `json:"isMonth,omitempty"`
	IsYear             bool   `json:"isYear,omitempty"`
	IsTime             bool   `json:"isTime,omitempty"`
	IsDate             bool   `json:"isDate,omitempty"`
	IsArchive          bool   `json:"isArchive,omitempty"`
	IsSearch           bool   `json:"isSearch,omitempty"`
	Is404              bool   `json:"is404,omitempty"`
	IsFrontPage        bool   `json:"isFrontPage,omitempty"`
	IsHome             bool   `json:"isHome,omitempty"`
	IsSingular         bool   `json:"isSingular,omitempty"`
	IsPaged            bool   `json:"isPaged,omitempty"`
	IsPreview          bool   `json:"isPreview,omitempty"`
	IsCustomizePreview bool   `json:"isCustomizePreview,omitempty"`
	IsFeed             bool   `json:"isFeed,omitempty"`
	IsCommentFeed      bool   `json:"isCommentFeed,omitempty"`
	IsRobots           bool   `json:"isRobots,omitempty"`
	ItemID             uint64 `json:"itemId,omitempty"`
}

// Decision explains how a plan came about.
type Decision struct {
	Context    Context      `json:"context,omitempty"`
	Source     string       `json:"source"`
	Directives DirectiveSet `json:"directives"`
	Plan       EmissionPlan `json:"plan"`
}

// RobotsReport is what an audit saw on one live URL.
type RobotsReport struct {
	URL       string       `json:"url"`
	FinalURL  string       `json:"finalUrl,omitempty"`
	Status    int          `json:"status"`
	FetchMs   int64        `json:"fetchMs"`
	Header    []string     `json:"header,omitempty"`
	Meta      DirectiveSet `json:"meta,omitempty"`
	Effective DirectiveSet `json:"effective"`
}
