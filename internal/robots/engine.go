package robots

import "noindex-seo/internal/models"

const (
	SourceNone     = "none"
	SourceOverride = "override"
	SourceGlobal   = "global"
)

// Request is everything one evaluation needs. Flags are the masked context flags.
type Request struct {
	Flags       map[models.Context]bool
	Config      models.GlobalConfig
	Override    *models.Override
	HeadersSent bool
}

type Engine struct {
	order []models.Context
}

func NewEngine(order []models.Context) *Engine {
	if len(order) == 0 {
		order = DefaultOrder
	}
	return &Engine{order: order}
}

func (e *Engine) Order() []models.Context { return e.order }

// Resolve picks the directive set. Overrides win on singular requests when
// granular control is on. Otherwise matched contexts are tried in priority
// order and the first one carrying directives is used.
func (e *Engine) Resolve(req Request) models.Decision {
	if req.Config.GranularEnabled && req.Override != nil && req.Override.Enabled && IsSingular(req.Flags) {
		ctx, _ := Resolve(req.Flags, e.order)
		return models.Decision{
			Context:    ctx,
			Source:     SourceOverride,
			Directives: ResolveForItem(req.Override, ctx, req.Config),
		}
	}
	for _, ctx := range Matches(req.Flags, e.order) {
		set := CollectActive(ctx, req.Config)
		if len(set) > 0 {
			return models.Decision{Context: ctx, Source: SourceGlobal, Directives: set}
		}
	}
	return models.Decision{Source: SourceNone, Directives: models.DirectiveSet{}}
}

func (e *Engine) Evaluate(req Request) models.Decision {
	d := e.Resolve(req)
	d.Plan = Emit(d.Directives, req.Config.Method, req.HeadersSent)
	return d
}

// IsSingular reports whether the flags describe a single content item.
func IsSingular(flags map[models.Context]bool) bool {
	return flags[models.ContextSingle] || flags[models.ContextPage] ||
		flags[models.ContextAttachment] || flags[models.ContextSingular]
}
