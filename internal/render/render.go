package render

import (
	"context"
	"regexp"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/variables"
)

// placeholderRe matches ${NAME} tokens over the variable vocabulary's
// character set. Anything else is literal text.
var placeholderRe = regexp.MustCompile(`\$\{([A-Z][A-Z0-9_]*)\}`)

// Renderer substitutes resolved variables into templates.
// Unknown placeholders pass through verbatim.
type Renderer struct {
	vars *variables.Context
}

// NewRenderer builds a renderer over one evaluation's variable context.
// Params: variable context, resolved lazily during Render.
// Returns: ready renderer.
func NewRenderer(vars *variables.Context) *Renderer {
	return &Renderer{vars: vars}
}

// Render replaces every known ${VARIABLE} occurrence in template.
// Params: template text.
// Returns: rendered text; unknown placeholders are left as-is.
func (r *Renderer) Render(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		name := variables.Name(token[2 : len(token)-1])
		value, ok := r.vars.Value(name)
		if !ok {
			return token
		}
		return value
	})
}

// FetchFunc performs the injection GET with the evaluation's proxy and
// TLS trust policy already bound.
type FetchFunc func(ctx context.Context, url string) (string, error)

// ApplyInjection runs the optional secondary fetch step for one
// notification and installs the extracted value.
// Params: request-scoped context, notification under evaluation, bound
// fetch function, and the evaluation's variable context.
// Returns: nothing. Fetch failure or no regexp match installs the empty
// string; the notification still fires.
func (r *Renderer) ApplyInjection(ctx context.Context, n settings.Notification, fetch FetchFunc, vars *variables.Context) {
	if !n.HasInjection() {
		return
	}
	body, err := fetch(ctx, r.Render(n.InjectionURL))
	if err != nil {
		vars.Set(variables.InjectionURLValue, "")
		return
	}
	value, ok := n.InjectionExtract(body)
	if !ok {
		vars.Set(variables.InjectionURLValue, "")
		return
	}
	vars.Set(variables.InjectionURLValue, value)
}
