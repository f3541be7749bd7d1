package settings

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

// DefaultName labels notifications configured without a display name.
const DefaultName = "Notification"

// Method identifies the HTTP method used for dispatch.
// Params: constants GET, POST, PUT, or DELETE.
// Returns: normalized method usage across dispatch.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// ParseMethod converts raw method into a known Method.
// Params: raw method string from configuration.
// Returns: normalized method and validity flag.
func ParseMethod(raw string) (Method, bool) {
	method := Method(strings.ToUpper(strings.TrimSpace(raw)))
	switch method {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return method, true
	default:
		return "", false
	}
}

// TriggerIfMerge gates firing on the pull request's current mergeability.
// Params: constants ALWAYS, ONLY_IF_CAN_MERGE, or ONLY_IF_CONFLICTING.
// Returns: normalized mergeability condition used by trigger evaluation.
type TriggerIfMerge string

const (
	// TriggerAlways fires regardless of mergeability.
	TriggerAlways TriggerIfMerge = "ALWAYS"
	// TriggerOnlyIfCanMerge fires only when the pull request has no conflicts.
	TriggerOnlyIfCanMerge TriggerIfMerge = "ONLY_IF_CAN_MERGE"
	// TriggerOnlyIfConflicting fires only when the pull request has conflicts.
	TriggerOnlyIfConflicting TriggerIfMerge = "ONLY_IF_CONFLICTING"
)

// ParseTriggerIfMerge converts raw condition into a known TriggerIfMerge.
// Params: raw condition string from configuration.
// Returns: normalized condition and validity flag.
func ParseTriggerIfMerge(raw string) (TriggerIfMerge, bool) {
	condition := TriggerIfMerge(strings.ToUpper(strings.TrimSpace(raw)))
	switch condition {
	case TriggerAlways, TriggerOnlyIfCanMerge, TriggerOnlyIfConflicting:
		return condition, true
	default:
		return "", false
	}
}

// Header is one outbound header entry. Duplicate names are allowed and
// delivery order follows configuration order.
type Header struct {
	Name  string
	Value string
}

// Proxy holds one outbound proxy endpoint with optional credentials.
type Proxy struct {
	Server   string
	Port     int
	User     string
	Password string
}

// ValidationError reports one rejected notification field.
// Params: offending field name and human-readable reason.
// Returns: error consumed by configuration loading and admin surfaces.
type ValidationError struct {
	Field  string
	Reason string
}

// Error formats the validation failure.
// Params: none.
// Returns: "<field>: <reason>" string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotificationOpts carries every configurable notification field.
// Optional string fields treat blank or whitespace-only values as absent.
type NotificationOpts struct {
	ID                 string
	Name               string
	URL                string
	Method             Method
	User               string
	Password           string
	PostContent        string
	Headers            []Header
	Proxy              *Proxy
	Triggers           []domain.Action
	IgnoreStates       []domain.PullRequestState
	TriggerIfMerge     TriggerIfMerge
	FilterRegexp       string
	FilterString       string
	InjectionURL       string
	InjectionURLRegexp string
}

// Notification is one validated, immutable notification rule.
// Params: built exclusively through NewNotification.
// Returns: evaluation-time rule consumed by matcher, renderer, and dispatcher.
type Notification struct {
	ID                 string
	Name               string
	URL                string
	Method             Method
	User               string
	Password           string
	PostContent        string
	Headers            []Header
	Proxy              *Proxy
	Triggers           []domain.Action
	IgnoreStates       []domain.PullRequestState
	TriggerIfMerge     TriggerIfMerge
	FilterRegexp       string
	FilterString       string
	InjectionURL       string
	InjectionURLRegexp string

	filterRe    *regexp.Regexp
	injectionRe *regexp.Regexp
}

// NewNotification validates opts and builds an immutable notification.
// Params: raw notification fields from configuration or admin input.
// Returns: validated notification, or *ValidationError naming the bad field.
func NewNotification(opts NotificationOpts) (Notification, error) {
	n := Notification{
		ID:                 strings.TrimSpace(opts.ID),
		Name:               strings.TrimSpace(opts.Name),
		URL:                strings.TrimSpace(opts.URL),
		Method:             opts.Method,
		User:               strings.TrimSpace(opts.User),
		Password:           opts.Password,
		PostContent:        opts.PostContent,
		TriggerIfMerge:     opts.TriggerIfMerge,
		FilterRegexp:       strings.TrimSpace(opts.FilterRegexp),
		FilterString:       strings.TrimSpace(opts.FilterString),
		InjectionURL:       strings.TrimSpace(opts.InjectionURL),
		InjectionURLRegexp: strings.TrimSpace(opts.InjectionURLRegexp),
	}
	if strings.TrimSpace(opts.PostContent) == "" {
		n.PostContent = ""
	}

	if n.Name == "" {
		n.Name = DefaultName
	}
	if n.Method == "" {
		n.Method = MethodGet
	} else if _, ok := ParseMethod(string(n.Method)); !ok {
		return Notification{}, &ValidationError{Field: "method", Reason: fmt.Sprintf("unsupported method %q", opts.Method)}
	}
	if n.TriggerIfMerge == "" {
		n.TriggerIfMerge = TriggerAlways
	} else if _, ok := ParseTriggerIfMerge(string(n.TriggerIfMerge)); !ok {
		return Notification{}, &ValidationError{Field: "trigger_if_can_merge", Reason: fmt.Sprintf("unsupported condition %q", opts.TriggerIfMerge)}
	}

	if n.URL == "" {
		return Notification{}, &ValidationError{Field: "url", Reason: "url is required"}
	}
	parsed, err := url.Parse(n.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Notification{}, &ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not a valid url", n.URL)}
	}

	if n.FilterRegexp != "" {
		re, err := regexp.Compile(n.FilterRegexp)
		if err != nil {
			return Notification{}, &ValidationError{Field: "filter_regexp", Reason: fmt.Sprintf("does not compile: %v", err)}
		}
		if n.FilterString == "" {
			return Notification{}, &ValidationError{Field: "filter_string", Reason: "required when filter_regexp is set"}
		}
		n.filterRe = re
	}

	if n.InjectionURLRegexp != "" {
		re, err := regexp.Compile(n.InjectionURLRegexp)
		if err != nil {
			return Notification{}, &ValidationError{Field: "injection_url_regexp", Reason: fmt.Sprintf("does not compile: %v", err)}
		}
		n.injectionRe = re
	}

	for _, raw := range opts.Triggers {
		action, ok := domain.ParseAction(string(raw))
		if !ok {
			return Notification{}, &ValidationError{Field: "triggers", Reason: fmt.Sprintf("unsupported action %q", raw)}
		}
		n.Triggers = append(n.Triggers, action)
	}
	for _, raw := range opts.IgnoreStates {
		state, ok := domain.ParsePullRequestState(string(raw))
		if !ok {
			return Notification{}, &ValidationError{Field: "trigger_ignore_state", Reason: fmt.Sprintf("unsupported state %q", raw)}
		}
		n.IgnoreStates = append(n.IgnoreStates, state)
	}

	for _, h := range opts.Headers {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			return Notification{}, &ValidationError{Field: "headers", Reason: "header name must not be blank"}
		}
		n.Headers = append(n.Headers, Header{Name: name, Value: h.Value})
	}

	if opts.Proxy != nil {
		p := Proxy{
			Server:   strings.TrimSpace(opts.Proxy.Server),
			Port:     opts.Proxy.Port,
			User:     strings.TrimSpace(opts.Proxy.User),
			Password: opts.Proxy.Password,
		}
		if p.Server != "" {
			if p.Port <= 0 || p.Port > 65535 {
				return Notification{}, &ValidationError{Field: "proxy_port", Reason: fmt.Sprintf("port %d is out of range", p.Port)}
			}
			n.Proxy = &p
		}
	}

	return n, nil
}

// Opts reconstructs the raw fields this notification was built from.
// Params: none.
// Returns: opts that rebuild an equivalent notification through NewNotification.
func (n Notification) Opts() NotificationOpts {
	opts := NotificationOpts{
		ID:                 n.ID,
		Name:               n.Name,
		URL:                n.URL,
		Method:             n.Method,
		User:               n.User,
		Password:           n.Password,
		PostContent:        n.PostContent,
		Headers:            append([]Header(nil), n.Headers...),
		Triggers:           append([]domain.Action(nil), n.Triggers...),
		IgnoreStates:       append([]domain.PullRequestState(nil), n.IgnoreStates...),
		TriggerIfMerge:     n.TriggerIfMerge,
		FilterRegexp:       n.FilterRegexp,
		FilterString:       n.FilterString,
		InjectionURL:       n.InjectionURL,
		InjectionURLRegexp: n.InjectionURLRegexp,
	}
	if n.Proxy != nil {
		p := *n.Proxy
		opts.Proxy = &p
	}
	return opts
}

// TriggersOn reports whether action is in this notification's trigger set.
// Params: normalized action tag.
// Returns: true when the notification subscribes to action.
func (n Notification) TriggersOn(action domain.Action) bool {
	for _, trigger := range n.Triggers {
		if trigger == action {
			return true
		}
	}
	return false
}

// IgnoresState reports whether state suppresses this notification.
// Params: normalized pull-request state.
// Returns: true when the state is in the ignore list.
func (n Notification) IgnoresState(state domain.PullRequestState) bool {
	for _, ignored := range n.IgnoreStates {
		if ignored == state {
			return true
		}
	}
	return false
}

// HasFilter reports whether a filter regexp is configured.
// Params: none.
// Returns: true when FilterRegexp is present.
func (n Notification) HasFilter() bool {
	return n.filterRe != nil
}

// FilterMatches tests the rendered filter string against the filter regexp.
// Params: filter string after template rendering.
// Returns: true when the regexp matches or no filter is configured.
func (n Notification) FilterMatches(rendered string) bool {
	if n.filterRe == nil {
		return true
	}
	return n.filterRe.MatchString(rendered)
}

// HasInjection reports whether the secondary fetch step is configured.
// Params: none.
// Returns: true when both injection url and regexp are present.
func (n Notification) HasInjection() bool {
	return n.InjectionURL != "" && n.injectionRe != nil
}

// InjectionExtract applies the injection regexp to a fetched body.
// Params: response body from the injection fetch.
// Returns: first capturing group of the first match, and a found flag.
func (n Notification) InjectionExtract(body string) (string, bool) {
	if n.injectionRe == nil {
		return "", false
	}
	match := n.injectionRe.FindStringSubmatch(body)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}
