// Package resolve binds variables to concrete values before rendering.
//
// Static variables pass their literal value through. Dynamic variables name
// an external capability through a "scheme://target" resolver URI; the
// resolver dispatches each one to the registered capability for its scheme,
// bounded by a per-variable timeout and a concurrency limit. A failed
// resolution never fails the render. Failures split into two classes:
// taxonomy failures (a fixed error code such as unsupported_scheme or
// readonly_required) leave the variable unbound so its placeholder stays in
// the output and is counted missing; transport failures (the backend is
// unreachable or timed out) degrade to a bracketed "[name]" placeholder
// when the local fallback is enabled, flagged with a local_fallback warn.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/internal/model"
)

// MaxValueBytes is the clamp applied to every resolved value. Oversized
// values are cut on a rune boundary and flagged with a truncated detail.
const MaxValueBytes = 20_000

// Capability resolves probes against one resolver scheme. Target is the
// part of the resolver URI after "://"; probe is the variable's value field
// (query text, session message cap, or a scheme-specific JSON envelope).
type Capability interface {
	Scheme() string
	Resolve(ctx context.Context, target, probe string) (string, error)
}

// Registry maps resolver schemes to capabilities.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry builds a registry from the given capabilities.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the capability for its scheme.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Scheme()] = c
}

// Lookup returns the capability registered for scheme.
func (r *Registry) Lookup(scheme string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[scheme]
	return c, ok
}

// Schemes lists registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caps))
	for s := range r.caps {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// disabled is registered in place of a capability whose backend is switched
// off in configuration.
type disabled struct{ scheme string }

// Disabled returns a capability that always fails with feature_not_enabled.
func Disabled(scheme string) Capability { return disabled{scheme: scheme} }

func (d disabled) Scheme() string { return d.scheme }

func (d disabled) Resolve(context.Context, string, string) (string, error) {
	return "", Errf(model.ErrCodeFeatureNotEnabled, "capability %q is not enabled", d.scheme)
}

// Config bounds the resolver's work.
type Config struct {
	Timeout         time.Duration // per variable, 0 means 10s
	MaxConcurrent   int           // 0 means 4
	OfflineFallback bool          // substitute [name] when a backend is unreachable
}

// Result is the outcome of resolving one variable set: values keyed by
// variable name plus the diagnostics produced along the way, in input order.
type Result struct {
	Values   map[string]string
	Messages []model.Message
}

// Resolver dispatches variables to capabilities.
type Resolver struct {
	registry *Registry
	cfg      Config
	log      *slog.Logger
}

// NewResolver builds a Resolver over the given registry.
func NewResolver(registry *Registry, cfg Config, log *slog.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{registry: registry, cfg: cfg, log: log}
}

type outcome struct {
	value    string
	hasValue bool
	messages []model.Message
	fellBack bool
}

// Resolve binds every variable concurrently. One variable's failure never
// affects another; diagnostics come back in the variables' input order.
func (r *Resolver) Resolve(ctx context.Context, vars []model.Variable) (*Result, error) {
	outcomes := make([]outcome, len(vars))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrent)
	for i, v := range vars {
		g.Go(func() error {
			outcomes[i] = r.resolveOne(gctx, v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	res := &Result{Values: make(map[string]string, len(vars))}
	fellBack := false
	for i, v := range vars {
		o := outcomes[i]
		if o.hasValue {
			res.Values[v.Name] = o.value
		}
		res.Messages = append(res.Messages, o.messages...)
		fellBack = fellBack || o.fellBack
	}
	if fellBack {
		res.Messages = append(res.Messages, model.Message{
			Severity: model.SeverityWarn,
			Code:     model.CodeLocalFallback,
			Message:  "one or more dynamic variables fell back to local placeholders",
		})
	}
	return res, nil
}

func (r *Resolver) resolveOne(ctx context.Context, v model.Variable) outcome {
	if v.Type != model.VarTypeDynamic {
		return outcome{
			value:    v.Value,
			hasValue: true,
			messages: []model.Message{{
				Severity: model.SeverityInfo,
				Code:     model.CodeVariableStatic,
				Message:  fmt.Sprintf("variable %q bound statically", v.Name),
				Details:  map[string]any{"name": v.Name},
			}},
		}
	}

	start := time.Now()
	value, err := r.dispatch(ctx, v)
	elapsed := time.Since(start)

	if err != nil {
		code := CodeOf(err)
		r.log.Warn("variable resolution failed",
			"name", v.Name,
			"scheme", v.ResolverScheme(),
			"error_code", code,
			"error", err,
		)
		o := outcome{messages: []model.Message{{
			Severity: model.SeverityWarn,
			Code:     model.CodeVariableResolveFailed,
			Message:  fmt.Sprintf("variable %q failed to resolve: %v", v.Name, err),
			Details: map[string]any{
				"name":       v.Name,
				"errorCode":  code,
				"durationMs": elapsed.Milliseconds(),
			},
		}}}
		if r.cfg.OfflineFallback && transportFailure(code) {
			o.value = "[" + v.Name + "]"
			o.hasValue = true
			o.fellBack = true
		}
		return o
	}

	clamped, truncated := clampValue(value, MaxValueBytes)
	return outcome{
		value:    clamped,
		hasValue: true,
		messages: []model.Message{{
			Severity: model.SeverityInfo,
			Code:     model.CodeVariableResolved,
			Message:  fmt.Sprintf("variable %q resolved", v.Name),
			Details: map[string]any{
				"name":       v.Name,
				"durationMs": elapsed.Milliseconds(),
				"valueBytes": len(clamped),
				"truncated":  truncated,
			},
		}},
	}
}

func (r *Resolver) dispatch(ctx context.Context, v model.Variable) (string, error) {
	if strings.TrimSpace(v.Resolver) == "" {
		return "", Errf(model.ErrCodeResolverMissing, "variable %q has no resolver", v.Name)
	}
	scheme := v.ResolverScheme()
	if scheme == "" {
		return "", Errf(model.ErrCodeInvalidURL, "resolver %q is not a scheme://target URI", v.Resolver)
	}
	c, ok := r.registry.Lookup(scheme)
	if !ok {
		return "", Errf(model.ErrCodeUnsupportedScheme, "no capability for scheme %q", scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return c.Resolve(ctx, v.ResolverTarget(), v.Value)
}

// transportFailure reports whether code describes an unreachable backend
// rather than a misconfigured variable. Only these degrade to the local
// placeholder; taxonomy codes leave the variable unbound and counted
// missing. CodeOf classifies timeouts and network errors as connect_failed
// and uncoded backend errors as unknown.
func transportFailure(code string) bool {
	return code == model.ErrCodeConnectFailed || code == model.ErrCodeUnknown
}

// clampValue cuts s to at most max bytes without splitting a rune.
func clampValue(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
