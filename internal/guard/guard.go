// Package guard decides where the dashboard navigates for a given session
// state and current view.
//
// Evaluate is a pure, ordered policy: the first matching rule wins.
//
//  1. loading                          -> stay (decide later)
//  2. no user, view is not login       -> login
//  3. user, view is login              -> home
//  4. view requires a role not held    -> home
//  5. otherwise                        -> stay
//
// Rule 4 only runs once loading is false, so a role that is still being
// resolved never bounces a user off a restricted view.
package guard

import (
	"sync"

	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
	"github.com/felixgeelhaar/finhub/internal/session"
)

// Rule identifies which rule produced a decision.
type Rule string

const (
	RuleLoading         Rule = "loading"
	RuleUnauthenticated Rule = "unauthenticated"
	RuleSignedIn        Rule = "signed_in_on_login"
	RuleRoleMismatch    Rule = "role_mismatch"
	RuleAllow           Rule = "allow"
)

// Input is everything the policy looks at.
type Input struct {
	Loading       bool
	Authenticated bool
	Role          roles.Role
	View          ViewID
}

// FromState builds an Input from a resolver snapshot.
func FromState(s session.State, view ViewID) Input {
	return Input{
		Loading:       s.Loading,
		Authenticated: s.Authenticated(),
		Role:          s.Role,
		View:          view,
	}
}

// Decision is the outcome of an evaluation. Target is set only when Navigate
// is true.
type Decision struct {
	Rule     Rule
	Navigate bool
	Target   ViewID
	Reason   string
}

// Evaluate applies the rules to in.
func (r *Registry) Evaluate(in Input) Decision {
	if in.Loading {
		return Decision{Rule: RuleLoading, Reason: "session is resolving"}
	}
	if !in.Authenticated {
		if in.View != r.login {
			return Decision{Rule: RuleUnauthenticated, Navigate: true, Target: r.login, Reason: "sign in required"}
		}
		return Decision{Rule: RuleAllow, Reason: "signed out on login"}
	}
	if in.View == r.login {
		return Decision{Rule: RuleSignedIn, Navigate: true, Target: r.home, Reason: "already signed in"}
	}
	if v, ok := r.views[in.View]; ok && v.RequiredRole != "" && in.Role != v.RequiredRole {
		return Decision{
			Rule:     RuleRoleMismatch,
			Navigate: true,
			Target:   r.home,
			Reason:   "role " + v.RequiredRole.String() + " required",
		}
	}
	return Decision{Rule: RuleAllow}
}

// Option configures a Guard.
type Option func(*Guard)

// WithMetrics counts issued navigations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// Guard evaluates the policy and reports each navigation once per location.
// The caller tells the guard where it landed through Observe; until it does,
// checking the same input again is a repeat and is not reported as new.
type Guard struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *log.Logger

	mu       sync.Mutex
	last     Input
	haveLast bool
}

// New creates a Guard over registry.
func New(registry *Registry, opts ...Option) *Guard {
	g := &Guard{
		registry: registry,
		logger:   log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "guard")
	return g
}

// Registry returns the guard's views.
func (g *Guard) Registry() *Registry { return g.registry }

// Check evaluates in. The bool is true when the decision is a navigation
// that has not already been issued for this same input. A repeat still
// carries the full decision; callers that are on in.View must follow
// d.Navigate regardless.
func (g *Guard) Check(in Input) (Decision, bool) {
	d := g.registry.Evaluate(in)

	g.mu.Lock()
	repeated := g.haveLast && g.last == in
	g.last, g.haveLast = in, true
	g.mu.Unlock()

	if !d.Navigate || repeated {
		return d, false
	}

	g.logger.Debug("navigating", "rule", string(d.Rule), "from", string(in.View), "to", string(d.Target))
	if g.metrics != nil {
		g.metrics.GuardNavigations.WithLabelValues(string(d.Rule), string(d.Target)).Inc()
	}
	return d, true
}

// Observe records the caller's current location after it moved. A later
// request for a view it was redirected from is then a new navigation.
func (g *Guard) Observe(in Input) {
	g.mu.Lock()
	g.last, g.haveLast = in, true
	g.mu.Unlock()
}
