// Package session mirrors the identity provider's session into a single
// resolved view of who is signed in and with which role.
//
// The Resolver is the only writer of that view. It consumes the provider's
// ordered event stream on one goroutine, runs role lookups concurrently and
// applies a lookup result only if no newer event has arrived since it was
// issued. Readers either poll State or Watch for changes.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
)

// DefaultLookupTimeout bounds a single role lookup.
const DefaultLookupTimeout = 5 * time.Second

// State is the resolved session view.
//
// User and Role are either both absent or User is present. Role is empty
// while Loading is true.
type State struct {
	User    *auth.Session
	Role    roles.Role
	Loading bool
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool {
	return s.User != nil
}

// UserID returns the present user's ID or "".
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.UserID
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupTimeout bounds each role lookup. Zero disables the bound.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics records session events and lookup outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// OnChange registers fn to be called synchronously, in order, for every state
// transition. fn must not call back into the Resolver.
func OnChange(fn func(State)) Option {
	return func(r *Resolver) { r.observers = append(r.observers, fn) }
}

// Resolver maintains State from an identity provider and a role store.
type Resolver struct {
	provider auth.IdentityProvider
	store    roles.Store
	timeout  time.Duration
	logger   *log.Logger
	metrics  *metrics.Metrics

	observers []func(State)

	mu       sync.RWMutex
	state    State
	watchers map[*watcher]struct{}
	mounted  bool

	// Owned by the loop goroutine.
	generation uint64

	cancel   context.CancelFunc
	done     chan struct{}
	commands chan command
	results  chan lookupResult
	lookups  sync.WaitGroup
}

type command struct {
	apply func()
	done  chan struct{}
}

type lookupResult struct {
	generation uint64
	userID     string
	role       roles.Role
	outcome    string
}

// NewResolver creates an unmounted resolver.
func NewResolver(provider auth.IdentityProvider, store roles.Store, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		store:    store,
		timeout:  DefaultLookupTimeout,
		logger:   log.DefaultLogger(),
		state:    State{Loading: true},
		watchers: make(map[*watcher]struct{}),
		commands: make(chan command),
		results:  make(chan lookupResult),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "session")
	return r
}

// Mount resets the state to loading and starts consuming session events.
// A resolver can be mounted once.
//
// If the provider cannot be subscribed to, the state settles on signed out
// and the error is returned.
func (r *Resolver) Mount(ctx context.Context) error {
	r.mu.Lock()
	if r.mounted {
		r.mu.Unlock()
		return errors.New(errors.ErrCodeIdentityProvider, "session resolver already mounted")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.mounted = true
	r.cancel = cancel
	r.mu.Unlock()

	r.setState(State{Loading: true})

	events, err := r.provider.Subscribe(loopCtx)
	if err != nil {
		cancel()
		close(r.done)
		r.setState(State{})
		return errors.Wrap(errors.ErrCodeIdentityProvider, "failed to subscribe to session events", err)
	}

	go r.loop(loopCtx, events)
	return nil
}

// Unmount stops event processing. No state change happens after Unmount
// returns, including from role lookups still in flight.
func (r *Resolver) Unmount() {
	r.mu.RLock()
	mounted, cancel := r.mounted, r.cancel
	r.mu.RUnlock()
	if !mounted {
		return
	}
	cancel()
	<-r.done
	r.lookups.Wait()
}

// SignOut signs out through the provider and clears the session locally
// without waiting for the provider's event. The later absent event converges
// on the same state.
func (r *Resolver) SignOut(ctx context.Context) error {
	if err := r.provider.SignOut(ctx); err != nil {
		return err
	}
	return r.do(ctx, func() {
		r.generation++
		r.setState(State{})
	})
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Watch returns a channel that always holds the latest state. The current
// state is delivered first. Intermediate states may be skipped; use OnChange
// to see every transition. Call stop to release the watcher.
func (r *Resolver) Watch() (states <-chan State, stop func()) {
	w := &watcher{ch: make(chan State, 1)}

	r.mu.Lock()
	r.watchers[w] = struct{}{}
	w.offer(r.state)
	r.mu.Unlock()

	var once sync.Once
	return w.ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, w)
			r.mu.Unlock()
		})
	}
}

// do runs fn on the loop goroutine and waits for it. Before Mount fn runs
// inline; after Unmount it is dropped.
func (r *Resolver) do(ctx context.Context, fn func()) error {
	r.mu.RLock()
	mounted := r.mounted
	r.mu.RUnlock()
	if !mounted {
		fn()
		return nil
	}

	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) loop(ctx context.Context, events <-chan auth.Event) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				// Provider closed: nobody can be signed in any more.
				r.generation++
				r.setState(State{})
				return
			}
			r.handleEvent(ctx, ev)

		case res := <-r.results:
			if ctx.Err() != nil {
				return
			}
			r.applyLookup(res)

		case cmd := <-r.commands:
			cmd.apply()
			close(cmd.done)
		}
	}
}

func (r *Resolver) handleEvent(ctx context.Context, ev auth.Event) {
	r.generation++
	if r.metrics != nil {
		r.metrics.SessionEvents.WithLabelValues(ev.Kind()).Inc()
	}

	if !ev.Present() {
		r.logger.Debug("session absent")
		r.setState(State{})
		return
	}

	user := ev.Session.Clone()
	r.logger.Debug("session present, resolving role", "user_id", user.UserID)
	r.setState(State{User: user, Loading: true})

	gen := r.generation
	r.lookups.Add(1)
	go func() {
		defer r.lookups.Done()
		res := r.lookup(ctx, gen, user.UserID)
		select {
		case r.results <- res:
		case <-ctx.Done():
		}
	}()
}

func (r *Resolver) lookup(ctx context.Context, gen uint64, userID string) lookupResult {
	res := lookupResult{generation: gen, userID: userID, role: roles.DefaultRole}
	if r.store == nil {
		res.outcome = "default"
		return res
	}

	lookupCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rec, err := r.store.GetRoleRecord(lookupCtx, userID)
	switch {
	case err != nil:
		res.outcome = "error"
		if ctx.Err() == nil {
			if lookupCtx.Err() != nil {
				err = errors.Wrap(errors.ErrCodeRoleTimeout, "role lookup timed out", err)
			}
			r.logger.WithError(err).Warn("role lookup failed, using default role", "user_id", userID)
		}
	case rec == nil || rec.Role == "":
		res.outcome = "default"
	default:
		res.role = roles.Resolve(rec)
		res.outcome = "found"
	}
	return res
}

func (r *Resolver) applyLookup(res lookupResult) {
	cur := r.State()
	if res.generation != r.generation || cur.UserID() != res.userID {
		r.logger.Debug("discarding stale role lookup", "user_id", res.userID)
		r.countLookup("stale")
		return
	}
	r.countLookup(res.outcome)
	r.setState(State{User: cur.User, Role: res.role, Loading: false})
}

func (r *Resolver) countLookup(result string) {
	if r.metrics != nil {
		r.metrics.RoleLookups.WithLabelValues(result).Inc()
	}
}

// setState publishes s unless it equals the current state.
func (r *Resolver) setState(s State) {
	r.mu.Lock()
	if s == r.state {
		r.mu.Unlock()
		return
	}
	r.state = s
	for w := range r.watchers {
		w.offer(s)
	}
	r.mu.Unlock()

	for _, fn := range r.observers {
		fn(s)
	}
}

type watcher struct {
	ch chan State
}

// offer replaces any undelivered state with s. Callers hold Resolver.mu, so
// offers never race each other and the send cannot block.
func (w *watcher) offer(s State) {
	select {
	case <-w.ch:
	default:
	}
	w.ch <- s
}
