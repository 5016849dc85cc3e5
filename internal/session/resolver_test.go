package session

import (
	"context"
	stderrors "errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
)

type fakeProvider struct {
	*auth.Broadcaster
	signOutErr     error
	publishSignOut bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{Broadcaster: auth.NewBroadcaster(), publishSignOut: true}
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	if p.signOutErr != nil {
		return p.signOutErr
	}
	if p.publishSignOut {
		p.Publish(nil)
	}
	return nil
}

func (p *fakeProvider) signIn(uid string) {
	p.Publish(&auth.Session{UserID: uid, Email: uid + "@example.com", EmailVerified: true})
}

// gatedStore serves roles from a map. Lookups for a gated user block until
// the gate is released or the lookup is cancelled.
type gatedStore struct {
	mu    sync.Mutex
	roles map[string]string
	gates map[string]chan struct{}
	err   error
	calls int
}

func newGatedStore() *gatedStore {
	return &gatedStore{roles: map[string]string{}, gates: map[string]chan struct{}{}}
}

func (g *gatedStore) gate(uid string) func() {
	ch := make(chan struct{})
	g.mu.Lock()
	g.gates[uid] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (g *gatedStore) GetRoleRecord(ctx context.Context, uid string) (*roles.Record, error) {
	g.mu.Lock()
	g.calls++
	gate := g.gates[uid]
	role, ok := g.roles[uid]
	err := g.err
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &roles.Record{UserID: uid, Role: role}, nil
}

func (g *gatedStore) Name() string { return "gated" }
func (g *gatedStore) Close() error { return nil }

// history records every state transition.
type history struct {
	mu     sync.Mutex
	states []State
}

func (h *history) record(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, s)
}

func (h *history) all() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// settled counts transitions into a resolved, signed-in state.
func (h *history) settled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.states {
		if s.Authenticated() && !s.Loading {
			n++
		}
	}
	return n
}

type fixture struct {
	provider *fakeProvider
	store    *gatedStore
	resolver *Resolver
	history  *history
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    newGatedStore(),
		history:  &history{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]Option{
		WithLogger(log.Discard()),
		WithMetrics(f.metrics),
		OnChange(f.history.record),
	}, opts...)
	f.resolver = NewResolver(f.provider, f.store, opts...)
	t.Cleanup(func() {
		f.resolver.Unmount()
		f.provider.Close()
	})
	return f
}

func (f *fixture) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, f.resolver.Mount(context.Background()))
	f.waitFor(t, func(s State) bool { return !s.Loading && !s.Authenticated() })
}

func (f *fixture) waitFor(t *testing.T, cond func(State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.resolver.State()) }, 2*time.Second, 5*time.Millisecond,
		"state never matched; last state %+v", f.resolver.State())
}

func settled(uid string, role roles.Role) func(State) bool {
	return func(s State) bool {
		return !s.Loading && s.UserID() == uid && s.Role == role
	}
}

func TestInitialStateIsLoading(t *testing.T) {
	f := newFixture(t)
	s := f.resolver.State()
	assert.True(t, s.Loading)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Role)
}

func TestMountSettlesOnAbsentSession(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	s := f.resolver.State()
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Role)
}

func TestPresentSessionResolvesRole(t *testing.T) {
	f := newFixture(t)
	f.store.roles["admin-1"] = "admin"
	f.mount(t)

	f.provider.signIn("admin-1")
	f.waitFor(t, settled("admin-1", roles.RoleAdmin))

	states := f.history.all()
	require.GreaterOrEqual(t, len(states), 2)
	pending := states[len(states)-2]
	assert.Equal(t, "admin-1", pending.UserID(), "user is set before the role resolves")
	assert.True(t, pending.Loading)
	assert.Empty(t, pending.Role)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SessionEvents.WithLabelValues("present")))
}

func TestMissingRecordDefaultsToUser(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	f.provider.signIn("nobody")
	f.waitFor(t, settled("nobody", roles.RoleUser))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("default")))
}

func TestLookupFailureDefaultsToUser(t *testing.T) {
	f := newFixture(t)
	f.store.roles["admin-1"] = "admin"
	f.store.err = stderrors.New("store unreachable")
	f.mount(t)

	f.provider.signIn("admin-1")
	f.waitFor(t, settled("admin-1", roles.RoleUser))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("error")))
}

func TestLookupTimeoutDefaultsToUser(t *testing.T) {
	f := newFixture(t, WithLookupTimeout(30*time.Millisecond))
	f.store.roles["admin-1"] = "admin"
	release := f.store.gate("admin-1")
	defer release()
	f.mount(t)

	f.provider.signIn("admin-1")
	f.waitFor(t, settled("admin-1", roles.RoleUser))
}

func TestStaleLookupIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.store.roles["a"] = "admin"
	f.store.roles["b"] = "user"
	releaseA := f.store.gate("a")
	f.mount(t)

	f.provider.signIn("a")
	f.waitFor(t, func(s State) bool { return s.UserID() == "a" && s.Loading })

	f.provider.signIn("b")
	f.waitFor(t, settled("b", roles.RoleUser))

	releaseA()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("stale")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s := f.resolver.State()
	assert.Equal(t, "b", s.UserID())
	assert.Equal(t, roles.RoleUser, s.Role, "a's admin role must not leak into b's session")
}

func TestSameUserReSignInDiscardsOlderLookup(t *testing.T) {
	f := newFixture(t)
	f.store.roles["a"] = "admin"
	releaseFirst := f.store.gate("a")
	f.mount(t)

	f.provider.signIn("a")
	f.waitFor(t, func(s State) bool { return s.UserID() == "a" && s.Loading })
	f.provider.Publish(nil)
	f.waitFor(t, func(s State) bool { return !s.Authenticated() })

	f.store.mu.Lock()
	delete(f.store.gates, "a")
	f.store.mu.Unlock()

	f.provider.signIn("a")
	f.waitFor(t, settled("a", roles.RoleAdmin))
	releaseFirst()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("stale")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.resolver.State().Authenticated())
}

func TestAbsentEventDuringLookup(t *testing.T) {
	f := newFixture(t)
	f.store.roles["a"] = "admin"
	release := f.store.gate("a")
	f.mount(t)

	f.provider.signIn("a")
	f.waitFor(t, func(s State) bool { return s.UserID() == "a" })

	f.provider.Publish(nil)
	f.waitFor(t, func(s State) bool { return !s.Authenticated() && !s.Loading })

	release()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.RoleLookups.WithLabelValues("stale")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s := f.resolver.State()
	assert.Nil(t, s.User)
	assert.Empty(t, s.Role)
}

func TestSignOutClearsLocally(t *testing.T) {
	f := newFixture(t)
	f.provider.publishSignOut = false
	f.store.roles["admin-1"] = "admin"
	f.mount(t)

	f.provider.signIn("admin-1")
	f.waitFor(t, settled("admin-1", roles.RoleAdmin))

	require.NoError(t, f.resolver.SignOut(context.Background()))
	s := f.resolver.State()
	assert.Nil(t, s.User, "cleared without waiting for the provider event")
	assert.Empty(t, s.Role)
	assert.False(t, s.Loading)
}

func TestSignOutConvergesWithProviderEvent(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	f.provider.signIn("u1")
	f.waitFor(t, settled("u1", roles.RoleUser))

	require.NoError(t, f.resolver.SignOut(context.Background()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.SessionEvents.WithLabelValues("absent")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	states := f.history.all()
	last := states[len(states)-1]
	assert.Equal(t, State{}, last)
	assert.NotEqual(t, State{}, states[len(states)-2], "the provider's absent event adds no duplicate transition")
}

func TestSignOutError(t *testing.T) {
	f := newFixture(t)
	f.mount(t)
	f.provider.signIn("u1")
	f.waitFor(t, settled("u1", roles.RoleUser))

	f.provider.signOutErr = stderrors.New("network down")
	assert.Error(t, f.resolver.SignOut(context.Background()))
	assert.True(t, f.resolver.State().Authenticated())
}

func TestUnmountStopsLookupWrites(t *testing.T) {
	f := newFixture(t)
	f.store.roles["a"] = "admin"
	release := f.store.gate("a")
	f.mount(t)

	f.provider.signIn("a")
	f.waitFor(t, func(s State) bool { return s.UserID() == "a" && s.Loading })

	f.resolver.Unmount()
	before := f.resolver.State()
	release()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, f.resolver.State())

	f.provider.signIn("b")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, f.resolver.State(), "events after unmount are ignored")

	require.NoError(t, f.resolver.SignOut(context.Background()))
	assert.Equal(t, before, f.resolver.State())
}

func TestMountTwice(t *testing.T) {
	f := newFixture(t)
	f.mount(t)
	err := f.resolver.Mount(context.Background())
	assert.Equal(t, errors.ErrCodeIdentityProvider, errors.CodeOf(err))
}

func TestMountSubscribeFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.Close()

	err := f.resolver.Mount(context.Background())
	require.Error(t, err)
	assert.Equal(t, State{}, f.resolver.State(), "settles on signed out instead of loading forever")
}

func TestProviderCloseSignsOut(t *testing.T) {
	f := newFixture(t)
	f.mount(t)
	f.provider.signIn("u1")
	f.waitFor(t, settled("u1", roles.RoleUser))

	f.provider.Close()
	f.waitFor(t, func(s State) bool { return !s.Authenticated() && !s.Loading })
}

func TestWatchDeliversLatest(t *testing.T) {
	f := newFixture(t)
	f.store.roles["admin-1"] = "admin"

	states, stop := f.resolver.Watch()
	defer stop()
	first := <-states
	assert.True(t, first.Loading)

	f.mount(t)
	f.provider.signIn("admin-1")
	f.waitFor(t, settled("admin-1", roles.RoleAdmin))

	select {
	case s := <-states:
		assert.Equal(t, roles.RoleAdmin, s.Role)
		assert.False(t, s.Loading)
	case <-time.After(time.Second):
		t.Fatal("no state delivered")
	}

	stop()
	stop()
}

// TestStateInvariants drives random event sequences and checks every
// transition the resolver makes.
func TestStateInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"a", "b", "c", "d"}

	for run := 0; run < 20; run++ {
		f := newFixture(t)
		f.store.roles["a"] = "admin"
		f.store.roles["b"] = "user"
		f.store.roles["c"] = "superuser"
		f.mount(t)

		events := 0
		for i := 0; i < 15; i++ {
			if rng.Intn(3) == 0 {
				f.provider.Publish(nil)
				f.waitFor(t, func(s State) bool { return !s.Authenticated() })
				continue
			}
			uid := users[rng.Intn(len(users))]
			f.provider.signIn(uid)
			events++
			want := events
			require.Eventually(t, func() bool { return f.history.settled() == want }, 2*time.Second, 5*time.Millisecond)
		}

		states := f.history.all()
		settledCount := 0
		for i, s := range states {
			if !s.Authenticated() {
				assert.Empty(t, s.Role, "role must be absent without a user")
				assert.False(t, s.Loading && i > 0, "absence never reports loading after mount")
				continue
			}
			if s.Loading {
				assert.Empty(t, s.Role)
				continue
			}
			assert.True(t, s.Role.Valid(), "settled sessions always have a concrete role")
			settledCount++
			if i > 0 {
				assert.True(t, states[i-1].Loading, "loading only goes false from true")
			}
		}
		assert.Equal(t, events, settledCount, "each present event settles exactly once")

		f.resolver.Unmount()
	}
}
