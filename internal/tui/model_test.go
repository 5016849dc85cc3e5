package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/guard"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/roles"
	"github.com/felixgeelhaar/finhub/internal/session"
)

type fakeMarket struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeMarket) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeMarket) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeMarket) Coins(ctx context.Context) ([]market.Coin, error) {
	f.count("coins")
	return []market.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 64000.5, PriceChangePercentage24h: 1.25, MarketCap: 1.2e12},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3100, PriceChangePercentage24h: -0.5, MarketCap: 3.7e11},
	}, nil
}

func (f *fakeMarket) Forex(ctx context.Context) (*market.Rates, error) {
	f.count("forex")
	return &market.Rates{Amount: 1, Base: "USD", Date: "2024-01-10", Rates: map[string]float64{"EUR": 0.5, "GBP": 0.25}}, nil
}

func (f *fakeMarket) OHLC(ctx context.Context, symbol string) ([]market.Candle, error) {
	f.count("ohlc:" + symbol)
	return []market.Candle{
		{Day: "Jan 2", Open: 10, High: 12, Low: 9, Close: 11, Body: 1, Up: true},
		{Day: "Jan 3", Open: 11, High: 11.5, Low: 8, Close: 9, Body: 2, Up: false},
	}, nil
}

func (f *fakeMarket) Stocks(ctx context.Context) ([]market.Stock, error) {
	f.count("stocks")
	return []market.Stock{
		{ID: "aapl", Symbol: "AAPL", Name: "Apple Inc.", Price: 190, Change: 0.8, Volume: 1000000},
		{ID: "msft", Symbol: "MSFT", Name: "Microsoft", Price: 410, Change: -0.2, Volume: 2000000},
	}, nil
}

type harness struct {
	t        *testing.T
	model    *Model
	provider *auth.MemoryProvider
	store    *roles.MemoryStore
	market   *fakeMarket
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	provider := auth.NewMemoryProvider(auth.NewSessionManager([]byte("test-secret"), "finhub-test"), nil)
	store := roles.NewMemoryStore()
	for _, a := range []struct{ uid, email, role string }{
		{"u-admin", "admin@example.com", "admin"},
		{"u-user", "user@example.com", "user"},
		{"u-norecord", "new@example.com", ""},
	} {
		if _, err := provider.AddAccount(a.uid, a.email, "correct-horse", true); err != nil {
			t.Fatalf("AddAccount: %v", err)
		}
		if a.role != "" {
			store.Set(a.uid, a.role)
		}
	}

	mk := &fakeMarket{}
	resolver := session.NewResolver(provider, store, session.WithLogger(log.Discard()))
	m, err := New(context.Background(), Config{
		Resolver: resolver,
		Guard:    guard.New(guard.DefaultRegistry(), guard.WithLogger(log.Discard())),
		Market:   mk,
		Accounts: provider,
		Status: StatusFunc(func(ctx context.Context) (*api.StatusReport, error) {
			return &api.StatusReport{
				Status: health.StatusHealthy,
				Checks: map[string]*health.Result{"role-store": health.Healthy("reachable")},
			}, nil
		}),
		Logger: log.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		m.Close()
		provider.Close()
	})
	return &harness{t: t, model: m, provider: provider, store: store, market: mk}
}

// mount runs Init and waits for the first settled state.
func (h *harness) mount() {
	h.t.Helper()
	if cmd := h.model.Init(); cmd == nil {
		h.t.Fatal("Init returned no command")
	}
	if h.model.Err() != nil {
		h.t.Fatalf("Init failed: %v", h.model.Err())
	}
	h.settle(func(s session.State) bool { return !s.Loading })
}

// settle feeds resolver snapshots to the model until pred holds.
func (h *harness) settle(pred func(session.State) bool) {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.model.states:
			h.model.Update(stateMsg{state: s})
			if pred(s) {
				return
			}
		case <-deadline:
			h.t.Fatalf("state never settled; last %+v", h.model.state)
		}
	}
}

func (h *harness) signIn(email string) {
	h.t.Helper()
	if _, err := h.provider.SignIn(context.Background(), email, "correct-horse"); err != nil {
		h.t.Fatalf("SignIn(%s): %v", email, err)
	}
	h.settle(func(s session.State) bool {
		return !s.Loading && s.User != nil && s.User.Email == email
	})
}

func (h *harness) key(k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := h.model.Update(msg)
	return cmd
}

// fetch runs f's fetch synchronously, ignoring one already in flight.
func (h *harness) fetch(f feed) {
	h.t.Helper()
	h.model.pending[f] = false
	h.deliver(h.model.fetch(f))
}

// deliver runs cmd and feeds its message back to the model. Batches are
// not unpacked.
func (h *harness) deliver(cmd tea.Cmd) {
	h.t.Helper()
	if cmd == nil {
		h.t.Fatal("expected a command")
	}
	h.model.Update(cmd())
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("Expected error without a resolver")
	}
}

func TestStartsLoadingOnHome(t *testing.T) {
	h := newHarness(t)

	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected initial view crypto, got %s", h.model.ViewID())
	}
	h.model.Init()
	if !h.model.state.Loading {
		t.Error("Expected the model to start in the loading state")
	}
	if !strings.Contains(h.model.View(), "Checking your session") {
		t.Error("Expected the loading indicator while the session resolves")
	}
}

func TestUnauthenticatedOnAdminRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.model.view = guard.ViewAdmin

	h.mount()

	if h.model.ViewID() != guard.ViewLogin {
		t.Errorf("Expected login, got %s", h.model.ViewID())
	}
	if h.model.login == nil {
		t.Error("Expected the login form to be built")
	}
}

func TestUserRoleOnAdminGoesHome(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	if h.model.ViewID() != guard.ViewCrypto {
		t.Fatalf("Expected home after sign in, got %s", h.model.ViewID())
	}

	h.key("a")

	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected a non-admin to stay home, got %s", h.model.ViewID())
	}
}

func TestUserRoleRepeatedAdminRequestsStayHome(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	for i := 1; i <= 3; i++ {
		h.key("a")
		if h.model.ViewID() != guard.ViewCrypto {
			t.Fatalf("Expected home after admin request %d, got %s", i, h.model.ViewID())
		}
	}

	// Moving elsewhere in between does not open a way in either.
	h.key("3")
	if h.model.ViewID() != guard.ViewForex {
		t.Fatalf("Expected forex, got %s", h.model.ViewID())
	}
	h.key("a")
	h.key("a")
	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected home, got %s", h.model.ViewID())
	}
	if strings.Contains(h.model.View(), "Checking dependencies") {
		t.Error("Expected the admin panel not to render for role user")
	}
}

func TestMissingRoleRecordIsTreatedAsUser(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("new@example.com")

	if h.model.state.Role != roles.RoleUser {
		t.Errorf("Expected default role user, got %q", h.model.state.Role)
	}
	h.key("a")
	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected home, got %s", h.model.ViewID())
	}
}

func TestAdminRendersAdminPanel(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("admin@example.com")

	cmd := h.key("a")
	if h.model.ViewID() != guard.ViewAdmin {
		t.Fatalf("Expected admin view, got %s", h.model.ViewID())
	}
	h.deliver(cmd)

	view := h.model.View()
	if !strings.Contains(view, "role-store") {
		t.Errorf("Expected the admin panel to list checks, got:\n%s", view)
	}
}

func TestSignOutOnAdminRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("admin@example.com")
	h.key("a")
	if h.model.ViewID() != guard.ViewAdmin {
		t.Fatalf("Expected admin view, got %s", h.model.ViewID())
	}

	h.deliver(h.key("o"))
	h.settle(func(s session.State) bool { return !s.Loading && s.User == nil })

	if h.model.ViewID() != guard.ViewLogin {
		t.Errorf("Expected login after sign out, got %s", h.model.ViewID())
	}
	if h.model.report != nil {
		t.Error("Expected the admin report to be dropped with the session")
	}
}

func TestLoginFormSignsIn(t *testing.T) {
	h := newHarness(t)
	h.mount()
	if h.model.login == nil {
		t.Fatal("Expected login form")
	}

	h.model.login.email = "user@example.com"
	h.model.login.password = "correct-horse"
	_, cmd := h.model.Update(loginSubmitMsg{})
	h.deliver(cmd)
	h.settle(func(s session.State) bool { return !s.Loading && s.User != nil })

	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected home after sign in, got %s", h.model.ViewID())
	}
}

func TestLoginFormShowsErrors(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.model.login.email = "user@example.com"
	h.model.login.password = "wrong"
	_, cmd := h.model.Update(loginSubmitMsg{})
	h.deliver(cmd)

	if h.model.notice != "Invalid email or password." {
		t.Errorf("Unexpected notice %q", h.model.notice)
	}
	if h.model.ViewID() != guard.ViewLogin {
		t.Errorf("Expected to stay on login, got %s", h.model.ViewID())
	}
	if h.model.login.pending {
		t.Error("Expected a fresh form after the failed attempt")
	}
}

func TestLoginFormPasswordReset(t *testing.T) {
	h := newHarness(t)
	h.mount()

	h.model.login.action = actionReset
	h.model.login.email = "user@example.com"
	_, cmd := h.model.Update(loginSubmitMsg{})
	h.deliver(cmd)

	if !strings.Contains(h.model.notice, "Password reset email sent") {
		t.Errorf("Unexpected notice %q", h.model.notice)
	}
	if len(h.provider.Outbox()) != 1 {
		t.Errorf("Expected one mail, got %d", len(h.provider.Outbox()))
	}
}

func TestHeaderLinks(t *testing.T) {
	h := newHarness(t)
	h.mount()

	if header := h.model.renderHeader(); strings.Contains(header, "Sign Out") {
		t.Error("Expected no Sign Out link while signed out")
	}

	h.signIn("user@example.com")
	header := h.model.renderHeader()
	if !strings.Contains(header, "Sign Out") {
		t.Error("Expected Sign Out link while signed in")
	}
	if strings.Contains(header, "Admin") {
		t.Error("Expected no Admin link for role user")
	}

	h.deliver(h.key("o"))
	h.settle(func(s session.State) bool { return s.User == nil })
	h.signIn("admin@example.com")
	if !strings.Contains(h.model.renderHeader(), "Admin") {
		t.Error("Expected Admin link for role admin")
	}
}

func TestCryptoTableAndDetail(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	h.fetch(feedCoins)
	if h.market.Calls("coins") != 1 {
		t.Errorf("Expected one coins call, got %d", h.market.Calls("coins"))
	}
	if len(h.model.table.Rows()) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(h.model.table.Rows()))
	}

	h.key("enter")
	if h.model.ViewID() != guard.ViewCoin || h.model.selected != "bitcoin" {
		t.Fatalf("Expected bitcoin detail, got %s/%s", h.model.ViewID(), h.model.selected)
	}
	if !strings.Contains(h.model.View(), "Bitcoin (BTC)") {
		t.Error("Expected coin detail to render")
	}

	h.key("esc")
	if h.model.ViewID() != guard.ViewCrypto {
		t.Errorf("Expected back to crypto, got %s", h.model.ViewID())
	}
}

func TestStockDetailIgnoresStaleCandles(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	h.deliver(h.key("s"))
	h.key("enter")
	if h.model.ViewID() != guard.ViewStock || h.model.selected != "AAPL" {
		t.Fatalf("Expected AAPL detail, got %s/%s", h.model.ViewID(), h.model.selected)
	}

	h.model.Update(candlesMsg{symbol: "MSFT", candles: []market.Candle{{Day: "Jan 9"}}})
	if h.model.candlesFor == "MSFT" {
		t.Error("Expected candles for another symbol to be dropped")
	}

	h.model.Update(candlesMsg{symbol: "AAPL", candles: []market.Candle{
		{Day: "Jan 2", Open: 10, High: 12, Low: 9, Close: 11, Up: true},
	}})
	if !strings.Contains(h.model.View(), "Jan 2") {
		t.Error("Expected candles to render")
	}
}

func TestForexConverter(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	h.deliver(h.key("f"))
	if len(h.model.table.Rows()) != 3 {
		t.Fatalf("Expected USD, EUR and GBP rows, got %d", len(h.model.table.Rows()))
	}

	h.key("x")
	if h.model.converter == nil {
		t.Fatal("Expected converter to open")
	}
	h.model.converter.inputs[0].SetValue("10")
	h.model.converter.inputs[1].SetValue("eur")
	h.model.converter.inputs[2].SetValue("gbp")

	got, err := h.model.converter.result(h.model.rates)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got != 5 {
		t.Errorf("Expected 10 EUR = 5 GBP, got %v", got)
	}
	if !strings.Contains(h.model.View(), "= 5.0000 GBP") {
		t.Error("Expected conversion in view")
	}

	h.model.converter.inputs[2].SetValue("XYZ")
	if _, err := h.model.converter.result(h.model.rates); err == nil {
		t.Error("Expected unknown currency error")
	}

	h.key("esc")
	if h.model.converter != nil {
		t.Error("Expected esc to close the converter")
	}
}

func TestRefreshOnlyFetchesVisibleFeed(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")
	h.deliver(h.key("s"))
	h.model.pending[feedCoins] = false

	_, cmd := h.model.Update(refreshMsg{feed: feedCoins})
	if cmd == nil {
		t.Fatal("Expected the refresh to be rescheduled")
	}
	if h.model.pending[feedCoins] {
		t.Error("Expected no coin fetch while the stocks view is open")
	}

	h.key("c")
	h.model.pending[feedCoins] = false
	h.model.Update(refreshMsg{feed: feedCoins})
	if !h.model.pending[feedCoins] {
		t.Error("Expected a coin fetch while the crypto view is open")
	}
}

func TestThemeToggle(t *testing.T) {
	h := newHarness(t)
	h.mount()
	h.signIn("user@example.com")

	if h.model.theme != ThemeDark {
		t.Fatalf("Expected dark theme by default")
	}
	h.key("t")
	if h.model.theme != ThemeLight {
		t.Error("Expected light theme after toggle")
	}
	h.key("t")
	if h.model.theme != ThemeDark {
		t.Error("Expected dark theme after second toggle")
	}
}

func TestQuitUnmounts(t *testing.T) {
	h := newHarness(t)
	h.mount()

	_, cmd := h.model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if !h.model.closed {
		t.Error("Expected model to be closed")
	}
	if h.model.View() != "" {
		t.Error("Expected empty view after quit")
	}
}

func TestRenderCandles(t *testing.T) {
	s := NewStyles(ThemeDark)
	out := renderCandles([]market.Candle{
		{Day: "Jan 2", Open: 10, High: 20, Low: 0, Close: 15, Up: true},
		{Day: "Jan 3", Open: 15, High: 15, Low: 15, Close: 15, Up: true},
	}, 11, s)

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Jan 2") || !strings.Contains(lines[0], "C 15.00") {
		t.Errorf("Unexpected first line %q", lines[0])
	}
	if renderCandles(nil, 10, s) != "" {
		t.Error("Expected empty output without candles")
	}
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatPercent(1.234), "+1.23%"},
		{formatPercent(-0.5), "-0.50%"},
		{formatPrice(1234.5), "$1,234.50"},
		{formatAmount(1500000), "$1,500,000"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, tt.got)
		}
	}
}
