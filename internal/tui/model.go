// Package tui is the terminal dashboard.
//
// The root Model owns a mounted session.Resolver. Every resolver snapshot and
// every view change is run through the route guard, and the guard's decision
// is the only way the dashboard moves between the login view and the rest.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/guard"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/roles"
	"github.com/felixgeelhaar/finhub/internal/session"
)

// Refresh intervals for the live tables.
const (
	DefaultCryptoRefresh = 60 * time.Second
	DefaultForexRefresh  = 5 * time.Minute
)

// StatusSource reports dependency health for the admin panel.
type StatusSource interface {
	AdminStatus(ctx context.Context) (*api.StatusReport, error)
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context) (*api.StatusReport, error)

// AdminStatus calls f.
func (f StatusFunc) AdminStatus(ctx context.Context) (*api.StatusReport, error) {
	return f(ctx)
}

// Config wires the dashboard.
type Config struct {
	Resolver *session.Resolver
	Guard    *guard.Guard
	Market   api.MarketSource

	// Accounts runs the login form's actions.
	Accounts auth.Provider

	// Status backs the admin panel. Nil shows no checks.
	Status StatusSource

	Logger *log.Logger
	Theme  Theme

	// Zero selects the default interval.
	CryptoRefresh time.Duration
	ForexRefresh  time.Duration
}

// Model is the dashboard's root bubbletea model.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	resolver *session.Resolver
	guard    *guard.Guard
	market   api.MarketSource
	accounts auth.Provider
	status   StatusSource
	logger   *log.Logger

	cryptoRefresh time.Duration
	forexRefresh  time.Duration

	states    <-chan session.State
	stopWatch func()
	state     session.State

	view     guard.ViewID
	selected string

	theme     Theme
	styles    Styles
	help      help.Model
	spinner   spinner.Model
	table     table.Model
	tableFor  guard.ViewID
	login     *loginForm
	converter *converter
	lastEmail string

	coins      []market.Coin
	stocks     []market.Stock
	candles    []market.Candle
	candlesFor string
	rates      *market.Rates
	report     *api.StatusReport
	errs       map[feed]error
	pending    map[feed]bool

	notice   string
	width    int
	height   int
	closed   bool
	quitting bool
	err      error
}

// New creates an unmounted dashboard. The resolver is mounted by Init.
func New(ctx context.Context, cfg Config) (*Model, error) {
	switch {
	case cfg.Resolver == nil:
		return nil, errors.NewConfigInvalidError("dashboard requires a session resolver")
	case cfg.Guard == nil:
		return nil, errors.NewConfigInvalidError("dashboard requires a route guard")
	case cfg.Market == nil:
		return nil, errors.NewConfigInvalidError("dashboard requires a market source")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	if cfg.CryptoRefresh == 0 {
		cfg.CryptoRefresh = DefaultCryptoRefresh
	}
	if cfg.ForexRefresh == 0 {
		cfg.ForexRefresh = DefaultForexRefresh
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ctx, cancel := context.WithCancel(ctx)
	m := &Model{
		ctx:           ctx,
		cancel:        cancel,
		resolver:      cfg.Resolver,
		guard:         cfg.Guard,
		market:        cfg.Market,
		accounts:      cfg.Accounts,
		status:        cfg.Status,
		logger:        logger.With("component", "tui"),
		cryptoRefresh: cfg.CryptoRefresh,
		forexRefresh:  cfg.ForexRefresh,
		state:         cfg.Resolver.State(),
		view:          cfg.Guard.Registry().Home(),
		theme:         cfg.Theme,
		styles:        NewStyles(cfg.Theme),
		help:          help.New(),
		spinner:       sp,
		errs:          make(map[feed]error),
		pending:       make(map[feed]bool),
	}
	m.spinner.Style = m.styles.Status
	m.rebuildTable()
	return m, nil
}

// Init mounts the resolver and starts the refresh timers.
func (m *Model) Init() tea.Cmd {
	if err := m.resolver.Mount(m.ctx); err != nil {
		m.err = err
		m.logger.WithError(err).Error("failed to mount session resolver")
		return tea.Quit
	}
	m.states, m.stopWatch = m.resolver.Watch()
	return tea.Batch(
		m.waitForState(),
		m.spinner.Tick,
		m.schedule(feedCoins),
		m.schedule(feedRates),
	)
}

// Err returns the error that stopped the dashboard, if any.
func (m *Model) Err() error { return m.err }

// ViewID returns the current view.
func (m *Model) ViewID() guard.ViewID { return m.view }

// Close releases the resolver. It is safe to call more than once.
func (m *Model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.resolver.Unmount()
	m.cancel()
}

func (m *Model) waitForState() tea.Cmd {
	states, ctx := m.states, m.ctx
	return func() tea.Msg {
		select {
		case s, ok := <-states:
			if !ok {
				return nil
			}
			return stateMsg{state: s}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) schedule(f feed) tea.Cmd {
	d := m.cryptoRefresh
	if f == feedRates {
		d = m.forexRefresh
	}
	if d < 0 {
		return nil
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return refreshMsg{feed: f} })
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.rebuildTable()
		if m.login != nil {
			m.login.form = m.login.form.WithWidth(min(msg.Width, 60))
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case stateMsg:
		return m, m.onState(msg.state)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		if m.quitting {
			return m, nil
		}
		var cmd tea.Cmd
		if m.showing(msg.feed) {
			cmd = m.fetch(msg.feed)
		}
		return m, tea.Batch(cmd, m.schedule(msg.feed))

	case coinsMsg:
		m.pending[feedCoins] = false
		m.errs[feedCoins] = msg.err
		if msg.err == nil {
			m.coins = msg.coins
		}
		m.rebuildTable()
		return m, nil

	case stocksMsg:
		m.pending[feedStocks] = false
		m.errs[feedStocks] = msg.err
		if msg.err == nil {
			m.stocks = msg.stocks
		}
		m.rebuildTable()
		return m, nil

	case candlesMsg:
		if msg.symbol != m.selected {
			return m, nil
		}
		m.pending[feedCandles] = false
		m.errs[feedCandles] = msg.err
		m.candles, m.candlesFor = msg.candles, msg.symbol
		return m, nil

	case ratesMsg:
		m.pending[feedRates] = false
		m.errs[feedRates] = msg.err
		if msg.err == nil {
			m.rates = msg.rates
		}
		m.rebuildTable()
		return m, nil

	case statusMsg:
		m.pending[feedStatus] = false
		m.errs[feedStatus] = msg.err
		if msg.err == nil {
			m.report = msg.report
		}
		return m, nil

	case loginSubmitMsg:
		if m.login == nil || m.accounts == nil {
			return m, nil
		}
		m.notice = ""
		m.lastEmail = m.login.email
		return m, m.login.submit(m.ctx, m.accounts)

	case loginResultMsg:
		m.notice = resultNotice(msg)
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("login action failed", "action", string(msg.action))
		}
		if m.view != m.guard.Registry().Login() {
			return m, nil
		}
		m.login = newLoginForm(m.styles.Form, msg.email)
		return m, m.login.form.Init()

	case signOutMsg:
		if msg.err != nil {
			m.notice = auth.UserMessage(msg.err)
			m.logger.WithError(msg.err).Warn("sign out failed")
		}
		return m, nil
	}

	return m, m.updateLogin(msg)
}

// onState routes on a new resolver snapshot and loads the current view once
// the session has settled.
func (m *Model) onState(s session.State) tea.Cmd {
	prev := m.state
	m.state = s
	if prev.UserID() != s.UserID() {
		m.report = nil
		m.errs[feedStatus] = nil
	}

	cmds := []tea.Cmd{m.waitForState()}
	if cmd, moved := m.route(); moved {
		cmds = append(cmds, cmd)
	} else if !s.Loading && (prev.Loading || prev.UserID() != s.UserID()) {
		cmds = append(cmds, m.load(false))
	}
	return tea.Batch(cmds...)
}

// route asks the guard about the current state and view and follows a
// redirect.
func (m *Model) route() (tea.Cmd, bool) {
	d, _ := m.guard.Check(guard.FromState(m.state, m.view))
	if !d.Navigate {
		return nil, false
	}
	return m.navigate(d.Target), true
}

// open is a user-initiated view change. The guard gets the first say.
func (m *Model) open(view guard.ViewID) tea.Cmd {
	m.view = view
	if cmd, moved := m.route(); moved {
		return cmd
	}
	return m.navigate(view)
}

func (m *Model) navigate(view guard.ViewID) tea.Cmd {
	m.view = view
	m.guard.Observe(guard.FromState(m.state, view))
	m.converter = nil
	if view == m.guard.Registry().Login() {
		m.login = newLoginForm(m.styles.Form, m.lastEmail)
		if m.width > 0 {
			m.login.form = m.login.form.WithWidth(min(m.width, 60))
		}
		return m.login.form.Init()
	}
	m.login = nil
	m.rebuildTable()
	return m.load(false)
}

// load fetches what the current view shows. Nothing is fetched until the
// session has settled on a signed-in user.
func (m *Model) load(force bool) tea.Cmd {
	if m.state.Loading || !m.state.Authenticated() {
		return nil
	}
	switch m.view {
	case guard.ViewCrypto, guard.ViewCoin:
		if force || m.coins == nil {
			return m.fetch(feedCoins)
		}
	case guard.ViewStocks:
		if force || m.stocks == nil {
			return m.fetch(feedStocks)
		}
	case guard.ViewStock:
		if force || m.candlesFor != m.selected {
			return m.fetch(feedCandles)
		}
	case guard.ViewForex:
		if force || m.rates == nil {
			return m.fetch(feedRates)
		}
	case guard.ViewAdmin:
		if m.state.Role == roles.RoleAdmin && (force || m.report == nil) {
			return m.fetch(feedStatus)
		}
	}
	return nil
}

// showing reports whether the current view renders f.
func (m *Model) showing(f feed) bool {
	if m.state.Loading || !m.state.Authenticated() {
		return false
	}
	switch f {
	case feedCoins:
		return m.view == guard.ViewCrypto || m.view == guard.ViewCoin
	case feedRates:
		return m.view == guard.ViewForex
	}
	return false
}

func (m *Model) fetch(f feed) tea.Cmd {
	if f != feedCandles && m.pending[f] {
		return nil
	}
	ctx, src := m.ctx, m.market

	switch f {
	case feedCoins:
		m.pending[f] = true
		return func() tea.Msg {
			coins, err := src.Coins(ctx)
			return coinsMsg{coins: coins, err: err}
		}
	case feedStocks:
		m.pending[f] = true
		return func() tea.Msg {
			stocks, err := src.Stocks(ctx)
			return stocksMsg{stocks: stocks, err: err}
		}
	case feedCandles:
		m.pending[f] = true
		symbol := m.selected
		return func() tea.Msg {
			candles, err := src.OHLC(ctx, symbol)
			return candlesMsg{symbol: symbol, candles: candles, err: err}
		}
	case feedRates:
		m.pending[f] = true
		return func() tea.Msg {
			rates, err := src.Forex(ctx)
			return ratesMsg{rates: rates, err: err}
		}
	case feedStatus:
		if m.status == nil {
			return nil
		}
		m.pending[f] = true
		status := m.status
		return func() tea.Msg {
			report, err := status.AdminStatus(ctx)
			return statusMsg{report: report, err: err}
		}
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.view == m.guard.Registry().Login() {
		return m.updateLogin(msg)
	}

	if m.converter != nil {
		switch {
		case key.Matches(msg, keys.Back):
			if msg.Type == tea.KeyEsc {
				m.converter = nil
				return nil
			}
		case key.Matches(msg, keys.Next):
			return m.converter.next()
		}
		return m.converter.update(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m.quit()
	case key.Matches(msg, keys.Crypto):
		return m.open(guard.ViewCrypto)
	case key.Matches(msg, keys.Stocks):
		return m.open(guard.ViewStocks)
	case key.Matches(msg, keys.Forex):
		return m.open(guard.ViewForex)
	case key.Matches(msg, keys.Admin):
		return m.open(guard.ViewAdmin)
	case key.Matches(msg, keys.Open):
		return m.openSelected()
	case key.Matches(msg, keys.Back):
		switch m.view {
		case guard.ViewCoin:
			return m.open(guard.ViewCrypto)
		case guard.ViewStock:
			return m.open(guard.ViewStocks)
		}
		return nil
	case key.Matches(msg, keys.Convert):
		if m.view == guard.ViewForex && m.rates != nil {
			m.converter = newConverter()
		}
		return nil
	case key.Matches(msg, keys.Refresh):
		return m.load(true)
	case key.Matches(msg, keys.Theme):
		m.setTheme(m.theme.Toggle())
		return nil
	case key.Matches(msg, keys.SignOut):
		if m.state.Authenticated() {
			return m.signOut()
		}
		return nil
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	}

	if m.hasTable() {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return cmd
	}
	return nil
}

// openSelected opens the detail view for the highlighted table row.
func (m *Model) openSelected() tea.Cmd {
	i := m.table.Cursor()
	switch m.view {
	case guard.ViewCrypto:
		if i >= 0 && i < len(m.coins) {
			m.selected = m.coins[i].ID
			return m.open(guard.ViewCoin)
		}
	case guard.ViewStocks:
		if i >= 0 && i < len(m.stocks) {
			m.selected = m.stocks[i].Symbol
			return m.open(guard.ViewStock)
		}
	}
	return nil
}

func (m *Model) updateLogin(msg tea.Msg) tea.Cmd {
	if m.login == nil || m.login.pending {
		return nil
	}
	form, cmd := m.login.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.login.form = f
	}
	return cmd
}

func (m *Model) signOut() tea.Cmd {
	r, ctx := m.resolver, m.ctx
	return func() tea.Msg {
		return signOutMsg{err: r.SignOut(ctx)}
	}
}

func (m *Model) setTheme(t Theme) {
	m.theme = t
	m.styles = NewStyles(t)
	m.spinner.Style = m.styles.Status
	if m.login != nil {
		m.login.form = m.login.form.WithTheme(m.styles.Form)
	}
	m.rebuildTable()
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.Close()
	return tea.Quit
}
