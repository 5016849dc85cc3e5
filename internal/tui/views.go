package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/guard"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/market"
)

const (
	candleWidth = 40
	tableHeight = 12
)

// View renders the TUI (required by Bubble Tea)
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.styles.Error.Render("Error: "+m.err.Error()) + "\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderBody())
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(m.notice))
		b.WriteString("\n")
	}
	if m.view != m.guard.Registry().Login() {
		b.WriteString(m.styles.Help.Render(m.help.View(keys)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderHeader shows the views the session may open. Admin appears for
// admins only; Sign Out only when someone is signed in.
func (m *Model) renderHeader() string {
	parts := []string{m.styles.Title.UnsetMarginBottom().Render("FinHub")}
	for _, v := range m.guard.Registry().Nav(m.state.Authenticated(), m.state.Role) {
		style := m.styles.Nav
		if v.ID == m.view || (v.ID == guard.ViewCrypto && m.view == guard.ViewCoin) ||
			(v.ID == guard.ViewStocks && m.view == guard.ViewStock) {
			style = m.styles.NavActive
		}
		parts = append(parts, style.Render(v.Title))
	}
	if m.state.Authenticated() {
		who := m.state.User.Email
		if m.state.Role != "" {
			who += " (" + string(m.state.Role) + ")"
		}
		parts = append(parts, m.styles.Muted.Render(who), m.styles.Nav.Render("Sign Out [o]"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, joinSpaced(parts)...)
}

func joinSpaced(parts []string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, " ")
		}
		out = append(out, p)
	}
	return out
}

func (m *Model) renderBody() string {
	if m.state.Loading {
		return m.spinner.View() + " " + m.styles.Muted.Render("Checking your session...")
	}

	switch m.view {
	case guard.ViewLogin:
		return m.renderLogin()
	case guard.ViewCrypto:
		return m.renderTable("Cryptocurrency Market", feedCoins, len(m.coins))
	case guard.ViewCoin:
		return m.renderCoin()
	case guard.ViewStocks:
		return m.renderTable("Stock Market", feedStocks, len(m.stocks))
	case guard.ViewStock:
		return m.renderStock()
	case guard.ViewForex:
		return m.renderForex()
	case guard.ViewAdmin:
		return m.renderAdmin()
	default:
		return m.styles.Muted.Render("Unknown view")
	}
}

func (m *Model) renderLogin() string {
	if m.login == nil {
		return ""
	}
	if m.login.pending {
		return m.spinner.View() + " " + m.styles.Muted.Render("Working...")
	}
	return m.login.form.View()
}

// renderFeed returns the placeholder for a feed that has nothing to show yet.
func (m *Model) renderFeed(f feed, rows int) (string, bool) {
	if err := m.errs[f]; err != nil && rows == 0 {
		return m.styles.Error.Render("Could not load "+f.String()+": ") + err.Error(), true
	}
	if rows == 0 {
		if m.pending[f] {
			return m.spinner.View() + " " + m.styles.Muted.Render("Loading "+f.String()+"..."), true
		}
		return m.styles.Muted.Render("No data"), true
	}
	return "", false
}

func (m *Model) renderTable(title string, f feed, rows int) string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")
	if placeholder, ok := m.renderFeed(f, rows); ok {
		b.WriteString(placeholder)
		return b.String()
	}
	b.WriteString(m.table.View())
	if err := m.errs[f]; err != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render("Showing last good data: " + err.Error()))
	}
	return b.String()
}

func (m *Model) renderCoin() string {
	c, ok := market.FindCoin(m.coins, m.selected)
	if !ok {
		if placeholder, empty := m.renderFeed(feedCoins, len(m.coins)); empty {
			return placeholder
		}
		return m.styles.Muted.Render("Coin not found")
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("%s (%s)", c.Name, strings.ToUpper(c.Symbol))))
	b.WriteString("\n")
	rows := [][2]string{
		{"Price", formatPrice(c.CurrentPrice)},
		{"24h", m.styles.Change(c.PriceChangePercentage24h)},
		{"Market cap", formatAmount(c.MarketCap)},
		{"Volume", formatAmount(c.TotalVolume)},
	}
	for _, r := range rows {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%-12s", r[0])))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return m.styles.Border.Render(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) renderStock() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("%s, last %d trading days", m.selected, market.CandleDays)))
	b.WriteString("\n")

	rows := len(m.candles)
	if m.candlesFor != m.selected {
		rows = 0
	}
	if placeholder, ok := m.renderFeed(feedCandles, rows); ok {
		b.WriteString(placeholder)
		return b.String()
	}
	b.WriteString(renderCandles(m.candles, candleWidth, m.styles))
	return b.String()
}

// renderCandles draws one line per day: the low-high range as a wick and the
// open-close range as a body, on a scale shared by all days.
func renderCandles(candles []market.Candle, width int, s Styles) string {
	if len(candles) == 0 || width < 2 {
		return ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(math.Round((v - lo) / span * float64(width-1)))
		return max(0, min(width-1, p))
	}

	var b strings.Builder
	for _, c := range candles {
		bar := []rune(strings.Repeat(" ", width))
		for i := pos(c.Low); i <= pos(c.High); i++ {
			bar[i] = '─'
		}
		for i := pos(math.Min(c.Open, c.Close)); i <= pos(math.Max(c.Open, c.Close)); i++ {
			bar[i] = '█'
		}
		style := s.Down
		if c.Up {
			style = s.Up
		}
		fmt.Fprintf(&b, "%-7s %s %s\n", c.Day, style.Render(string(bar)),
			s.Muted.Render(fmt.Sprintf("O %.2f  H %.2f  L %.2f  C %.2f", c.Open, c.High, c.Low, c.Close)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderForex() string {
	var b strings.Builder
	rows := 0
	if m.rates != nil {
		rows = len(m.rates.Rates)
	}
	b.WriteString(m.renderTable("Foreign Exchange", feedRates, rows))
	if m.rates == nil {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("Rates per 1 %s as of %s", m.rates.Base, m.rates.Date)))
	b.WriteString("\n\n")
	if m.converter == nil {
		b.WriteString(m.styles.Muted.Render("Press x to convert currencies"))
		return b.String()
	}

	var conv strings.Builder
	conv.WriteString(m.styles.Status.Render("Currency converter"))
	conv.WriteString("\n")
	for _, in := range m.converter.inputs {
		conv.WriteString(in.View())
		conv.WriteString("\n")
	}
	from, to := m.converter.codes()
	if v, err := m.converter.result(m.rates); err != nil {
		conv.WriteString(m.styles.Error.Render(err.Error()))
	} else {
		conv.WriteString(m.styles.Up.Render(fmt.Sprintf("= %s %s", humanize.FormatFloat("#,###.####", v), to)))
		conv.WriteString(m.styles.Muted.Render(" (from " + from + ")"))
	}
	b.WriteString(m.styles.Border.Render(conv.String()))
	return b.String()
}

func (m *Model) renderAdmin() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Admin"))
	b.WriteString("\n")
	if m.status == nil {
		b.WriteString(m.styles.Muted.Render("No status source configured"))
		return b.String()
	}
	if m.report == nil {
		if err := m.errs[feedStatus]; err != nil {
			b.WriteString(m.styles.Error.Render("Could not load status: ") + err.Error())
		} else {
			b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Checking dependencies..."))
		}
		return b.String()
	}
	b.WriteString(renderReport(m.report, m.styles))
	return b.String()
}

func renderReport(r *api.StatusReport, s Styles) string {
	var b strings.Builder
	b.WriteString("Overall: ")
	b.WriteString(statusStyle(r.Status, s).Render(string(r.Status)))
	b.WriteString("\n\n")

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := r.Checks[name]
		fmt.Fprintf(&b, "%-16s %s %s %s\n", name,
			statusStyle(res.Status, s).Render(fmt.Sprintf("%-9s", res.Status)),
			res.Message,
			s.Muted.Render(res.Latency.Round(time.Millisecond).String()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusStyle(st health.Status, s Styles) lipgloss.Style {
	switch st {
	case health.StatusHealthy:
		return s.Up
	case health.StatusDegraded:
		return s.Warning
	default:
		return s.Down
	}
}

func (m *Model) hasTable() bool {
	switch m.view {
	case guard.ViewCrypto, guard.ViewStocks, guard.ViewForex:
		return true
	}
	return false
}

// rebuildTable replaces the table with the current view's columns and rows,
// keeping the cursor where it was.
func (m *Model) rebuildTable() {
	var cols []table.Column
	var rows []table.Row

	switch m.view {
	case guard.ViewCrypto:
		cols = []table.Column{
			{Title: "#", Width: 3},
			{Title: "Coin", Width: 16},
			{Title: "Symbol", Width: 8},
			{Title: "Price", Width: 14},
			{Title: "24h", Width: 9},
			{Title: "Market Cap", Width: 20},
		}
		for i, c := range m.coins {
			rows = append(rows, table.Row{
				fmt.Sprint(i + 1), c.Name, strings.ToUpper(c.Symbol),
				formatPrice(c.CurrentPrice), formatPercent(c.PriceChangePercentage24h), formatAmount(c.MarketCap),
			})
		}
	case guard.ViewStocks:
		cols = []table.Column{
			{Title: "Symbol", Width: 8},
			{Title: "Name", Width: 16},
			{Title: "Price", Width: 12},
			{Title: "Change", Width: 9},
			{Title: "Volume", Width: 14},
		}
		for _, s := range m.stocks {
			rows = append(rows, table.Row{
				s.Symbol, s.Name, formatPrice(s.Price), formatPercent(s.Change), humanize.FormatFloat("#,###.", s.Volume),
			})
		}
	case guard.ViewForex:
		cols = []table.Column{
			{Title: "Currency", Width: 10},
			{Title: "Rate", Width: 14},
		}
		if m.rates != nil {
			for _, code := range m.rates.Codes() {
				rate, _ := m.rates.Rate(code)
				rows = append(rows, table.Row{code, humanize.FormatFloat("#,###.####", rate)})
			}
		}
	default:
		m.table, m.tableFor = table.Model{}, ""
		return
	}

	height := tableHeight
	if m.height > 0 {
		height = max(3, min(len(rows)+1, m.height-10))
	}
	cursor := 0
	if m.tableFor == m.view {
		cursor = m.table.Cursor()
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	t.SetStyles(m.styles.Table)
	if cursor > 0 && cursor < len(rows) {
		t.SetCursor(cursor)
	}
	m.table, m.tableFor = t, m.view
}

func formatPrice(v float64) string {
	if v != 0 && math.Abs(v) < 1 {
		return "$" + humanize.FormatFloat("#,###.######", v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func formatAmount(v float64) string {
	return "$" + humanize.FormatFloat("#,###.", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}
