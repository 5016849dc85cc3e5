package tui

import (
	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/session"
)

// feed is a data source a view renders.
type feed int

const (
	feedCoins feed = iota
	feedStocks
	feedCandles
	feedRates
	feedStatus
)

func (f feed) String() string {
	switch f {
	case feedCoins:
		return "coins"
	case feedStocks:
		return "stocks"
	case feedCandles:
		return "candles"
	case feedRates:
		return "rates"
	case feedStatus:
		return "status"
	default:
		return "unknown"
	}
}

// stateMsg carries a resolver snapshot.
type stateMsg struct {
	state session.State
}

// refreshMsg fires on a feed's refresh interval.
type refreshMsg struct {
	feed feed
}

type coinsMsg struct {
	coins []market.Coin
	err   error
}

type stocksMsg struct {
	stocks []market.Stock
	err    error
}

type candlesMsg struct {
	symbol  string
	candles []market.Candle
	err     error
}

type ratesMsg struct {
	rates *market.Rates
	err   error
}

type statusMsg struct {
	report *api.StatusReport
	err    error
}

// loginSubmitMsg is sent by the login form when it completes.
type loginSubmitMsg struct{}

type loginResultMsg struct {
	action loginAction
	email  string
	err    error
}

type signOutMsg struct {
	err error
}
