package market

import (
	"context"
	"encoding/json"
)

// TopCoins is how many coins the crypto table lists.
const TopCoins = 10

// Coin is one row of the crypto market table.
type Coin struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	Image                    string  `json:"image"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
}

// Up reports whether the price rose over the last 24 hours.
func (c Coin) Up() bool { return c.PriceChangePercentage24h >= 0 }

// Coins returns the top coins by market cap, priced in USD.
func (c *Client) Coins(ctx context.Context) ([]Coin, error) {
	url := c.coingeckoURL + "/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=10&page=1&sparkline=false"
	body, err := c.get(ctx, VendorCoinGecko, "coins", url, "application/json")
	if err != nil {
		return nil, err
	}

	var coins []Coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, decodeError(VendorCoinGecko, err)
	}
	if len(coins) > TopCoins {
		coins = coins[:TopCoins]
	}
	return coins, nil
}

// FindCoin returns the coin with the given ID from the current top list.
func FindCoin(coins []Coin, id string) (Coin, bool) {
	for _, c := range coins {
		if c.ID == id {
			return c, true
		}
	}
	return Coin{}, false
}
