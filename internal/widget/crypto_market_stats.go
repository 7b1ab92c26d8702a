package widget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diaorui/fathom-deck/internal/display"
	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/pkg/types"
)

const coingeckoCoinURL = "https://api.coingecko.com/api/v3/coins/"

func init() {
	Register("crypto_market_stats", newCryptoMarketStats)
}

// cryptoMarketStats shows market capitalization, supply, and all-time
// high/low figures for one coin from CoinGecko.
type cryptoMarketStats struct {
	env    Env
	title  string
	coinID string
}

func newCryptoMarketStats(env Env, title string, params Params) (Widget, error) {
	coinID, err := params.Require("coin_id")
	if err != nil {
		return nil, err
	}
	return &cryptoMarketStats{env: env, title: title, coinID: strings.ToLower(coinID)}, nil
}

func (w *cryptoMarketStats) Type() string { return "crypto_market_stats" }

type coingeckoCoin struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
	MarketData    struct {
		MarketCap         map[string]float64 `json:"market_cap"`
		CirculatingSupply float64            `json:"circulating_supply"`
		MaxSupply         float64            `json:"max_supply"`
		ATH               map[string]float64 `json:"ath"`
		ATHDate           map[string]string  `json:"ath_date"`
		ATL               map[string]float64 `json:"atl"`
		ATLDate           map[string]string  `json:"atl_date"`
		PriceChange24h    float64            `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

func (w *cryptoMarketStats) Fetch(ctx context.Context) (*types.WidgetData, error) {
	var coin coingeckoCoin
	req := fetcher.Request{
		URL: coingeckoCoinURL + w.coinID,
		Params: map[string]string{
			"localization":   "false",
			"tickers":        "false",
			"market_data":    "true",
			"community_data": "false",
			"developer_data": "false",
		},
	}
	if err := fetcher.JSON(ctx, w.env.Fetcher, req, &coin); err != nil {
		return nil, fmt.Errorf("fetch coingecko coin %s: %w", w.coinID, err)
	}

	md := coin.MarketData
	title := w.title
	if title == "" {
		title = coin.Name + " Market Stats"
	}

	stats := []types.Stat{
		{Label: "Market Cap", Value: display.LargeNumber(md.MarketCap["usd"])},
	}
	if coin.MarketCapRank > 0 {
		stats = append(stats, types.Stat{Label: "Rank", Value: fmt.Sprintf("#%d", coin.MarketCapRank)})
	}
	sign := "+"
	if md.PriceChange24h < 0 {
		sign = ""
	}
	stats = append(stats, types.Stat{Label: "24h Change", Value: fmt.Sprintf("%s%.2f%%", sign, md.PriceChange24h)})

	if md.CirculatingSupply > 0 {
		stats = append(stats, types.Stat{Label: "Circulating Supply", Value: fmt.Sprintf("%.0f", md.CirculatingSupply)})
		if md.MaxSupply > 0 {
			pct := md.CirculatingSupply / md.MaxSupply * 100
			stats = append(stats, types.Stat{Label: "Supply Issued", Value: fmt.Sprintf("%.1f%%", pct)})
		}
	}
	if ath, ok := md.ATH["usd"]; ok {
		stats = append(stats, types.Stat{Label: "All-Time High", Value: athValue(ath, md.ATHDate["usd"])})
	}
	if atl, ok := md.ATL["usd"]; ok {
		stats = append(stats, types.Stat{Label: "All-Time Low", Value: athValue(atl, md.ATLDate["usd"])})
	}

	return &types.WidgetData{
		Type:      w.Type(),
		Title:     title,
		FetchedAt: time.Now().UTC(),
		Stats:     stats,
	}, nil
}

func athValue(price float64, isoDate string) string {
	value := display.Currency(price, 2)
	if ts, err := time.Parse(time.RFC3339, isoDate); err == nil {
		value += " (" + ts.Format("Jan 2, 2006") + ")"
	}
	return value
}
