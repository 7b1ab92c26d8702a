package widget

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diaorui/fathom-deck/internal/display"
	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/pkg/types"
)

const geminiTickerURL = "https://api.gemini.com/v1/pubticker/"

func init() {
	Register("crypto_price", newCryptoPrice)
}

// cryptoPrice shows the spot price of one trading pair from the Gemini
// public ticker. The symbol param is the pair, e.g. "btcusd".
type cryptoPrice struct {
	env    Env
	title  string
	symbol string
}

func newCryptoPrice(env Env, title string, params Params) (Widget, error) {
	symbol, err := params.Require("symbol")
	if err != nil {
		return nil, err
	}
	symbol = strings.ToLower(symbol)
	if title == "" {
		title = strings.ToUpper(symbol) + " Price"
	}
	return &cryptoPrice{env: env, title: title, symbol: symbol}, nil
}

func (w *cryptoPrice) Type() string { return "crypto_price" }

type geminiTicker struct {
	Last   string            `json:"last"`
	Bid    string            `json:"bid"`
	Ask    string            `json:"ask"`
	Volume map[string]string `json:"volume"`
}

func (w *cryptoPrice) Fetch(ctx context.Context) (*types.WidgetData, error) {
	var ticker geminiTicker
	req := fetcher.Request{URL: geminiTickerURL + w.symbol}
	if err := fetcher.JSON(ctx, w.env.Fetcher, req, &ticker); err != nil {
		return nil, fmt.Errorf("fetch gemini ticker %s: %w", w.symbol, err)
	}

	last, err := strconv.ParseFloat(ticker.Last, 64)
	if err != nil {
		return nil, fmt.Errorf("parse gemini last price %q: %w", ticker.Last, err)
	}

	stats := []types.Stat{
		{Label: "Price", Value: display.Currency(last, 2)},
	}
	if bid, err := strconv.ParseFloat(ticker.Bid, 64); err == nil {
		stats = append(stats, types.Stat{Label: "Bid", Value: display.Currency(bid, 2)})
	}
	if ask, err := strconv.ParseFloat(ticker.Ask, 64); err == nil {
		stats = append(stats, types.Stat{Label: "Ask", Value: display.Currency(ask, 2)})
	}
	// The volume map is keyed by asset code, e.g. {"BTC": ..., "USD": ...}.
	base := strings.ToUpper(w.symbol[:min(3, len(w.symbol))])
	if raw, ok := ticker.Volume[base]; ok {
		if vol, err := strconv.ParseFloat(raw, 64); err == nil {
			stats = append(stats, types.Stat{Label: "Volume (" + base + ")", Value: fmt.Sprintf("%.2f", vol)})
		}
	}

	return &types.WidgetData{
		Type:      w.Type(),
		Title:     w.title,
		FetchedAt: time.Now().UTC(),
		Stats:     stats,
	}, nil
}
