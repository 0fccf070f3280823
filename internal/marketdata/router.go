package marketdata

import (
	"context"

	"watchdash/internal/models"
)

// Router sends BINANCE: tickers to the crypto source and everything else to equities.
type Router struct {
	Equity Fetcher
	Crypto Fetcher
}

func (r *Router) FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	if IsBinance(symbol) && r.Crypto != nil {
		return r.Crypto.FetchBars(ctx, symbol, period, interval)
	}
	return r.Equity.FetchBars(ctx, symbol, period, interval)
}
