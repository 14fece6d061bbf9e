// Package us holds the US equity ingest jobs: Alpaca daily bars, Alpaca
// news scored into daily sentiment, and a fundamentals CSV import.
package us

import (
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// MarketData is the subset of the Alpaca market-data client the gatherers
// call.
type MarketData interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

var _ MarketData = (*marketdata.Client)(nil)

// NewMarketDataClient returns an Alpaca market-data client. An empty
// dataURL selects the SDK default.
func NewMarketDataClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}
