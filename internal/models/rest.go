package models

import "time"

// Quote is the latest NBBO-style quote for an equity symbol.
type Quote struct {
	Symbol    string
	BidPrice  float64   `json:"bp"`
	BidSize   int64     `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   int64     `json:"as"`
	Timestamp time.Time `json:"t"`
}

// Bar is one OHLCV aggregate.
type Bar struct {
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
	Timestamp time.Time `json:"t"`
}

// OptionQuote is the latest quote embedded in an option snapshot.
type OptionQuote struct {
	BidPrice float64 `json:"bp"`
	AskPrice float64 `json:"ap"`
}

// OptionSnapshot is one contract entry of an option chain response.
type OptionSnapshot struct {
	ImpliedVolatility float64      `json:"impliedVolatility"`
	LatestQuote       *OptionQuote `json:"latestQuote"`
}

// VolatilityChain aggregates the implied volatility of every successfully
// fetched contract for an underlying, plus their arithmetic mean.
type VolatilityChain struct {
	Underlying string
	Options    map[string]float64
	MeanIV     float64
	FetchedAt  time.Time
}
