package models

import "time"

// EventType identifies the kind of wire message a MarketEvent was parsed from.
type EventType string

const (
	EventPriceChange EventType = "price_change"
	EventTrade       EventType = "last_trade_price"
	EventOrderBook   EventType = "agg_orderbook"
)

// MarketEvent is the fully parsed, immutable representation of one wire
// message. Exactly one of the payload pointers is set, matching Type.
type MarketEvent struct {
	Type       EventType
	AssetID    string
	Category   string
	VenueTime  time.Time
	ReceivedAt time.Time

	PriceChange *PriceChangePayload
	Trade       *TradePayload
	OrderBook   *OrderBookPayload
}

// PriceChangePayload carries a best bid/ask move together with the derived
// volatility estimate for the instrument.
type PriceChangePayload struct {
	Price      float64
	Size       float64
	Side       string
	BestBid    float64
	BestAsk    float64
	Volatility float64
}

// TradePayload carries a single executed trade.
type TradePayload struct {
	Price float64
	Size  float64
	Side  string
}

// OrderBookPayload carries an aggregated order book update.
type OrderBookPayload struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// PriceLevel is one side entry of an aggregated book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// StreamError is an escalated failure delivered on the error channel so the
// hosting application can act on it without the ingestion loops stopping.
type StreamError struct {
	Component string
	Err       error
	At        time.Time
}

func (e StreamError) Error() string {
	return e.Component + ": " + e.Err.Error()
}

func (e StreamError) Unwrap() error { return e.Err }
