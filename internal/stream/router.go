package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"predictflow/internal/channel"
	"predictflow/internal/metrics"
	"predictflow/internal/models"
	"predictflow/logger"
)

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wireMessage is the venue's JSON envelope. Numeric fields arrive as strings.
type wireMessage struct {
	EventType string      `json:"event_type"`
	Type      string      `json:"type"`
	AssetID   string      `json:"asset_id"`
	RequestID string      `json:"request_id"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Price     string      `json:"price"`
	Size      string      `json:"size"`
	Side      string      `json:"side"`
	BestBid   string      `json:"best_bid"`
	BestAsk   string      `json:"best_ask"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

// CategoryLookup answers whether an asset belongs to a tracked category.
type CategoryLookup func(assetID string) (string, bool)

// Router parses raw frames and dispatches them onto the typed channels.
// Messages for untracked assets and unknown event types are dropped without
// logging; they are expected traffic, not faults.
type Router struct {
	channels   *channel.Channels
	stats      *Stats
	categoryOf CategoryLookup
	log        *logger.Log
}

func NewRouter(channels *channel.Channels, stats *Stats, categoryOf CategoryLookup) *Router {
	return &Router{
		channels:   channels,
		stats:      stats,
		categoryOf: categoryOf,
		log:        logger.GetLogger(),
	}
}

// Route parses one raw frame and forwards it. A malformed frame is dropped
// with a warning; it never stops the read loop.
func (r *Router) Route(ctx context.Context, raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.log.WithComponent("message_router").WithError(err).Warn("dropping malformed frame")
		return
	}

	eventType := msg.EventType
	if eventType == "" {
		eventType = msg.Type
	}

	switch models.EventType(eventType) {
	case models.EventPriceChange:
		r.routePriceChange(ctx, &msg)
	case models.EventTrade:
		r.routeTrade(ctx, &msg)
	case models.EventOrderBook:
		r.routeBook(ctx, &msg)
	default:
		r.routeControl(ctx, eventType, &msg)
	}
}

// routeControl handles the venue's non-market frames: ping replies,
// subscription acknowledgements and error notices. Anything else is counted
// and dropped without logging.
func (r *Router) routeControl(ctx context.Context, eventType string, msg *wireMessage) {
	switch eventType {
	case "pong", "heartbeat":
		// Liveness already recorded by the read loop.
	case "subscribed", "subscription_ack":
		r.log.WithComponent("message_router").WithField("request_id", msg.RequestID).Debug("subscription acknowledged")
	case "error":
		err := models.StreamError{
			Component: "message_router",
			Err:       fmt.Errorf("venue error: %s", msg.Message),
			At:        time.Now().UTC(),
		}
		if !r.channels.SendError(ctx, err) {
			metrics.EmitDropMetric(r.log, metrics.DropMetricError, msg.AssetID, "")
		}
	default:
		r.stats.recordUnknown()
	}
}

func (r *Router) routePriceChange(ctx context.Context, msg *wireMessage) {
	category, ok := r.categoryOf(msg.AssetID)
	if !ok {
		r.stats.recordFiltered()
		return
	}

	price := parseFloat(msg.Price)
	ev := models.MarketEvent{
		Type:       models.EventPriceChange,
		AssetID:    msg.AssetID,
		Category:   category,
		VenueTime:  parseVenueTime(msg.Timestamp),
		ReceivedAt: time.Now().UTC(),
		PriceChange: &models.PriceChangePayload{
			Price:      price,
			Size:       parseFloat(msg.Size),
			Side:       msg.Side,
			BestBid:    parseFloat(msg.BestBid),
			BestAsk:    parseFloat(msg.BestAsk),
			Volatility: EstimateVolatility(price),
		},
	}

	r.stats.recordPriceChange(category)
	if !r.channels.SendPrice(ctx, ev) {
		metrics.EmitDropMetric(r.log, metrics.DropMetricPrice, msg.AssetID, category)
	}
}

func (r *Router) routeTrade(ctx context.Context, msg *wireMessage) {
	category, ok := r.categoryOf(msg.AssetID)
	if !ok {
		r.stats.recordFiltered()
		return
	}

	ev := models.MarketEvent{
		Type:       models.EventTrade,
		AssetID:    msg.AssetID,
		Category:   category,
		VenueTime:  parseVenueTime(msg.Timestamp),
		ReceivedAt: time.Now().UTC(),
		Trade: &models.TradePayload{
			Price: parseFloat(msg.Price),
			Size:  parseFloat(msg.Size),
			Side:  msg.Side,
		},
	}

	r.stats.recordTrade(category)
	if !r.channels.SendTrade(ctx, ev) {
		metrics.EmitDropMetric(r.log, metrics.DropMetricTrade, msg.AssetID, category)
	}
}

func (r *Router) routeBook(ctx context.Context, msg *wireMessage) {
	category, ok := r.categoryOf(msg.AssetID)
	if !ok {
		r.stats.recordFiltered()
		return
	}

	ev := models.MarketEvent{
		Type:       models.EventOrderBook,
		AssetID:    msg.AssetID,
		Category:   category,
		VenueTime:  parseVenueTime(msg.Timestamp),
		ReceivedAt: time.Now().UTC(),
		OrderBook: &models.OrderBookPayload{
			Bids: parseLevels(msg.Bids),
			Asks: parseLevels(msg.Asks),
		},
	}

	r.stats.recordBook(category)
	if !r.channels.SendBook(ctx, ev) {
		metrics.EmitDropMetric(r.log, metrics.DropMetricBook, msg.AssetID, category)
	}
}

func parseLevels(levels []wireLevel) []models.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, models.PriceLevel{
			Price: parseFloat(l.Price),
			Size:  parseFloat(l.Size),
		})
	}
	return out
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseVenueTime decodes the venue's millisecond epoch timestamp.
func parseVenueTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
