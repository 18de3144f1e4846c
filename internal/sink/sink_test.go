package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"predictflow/internal/channel"
	"predictflow/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.MarketEvent
	fail   map[string]bool
}

func (s *recordingSink) Persist(_ context.Context, ev models.MarketEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[ev.AssetID] {
		return errors.New("backend unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestRunnerDrainsAllChannels(t *testing.T) {
	channels := channel.NewChannels(10, 10)
	rec := &recordingSink{}
	runner := NewRunner(channels, rec)

	runner.Start(context.Background())
	defer runner.Stop()

	ctx := context.Background()
	channels.SendPrice(ctx, models.MarketEvent{Type: models.EventPriceChange, AssetID: "a1", PriceChange: &models.PriceChangePayload{Price: 0.5}})
	channels.SendTrade(ctx, models.MarketEvent{Type: models.EventTrade, AssetID: "a2", Trade: &models.TradePayload{Price: 0.6}})
	channels.SendBook(ctx, models.MarketEvent{Type: models.EventOrderBook, AssetID: "a3", OrderBook: &models.OrderBookPayload{}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && rec.count() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 3, rec.count())
}

func TestRunnerSurvivesPersistFailures(t *testing.T) {
	channels := channel.NewChannels(10, 10)
	rec := &recordingSink{fail: map[string]bool{"bad": true}}
	runner := NewRunner(channels, rec)

	runner.Start(context.Background())
	defer runner.Stop()

	ctx := context.Background()
	channels.SendTrade(ctx, models.MarketEvent{Type: models.EventTrade, AssetID: "bad", Trade: &models.TradePayload{}})
	channels.SendTrade(ctx, models.MarketEvent{Type: models.EventTrade, AssetID: "good", Trade: &models.TradePayload{}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && rec.count() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "good", rec.events[0].AssetID)
}

func TestLogSinkHandlesAllPayloads(t *testing.T) {
	s := NewLogSink()
	ctx := context.Background()
	assert.NoError(t, s.Persist(ctx, models.MarketEvent{Type: models.EventPriceChange, PriceChange: &models.PriceChangePayload{Price: 0.5, Volatility: 100}}))
	assert.NoError(t, s.Persist(ctx, models.MarketEvent{Type: models.EventTrade, Trade: &models.TradePayload{Price: 0.4}}))
	assert.NoError(t, s.Persist(ctx, models.MarketEvent{Type: models.EventOrderBook, OrderBook: &models.OrderBookPayload{}}))
	assert.NoError(t, s.Persist(ctx, models.MarketEvent{}))
}
