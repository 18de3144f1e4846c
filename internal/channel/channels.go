package channel

import (
	"context"
	"sync"

	"predictflow/internal/models"
	"predictflow/logger"
)

type ChannelStats struct {
	PricesSent    int64
	TradesSent    int64
	BooksSent     int64
	StatesSent    int64
	ErrorsSent    int64
	PricesDropped int64
	TradesDropped int64
	BooksDropped  int64
	StatesDropped int64
	ErrorsDropped int64
}

// Channels carries the typed event streams emitted by the message router and
// connection lifecycle. External subscribers (storage sink, trading logic)
// consume from them; sends never block the ingestion hot path.
type Channels struct {
	Prices chan models.MarketEvent
	Trades chan models.MarketEvent
	Books  chan models.MarketEvent
	States chan models.ConnectionState
	Errors chan models.StreamError

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(eventBufferSize, errorBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Prices: make(chan models.MarketEvent, eventBufferSize),
		Trades: make(chan models.MarketEvent, eventBufferSize),
		Books:  make(chan models.MarketEvent, eventBufferSize),
		States: make(chan models.ConnectionState, errorBufferSize),
		Errors: make(chan models.StreamError, errorBufferSize),
		log:    log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"event_buffer_size": eventBufferSize,
		"error_buffer_size": errorBufferSize,
	}).Info("event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Prices)
	close(c.Trades)
	close(c.Books)
	close(c.States)
	close(c.Errors)
	c.log.WithComponent("event_channels").Info("event channels closed")
}

func (c *Channels) SendPrice(ctx context.Context, ev models.MarketEvent) bool {
	select {
	case c.Prices <- ev:
		c.increment(func(s *ChannelStats) { s.PricesSent++ })
		logger.RecordChannelMessage("prices", 0)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.PricesDropped++ })
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, ev models.MarketEvent) bool {
	select {
	case c.Trades <- ev:
		c.increment(func(s *ChannelStats) { s.TradesSent++ })
		logger.RecordChannelMessage("trades", 0)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.TradesDropped++ })
		return false
	}
}

func (c *Channels) SendBook(ctx context.Context, ev models.MarketEvent) bool {
	select {
	case c.Books <- ev:
		c.increment(func(s *ChannelStats) { s.BooksSent++ })
		logger.RecordChannelMessage("books", 0)
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.BooksDropped++ })
		return false
	}
}

func (c *Channels) SendState(ctx context.Context, state models.ConnectionState) bool {
	select {
	case c.States <- state:
		c.increment(func(s *ChannelStats) { s.StatesSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.StatesDropped++ })
		return false
	}
}

func (c *Channels) SendError(ctx context.Context, err models.StreamError) bool {
	select {
	case c.Errors <- err:
		c.increment(func(s *ChannelStats) { s.ErrorsSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.ErrorsDropped++ })
		return false
	}
}

func (c *Channels) increment(f func(*ChannelStats)) {
	c.statsMutex.Lock()
	f(&c.stats)
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
