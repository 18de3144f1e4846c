package sink

import (
	"context"
	"sync"

	"predictflow/internal/channel"
	"predictflow/internal/models"
	"predictflow/logger"
)

// Sink receives routed market events. Implementations decide what durability
// means; the runner only guarantees delivery order per channel.
type Sink interface {
	Persist(ctx context.Context, ev models.MarketEvent) error
}

// LogSink writes each event to the structured log. It is the default sink
// when no storage backend is wired in.
type LogSink struct {
	log *logger.Log
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.GetLogger()}
}

func (s *LogSink) Persist(_ context.Context, ev models.MarketEvent) error {
	entry := s.log.WithComponent("log_sink").WithFields(logger.Fields{
		"event_type": string(ev.Type),
		"asset_id":   ev.AssetID,
		"category":   ev.Category,
	})
	switch {
	case ev.PriceChange != nil:
		entry.WithFields(logger.Fields{
			"price":      ev.PriceChange.Price,
			"volatility": ev.PriceChange.Volatility,
		}).Info("price change")
	case ev.Trade != nil:
		entry.WithFields(logger.Fields{
			"price": ev.Trade.Price,
			"size":  ev.Trade.Size,
		}).Info("trade")
	case ev.OrderBook != nil:
		entry.WithFields(logger.Fields{
			"bid_levels": len(ev.OrderBook.Bids),
			"ask_levels": len(ev.OrderBook.Asks),
		}).Info("order book")
	default:
		entry.Info("event")
	}
	return nil
}

// Runner drains the typed event channels into a sink. A failed persist is
// logged and the event dropped; the drain loops never stop on item failures.
type Runner struct {
	channels *channel.Channels
	sink     Sink
	log      *logger.Log

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(channels *channel.Channels, sink Sink) *Runner {
	return &Runner{
		channels: channels,
		sink:     sink,
		log:      logger.GetLogger(),
	}
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(3)
	go r.drain(ctx, r.channels.Prices)
	go r.drain(ctx, r.channels.Trades)
	go r.drain(ctx, r.channels.Books)

	r.log.WithComponent("sink_runner").Info("sink runner started")
}

func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.log.WithComponent("sink_runner").Info("sink runner stopped")
}

func (r *Runner) drain(ctx context.Context, events <-chan models.MarketEvent) {
	defer r.wg.Done()
	log := r.log.WithComponent("sink_runner")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.sink.Persist(ctx, ev); err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"event_type": string(ev.Type),
					"asset_id":   ev.AssetID,
				}).Warn("persist failed, event dropped")
			}
		}
	}
}
