package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"predictflow/config"
	"predictflow/internal/channel"
	"predictflow/internal/models"
	"predictflow/logger"
)

const writeTimeout = 10 * time.Second

// ErrReconnectFailed marks the terminal failure after every reconnect
// attempt has been used up. Recovery requires external intervention.
var ErrReconnectFailed = errors.New("reconnect attempts exhausted")

// Reader owns the streaming connection lifecycle: dial, subscribe, read,
// back off, reconnect. It is the only component that opens or closes the
// socket; the watchdog and external callers escalate through
// RequestReconnect instead.
type Reader struct {
	config   config.StreamConfig
	channels *channel.Channels
	subs     *SubscriptionManager
	router   *Router
	watchdog *Watchdog
	stats    *Stats
	log      *logger.Log

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	writeMu sync.Mutex
	conn    *websocket.Conn

	state       atomic.Int32
	reconnectCh chan string
}

func NewReader(cfg config.StreamConfig, channels *channel.Channels, categoryOf CategoryLookup) *Reader {
	stats := NewStats()
	r := &Reader{
		config:      cfg,
		channels:    channels,
		subs:        NewSubscriptionManager(),
		stats:       stats,
		log:         logger.GetLogger(),
		reconnectCh: make(chan string, 1),
	}
	r.router = NewRouter(channels, stats, categoryOf)
	r.watchdog = NewWatchdog(cfg.HeartbeatInterval(), cfg.MessageTimeout(), r)
	r.state.Store(int32(models.StateDisconnected))
	return r
}

// State returns the current connection state.
func (r *Reader) State() models.ConnectionState {
	return models.ConnectionState(r.state.Load())
}

// Stats returns a copy of the ingestion counters.
func (r *Reader) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// SetInstruments replaces the tracked instrument set without touching a live
// connection. Use Resubscribe to also push the new set to the venue.
func (r *Reader) SetInstruments(instruments []models.TrackedInstrument) {
	r.subs.Set(instruments)
}

// Start launches the connection lifecycle and the liveness watchdog.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("stream reader already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.watchdog.Run(ctx)
	}()
	go r.run(ctx)

	r.log.WithComponent("stream_reader").WithFields(logger.Fields{
		"url":         r.config.URL,
		"instruments": r.subs.Count(),
	}).Info("stream reader started")
	return nil
}

// Stop tears the lifecycle down and waits for the loops to exit.
func (r *Reader) Stop() {
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
	r.setState(context.Background(), models.StateDisconnected)
	r.log.WithComponent("stream_reader").Info("stream reader stopped")
}

// RequestReconnect asks the lifecycle to drop and re-establish the
// connection. Safe to call from any goroutine; duplicate requests while one
// is pending collapse into it.
func (r *Reader) RequestReconnect(reason string) {
	select {
	case r.reconnectCh <- reason:
	default:
	}
}

// Resubscribe replaces the instrument set and, when connected, pushes the
// complete new subscription frame to the venue.
func (r *Reader) Resubscribe(instruments []models.TrackedInstrument) error {
	r.subs.Set(instruments)
	if r.State() != models.StateConnected {
		return nil
	}

	frame, err := r.subs.Frame()
	if err != nil {
		return err
	}
	if err := r.writeFrame(frame); err != nil {
		return fmt.Errorf("failed to send subscription frame: %w", err)
	}
	r.stats.recordSubscription()
	r.log.WithComponent("stream_reader").WithField("instruments", len(instruments)).Info("resubscribed")
	return nil
}

func (r *Reader) run(ctx context.Context) {
	defer r.wg.Done()
	log := r.log.WithComponent("stream_reader")

	attempt := 0
	for {
		if ctx.Err() != nil {
			r.setState(ctx, models.StateDisconnected)
			return
		}

		if attempt == 0 {
			r.setState(ctx, models.StateConnecting)
		} else {
			r.setState(ctx, models.StateReconnecting)
			delay := backoffDelay(attempt, r.config.InitialReconnectDelay(), r.config.MaxReconnectDelay())
			log.WithFields(logger.Fields{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
			}).Warn("reconnecting after backoff")
			if !sleepCtx(ctx, delay) {
				r.setState(ctx, models.StateDisconnected)
				return
			}
		}

		conn, err := r.connect(ctx)
		if err != nil {
			attempt++
			log.WithError(err).WithField("attempt", attempt).Warn("connect failed")
			if attempt > r.config.MaxReconnectAttempts {
				r.sendError("stream_reader", fmt.Errorf("%w: %v", ErrReconnectFailed, err))
				r.setState(ctx, models.StateFailed)
				log.WithField("max_attempts", r.config.MaxReconnectAttempts).Error("giving up on stream connection")
				return
			}
			continue
		}

		// A reconnect request queued while no connection was up must not
		// kill the one that just came up.
		select {
		case <-r.reconnectCh:
		default:
		}

		r.setState(ctx, models.StateConnected)
		if attempt > 0 {
			r.stats.recordReconnect()
		}
		attempt = 0

		reason := r.serve(ctx, conn)
		r.teardown(conn)

		if ctx.Err() != nil {
			r.setState(ctx, models.StateDisconnected)
			return
		}
		log.WithField("reason", reason).Warn("connection lost")
		attempt = 1
	}
}

// connect dials the venue and sends the full subscription frame. With no
// instruments discovered yet the connection still comes up unsubscribed; a
// later Resubscribe pushes the set once discovery recovers.
func (r *Reader) connect(ctx context.Context) (*websocket.Conn, error) {
	var frame []byte
	if r.subs.Count() > 0 {
		var err error
		frame, err = r.subs.Frame()
		if err != nil {
			return nil, err
		}
	} else {
		r.log.WithComponent("stream_reader").Warn("no instruments discovered, connecting without subscriptions")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()

	if frame != nil {
		if err := r.writeFrame(frame); err != nil {
			r.teardown(conn)
			return nil, fmt.Errorf("subscribe failed: %w", err)
		}
		r.stats.recordSubscription()
	}

	r.watchdog.Touch()
	r.watchdog.SetPing(func() error {
		r.writeMu.Lock()
		defer r.writeMu.Unlock()
		if r.conn == nil {
			return nil
		}
		return r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
	})
	return conn, nil
}

// serve pumps the read loop until the connection errors, a reconnect is
// requested, or the context ends. It returns the reason the connection ended.
func (r *Reader) serve(ctx context.Context, conn *websocket.Conn) string {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			logger.IncrementStreamRead(len(raw))
			r.watchdog.Touch()
			r.router.Route(ctx, raw)
		}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		<-readErr
		return "shutdown"
	case reason := <-r.reconnectCh:
		conn.Close()
		<-readErr
		return reason
	case err := <-readErr:
		r.sendError("stream_reader", err)
		return err.Error()
	}
}

func (r *Reader) teardown(conn *websocket.Conn) {
	r.watchdog.SetPing(nil)
	r.writeMu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.writeMu.Unlock()
	conn.Close()
}

func (r *Reader) writeFrame(data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("not connected")
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Reader) setState(ctx context.Context, state models.ConnectionState) {
	old := models.ConnectionState(r.state.Swap(int32(state)))
	if old == state {
		return
	}
	r.log.WithComponent("stream_reader").WithFields(logger.Fields{
		"from": old.String(),
		"to":   state.String(),
	}).Info("connection state changed")
	r.channels.SendState(ctx, state)
}

func (r *Reader) sendError(component string, err error) {
	r.channels.SendError(context.Background(), models.StreamError{
		Component: component,
		Err:       err,
		At:        time.Now().UTC(),
	})
}

// backoffDelay returns the reconnect delay for a 1-based attempt number:
// the initial delay doubled per prior attempt, capped at max.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
