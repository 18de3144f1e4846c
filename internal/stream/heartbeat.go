package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"predictflow/logger"
)

// Reconnector is the lifecycle hook the watchdog escalates to. The watchdog
// never touches the socket itself; tearing down and re-establishing the
// connection is the lifecycle's job.
type Reconnector interface {
	RequestReconnect(reason string)
}

// Watchdog monitors stream liveness. On every tick it either sends a ping
// through the active connection or, when no message has arrived within the
// timeout, asks the lifecycle to reconnect. A stale episode produces exactly
// one reconnect request; the flag rearms once traffic resumes.
type Watchdog struct {
	interval    time.Duration
	timeout     time.Duration
	reconnector Reconnector
	log         *logger.Log

	lastMsg atomic.Int64
	stale   atomic.Bool

	pingMu sync.Mutex
	ping   func() error
}

func NewWatchdog(interval, timeout time.Duration, reconnector Reconnector) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	w := &Watchdog{
		interval:    interval,
		timeout:     timeout,
		reconnector: reconnector,
		log:         logger.GetLogger(),
	}
	w.lastMsg.Store(time.Now().UnixNano())
	return w
}

// Touch records stream activity and rearms the staleness flag.
func (w *Watchdog) Touch() {
	w.lastMsg.Store(time.Now().UnixNano())
	w.stale.Store(false)
}

// SetPing installs the ping sender for the current connection. Pass nil when
// no connection is up.
func (w *Watchdog) SetPing(ping func() error) {
	w.pingMu.Lock()
	w.ping = ping
	w.pingMu.Unlock()
}

// Run ticks until the context is cancelled. Callers run it in a goroutine.
func (w *Watchdog) Run(ctx context.Context) {
	log := w.log.WithComponent("stream_watchdog")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(log)
		}
	}
}

func (w *Watchdog) tick(log *logger.Entry) {
	silence := time.Since(time.Unix(0, w.lastMsg.Load()))
	if silence > w.timeout {
		if !w.stale.Swap(true) {
			log.WithFields(logger.Fields{
				"silence_ms": silence.Milliseconds(),
				"timeout_ms": w.timeout.Milliseconds(),
			}).Warn("stream stale, requesting reconnect")
			w.reconnector.RequestReconnect("message timeout")
		}
		return
	}

	w.pingMu.Lock()
	ping := w.ping
	w.pingMu.Unlock()
	if ping == nil {
		return
	}
	if err := ping(); err != nil {
		log.WithError(err).Warn("ping failed")
	}
}
