package stream

import (
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of the ingestion counters.
type StatsSnapshot struct {
	PriceChanges  int64
	Trades        int64
	Books         int64
	Filtered      int64
	Unknown       int64
	Reconnects    int64
	Subscriptions int64
	ByCategory    map[string]int64
	LastEventAt   time.Time
}

// Stats counts routed messages by type and category. It is written from the
// read loop only but read from anywhere, so access stays behind a mutex.
type Stats struct {
	mu            sync.Mutex
	priceChanges  int64
	trades        int64
	books         int64
	filtered      int64
	unknown       int64
	reconnects    int64
	subscriptions int64
	byCategory    map[string]int64
	lastEventAt   time.Time
}

func NewStats() *Stats {
	return &Stats{byCategory: make(map[string]int64)}
}

func (s *Stats) recordPriceChange(category string) {
	s.mu.Lock()
	s.priceChanges++
	s.byCategory[category]++
	s.lastEventAt = time.Now()
	s.mu.Unlock()
}

func (s *Stats) recordTrade(category string) {
	s.mu.Lock()
	s.trades++
	s.byCategory[category]++
	s.lastEventAt = time.Now()
	s.mu.Unlock()
}

func (s *Stats) recordBook(category string) {
	s.mu.Lock()
	s.books++
	s.byCategory[category]++
	s.lastEventAt = time.Now()
	s.mu.Unlock()
}

func (s *Stats) recordFiltered() {
	s.mu.Lock()
	s.filtered++
	s.mu.Unlock()
}

func (s *Stats) recordUnknown() {
	s.mu.Lock()
	s.unknown++
	s.mu.Unlock()
}

func (s *Stats) recordReconnect() {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
}

func (s *Stats) recordSubscription() {
	s.mu.Lock()
	s.subscriptions++
	s.mu.Unlock()
}

// Snapshot returns a deep copy; the per-category map is never shared.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory := make(map[string]int64, len(s.byCategory))
	for k, v := range s.byCategory {
		byCategory[k] = v
	}
	return StatsSnapshot{
		PriceChanges:  s.priceChanges,
		Trades:        s.trades,
		Books:         s.books,
		Filtered:      s.filtered,
		Unknown:       s.unknown,
		Reconnects:    s.reconnects,
		Subscriptions: s.subscriptions,
		ByCategory:    byCategory,
		LastEventAt:   s.lastEventAt,
	}
}
