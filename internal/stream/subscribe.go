package stream

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"predictflow/internal/models"
)

const (
	topicMarket   = "clob_market"
	topicActivity = "activity"

	subTypeTradeActivity = "trade_activity"
)

type subscriptionEntry struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

type subscribeFrame struct {
	Type          string              `json:"type"`
	RequestID     string              `json:"request_id"`
	Subscriptions []subscriptionEntry `json:"subscriptions"`
}

// SubscriptionManager holds the desired instrument set and renders it into
// subscription frames. The venue has no incremental subscription support, so
// every frame always carries the complete set.
type SubscriptionManager struct {
	mu          sync.RWMutex
	instruments []models.TrackedInstrument
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{}
}

// Set replaces the tracked instrument set.
func (m *SubscriptionManager) Set(instruments []models.TrackedInstrument) {
	copied := make([]models.TrackedInstrument, len(instruments))
	copy(copied, instruments)

	m.mu.Lock()
	m.instruments = copied
	m.mu.Unlock()
}

// Count returns the number of tracked instruments.
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instruments)
}

// Frame renders the full subscription frame: the three market feeds filtered
// to every tracked asset, plus trade activity filtered to every distinct
// event. A fresh request id is minted per frame.
func (m *SubscriptionManager) Frame() ([]byte, error) {
	m.mu.RLock()
	instruments := m.instruments
	m.mu.RUnlock()

	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments to subscribe")
	}

	assetIDs := make([]string, 0, len(instruments))
	eventSeen := make(map[string]struct{})
	eventIDs := make([]string, 0)
	for _, inst := range instruments {
		assetIDs = append(assetIDs, inst.AssetID)
		if inst.EventID == "" {
			continue
		}
		if _, ok := eventSeen[inst.EventID]; ok {
			continue
		}
		eventSeen[inst.EventID] = struct{}{}
		eventIDs = append(eventIDs, inst.EventID)
	}

	assetFilter, err := json.Marshal(assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode asset filter: %w", err)
	}

	frame := subscribeFrame{
		Type:      "subscribe",
		RequestID: uuid.NewString(),
		Subscriptions: []subscriptionEntry{
			{Topic: topicMarket, Type: string(models.EventPriceChange), Filters: string(assetFilter)},
			{Topic: topicMarket, Type: string(models.EventTrade), Filters: string(assetFilter)},
			{Topic: topicMarket, Type: string(models.EventOrderBook), Filters: string(assetFilter)},
		},
	}

	if len(eventIDs) > 0 {
		eventFilter, err := json.Marshal(eventIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event filter: %w", err)
		}
		frame.Subscriptions = append(frame.Subscriptions, subscriptionEntry{
			Topic:   topicActivity,
			Type:    subTypeTradeActivity,
			Filters: string(eventFilter),
		})
	}

	return json.Marshal(frame)
}
