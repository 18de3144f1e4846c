package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictflow/internal/models"
)

func TestFrameCarriesFullInstrumentSet(t *testing.T) {
	m := NewSubscriptionManager()
	m.Set([]models.TrackedInstrument{
		{AssetID: "a1", EventID: "e1"},
		{AssetID: "a2", EventID: "e1"},
		{AssetID: "a3", EventID: "e2"},
	})

	raw, err := m.Frame()
	require.NoError(t, err)

	var frame subscribeFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "subscribe", frame.Type)
	assert.NotEmpty(t, frame.RequestID)
	require.Len(t, frame.Subscriptions, 4)

	for _, sub := range frame.Subscriptions[:3] {
		assert.Equal(t, topicMarket, sub.Topic)
		var ids []string
		require.NoError(t, json.Unmarshal([]byte(sub.Filters), &ids))
		assert.Equal(t, []string{"a1", "a2", "a3"}, ids)
	}

	activity := frame.Subscriptions[3]
	assert.Equal(t, topicActivity, activity.Topic)
	assert.Equal(t, subTypeTradeActivity, activity.Type)
	var events []string
	require.NoError(t, json.Unmarshal([]byte(activity.Filters), &events))
	assert.Equal(t, []string{"e1", "e2"}, events)
}

func TestFrameMintsFreshRequestID(t *testing.T) {
	m := NewSubscriptionManager()
	m.Set([]models.TrackedInstrument{{AssetID: "a1", EventID: "e1"}})

	first, err := m.Frame()
	require.NoError(t, err)
	second, err := m.Frame()
	require.NoError(t, err)

	var f1, f2 subscribeFrame
	require.NoError(t, json.Unmarshal(first, &f1))
	require.NoError(t, json.Unmarshal(second, &f2))
	assert.NotEqual(t, f1.RequestID, f2.RequestID)
}

func TestFrameEmptySetErrors(t *testing.T) {
	m := NewSubscriptionManager()
	_, err := m.Frame()
	assert.Error(t, err)
}

func TestSetReplacesNotMerges(t *testing.T) {
	m := NewSubscriptionManager()
	m.Set([]models.TrackedInstrument{{AssetID: "a1"}, {AssetID: "a2"}})
	m.Set([]models.TrackedInstrument{{AssetID: "b1"}})

	raw, err := m.Frame()
	require.NoError(t, err)

	var frame subscribeFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.NotContains(t, frame.Subscriptions[0].Filters, "a1")
	assert.Contains(t, frame.Subscriptions[0].Filters, "b1")
	assert.Equal(t, 1, m.Count())
}

func TestStatsSnapshotDeepCopy(t *testing.T) {
	s := NewStats()
	s.recordPriceChange("Politics")
	s.recordTrade("Politics")
	s.recordBook("Crypto")

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.PriceChanges)
	assert.Equal(t, int64(2), snap.ByCategory["Politics"])

	// Mutating the copy must not leak back.
	snap.ByCategory["Politics"] = 99
	assert.Equal(t, int64(2), s.Snapshot().ByCategory["Politics"])
}
