package channel

import (
	"context"
	"testing"

	"predictflow/internal/models"
)

func TestSendAndDropAccounting(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	ev := models.MarketEvent{Type: models.EventPriceChange, AssetID: "a1"}
	if !c.SendPrice(ctx, ev) {
		t.Fatal("first send should succeed")
	}
	if c.SendPrice(ctx, ev) {
		t.Fatal("second send should drop on a full buffer")
	}

	stats := c.GetStats()
	if stats.PricesSent != 1 {
		t.Errorf("expected 1 price sent, got %d", stats.PricesSent)
	}
	if stats.PricesDropped != 1 {
		t.Errorf("expected 1 price dropped, got %d", stats.PricesDropped)
	}

	got := <-c.Prices
	if got.AssetID != "a1" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestSendCancelledContext(t *testing.T) {
	c := NewChannels(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the buffer so the send has to choose between ctx and drop.
	c.Trades <- models.MarketEvent{}
	if c.SendTrade(ctx, models.MarketEvent{}) {
		t.Fatal("send should fail once context is cancelled")
	}
}

func TestStateAndErrorChannels(t *testing.T) {
	c := NewChannels(1, 2)
	ctx := context.Background()

	if !c.SendState(ctx, models.StateConnected) {
		t.Fatal("state send failed")
	}
	if !c.SendError(ctx, models.StreamError{Component: "stream_reader"}) {
		t.Fatal("error send failed")
	}

	if got := <-c.States; got != models.StateConnected {
		t.Errorf("unexpected state: %v", got)
	}
	if got := <-c.Errors; got.Component != "stream_reader" {
		t.Errorf("unexpected error event: %+v", got)
	}
	c.Close()
}
