package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"predictflow/config"
	"predictflow/internal/models"
	"predictflow/logger"
)

const pageSize = 100

// Snapshot is one immutable discovery result. Readers hold a snapshot pointer
// and never observe a partially built refresh.
type Snapshot struct {
	Categories  map[string]string
	Instruments []models.TrackedInstrument
	RefreshedAt time.Time
}

// CategoryOf returns the category for an asset id, if the asset is tracked.
func (s *Snapshot) CategoryOf(assetID string) (string, bool) {
	if s == nil {
		return "", false
	}
	category, ok := s.Categories[assetID]
	return category, ok
}

// Discoverer resolves configured category labels against the venue's tag
// catalogue and builds the tracked instrument set from the open markets under
// those tags. Each refresh is built off to the side and swapped in atomically;
// a failed refresh leaves the previous snapshot in place.
type Discoverer struct {
	config     config.DiscoveryConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
	snapshot   atomic.Pointer[Snapshot]
}

func NewDiscoverer(cfg config.DiscoveryConfig) *Discoverer {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	d := &Discoverer{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		log:        logger.GetLogger(),
	}
	d.snapshot.Store(&Snapshot{Categories: map[string]string{}})
	return d
}

// Snapshot returns the current discovery result. The returned value is
// immutable and safe to read without locks.
func (d *Discoverer) Snapshot() *Snapshot {
	return d.snapshot.Load()
}

// CategoryOf looks up the category of an asset in the current snapshot.
func (d *Discoverer) CategoryOf(assetID string) (string, bool) {
	return d.Snapshot().CategoryOf(assetID)
}

type tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

type market struct {
	Question     string  `json:"question"`
	ClobTokenIDs string  `json:"clobTokenIds"`
	Volume       float64 `json:"volumeNum"`
	Active       bool    `json:"active"`
	Closed       bool    `json:"closed"`
}

type event struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Markets []market `json:"markets"`
}

// Refresh rebuilds the tracked instrument set: resolve the configured
// category labels to venue tags, fetch the open events under each tag and
// flatten their markets into instruments. On success the new snapshot
// replaces the old one in a single pointer swap. On failure the old snapshot
// is retained and the error returned.
func (d *Discoverer) Refresh(ctx context.Context) error {
	log := d.log.WithComponent("discovery")

	tags, err := d.fetchTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tags: %w", err)
	}

	matched := matchTags(tags, d.config.Categories)
	if len(matched) == 0 {
		return fmt.Errorf("no venue tags match configured categories %v", d.config.Categories)
	}

	next := &Snapshot{
		Categories:  make(map[string]string),
		RefreshedAt: time.Now().UTC(),
	}

	for _, t := range matched {
		events, err := d.fetchEvents(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch events for tag %s: %w", t.Slug, err)
		}

		for _, ev := range events {
			for _, m := range ev.Markets {
				if m.Closed || !m.Active {
					continue
				}
				tokenIDs, err := parseTokenIDs(m.ClobTokenIDs)
				if err != nil {
					log.WithError(err).WithField("question", m.Question).Warn("skipping market with malformed token ids")
					continue
				}
				for _, assetID := range tokenIDs {
					if assetID == "" {
						continue
					}
					if _, seen := next.Categories[assetID]; seen {
						continue
					}
					next.Categories[assetID] = t.Label
					next.Instruments = append(next.Instruments, models.TrackedInstrument{
						AssetID:  assetID,
						EventID:  ev.ID,
						Title:    m.Question,
						Category: t.Label,
						Volume:   m.Volume,
					})
				}
			}
		}
	}

	d.snapshot.Store(next)
	log.WithFields(logger.Fields{
		"categories":  len(matched),
		"instruments": len(next.Instruments),
	}).Info("discovery snapshot refreshed")
	return nil
}

// RunSync refreshes on the configured interval until the context is
// cancelled. onRefresh is invoked after every successful refresh; refresh
// failures are logged and the previous snapshot stays live.
func (d *Discoverer) RunSync(ctx context.Context, onRefresh func()) {
	interval := d.config.SyncInterval()
	if interval <= 0 {
		return
	}

	log := d.log.WithComponent("discovery")
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Refresh(ctx); err != nil {
					log.WithError(err).Warn("periodic discovery refresh failed, keeping previous snapshot")
					continue
				}
				if onRefresh != nil {
					onRefresh()
				}
			}
		}
	}()
}

func (d *Discoverer) fetchTags(ctx context.Context) ([]tag, error) {
	var tags []tag
	if err := d.getJSON(ctx, "/tags", nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (d *Discoverer) fetchEvents(ctx context.Context, tagID string) ([]event, error) {
	var all []event
	for offset := 0; ; offset += pageSize {
		query := url.Values{}
		query.Set("tag_id", tagID)
		query.Set("active", "true")
		query.Set("closed", "false")
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page []event
		if err := d.getJSON(ctx, "/events", query, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (d *Discoverer) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// matchTags pairs configured category labels with venue tags, matching label
// or slug case-insensitively.
func matchTags(tags []tag, categories []string) []tag {
	var matched []tag
	for _, want := range categories {
		for _, t := range tags {
			if strings.EqualFold(t.Label, want) || strings.EqualFold(t.Slug, want) {
				matched = append(matched, t)
				break
			}
		}
	}
	return matched
}

// parseTokenIDs decodes the venue's token id field, a JSON array serialized
// into a string.
func parseTokenIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("malformed token id list %q: %w", raw, err)
	}
	return ids, nil
}
