package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictflow/config"
)

func gammaHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"1","label":"Politics","slug":"politics"},
			{"id":"2","label":"Crypto","slug":"crypto"},
			{"id":"3","label":"Sports","slug":"sports"}
		]`)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		switch r.URL.Query().Get("tag_id") {
		case "1":
			fmt.Fprint(w, `[{
				"id":"evt-100","title":"Election night",
				"markets":[
					{"question":"Candidate A wins","clobTokenIds":"[\"tok-a-yes\",\"tok-a-no\"]","volumeNum":5000,"active":true,"closed":false},
					{"question":"Resolved already","clobTokenIds":"[\"tok-old\"]","volumeNum":10,"active":false,"closed":true}
				]
			}]`)
		case "2":
			fmt.Fprint(w, `[{
				"id":"evt-200","title":"BTC above 100k",
				"markets":[
					{"question":"BTC above 100k by Dec","clobTokenIds":"[\"tok-btc-yes\",\"tok-btc-no\"]","volumeNum":9000,"active":true,"closed":false}
				]
			}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	return mux
}

func testDiscoverer(t *testing.T, handler http.Handler, categories []string) *Discoverer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewDiscoverer(config.DiscoveryConfig{
		BaseURL:           server.URL,
		Categories:        categories,
		RequestsPerSecond: 100,
	})
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	d := testDiscoverer(t, gammaHandler(t), []string{"Politics", "crypto"})

	require.NoError(t, d.Refresh(context.Background()))
	snap := d.Snapshot()

	assert.Len(t, snap.Instruments, 4)
	category, ok := snap.CategoryOf("tok-a-yes")
	require.True(t, ok)
	assert.Equal(t, "Politics", category)
	category, ok = snap.CategoryOf("tok-btc-no")
	require.True(t, ok)
	assert.Equal(t, "Crypto", category)

	// Closed markets are excluded.
	_, ok = snap.CategoryOf("tok-old")
	assert.False(t, ok)
	assert.False(t, snap.RefreshedAt.IsZero())
}

func TestRefreshNoMatchingCategories(t *testing.T) {
	d := testDiscoverer(t, gammaHandler(t), []string{"Weather"})
	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no venue tags match")
}

func TestRefreshFailureRetainsSnapshot(t *testing.T) {
	healthy := httptest.NewServer(gammaHandler(t))
	t.Cleanup(healthy.Close)

	d := NewDiscoverer(config.DiscoveryConfig{
		BaseURL:           healthy.URL,
		Categories:        []string{"Politics"},
		RequestsPerSecond: 100,
	})
	require.NoError(t, d.Refresh(context.Background()))
	before := d.Snapshot()
	require.NotEmpty(t, before.Instruments)

	healthy.Close()
	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, before, d.Snapshot(), "failed refresh must keep the previous snapshot")
}

func TestSnapshotSwapIsAtomicUnderReaders(t *testing.T) {
	d := testDiscoverer(t, gammaHandler(t), []string{"Politics", "Crypto"})
	require.NoError(t, d.Refresh(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				snap := d.Snapshot()
				// Every instrument in a snapshot has its category entry:
				// readers never see a half-built refresh.
				for _, inst := range snap.Instruments {
					category, ok := snap.CategoryOf(inst.AssetID)
					if !ok || category != inst.Category {
						t.Error("snapshot internally inconsistent")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Refresh(context.Background()))
	}
	cancel()
	wg.Wait()
}

func TestParseTokenIDs(t *testing.T) {
	ids, err := parseTokenIDs(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = parseTokenIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = parseTokenIDs("not-json")
	assert.Error(t, err)
}
