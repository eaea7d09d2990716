package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/config"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

const usageJSON = `{
  "usage": {
    "total_requests": 7,
    "success_count": 6,
    "failure_count": 1,
    "total_tokens": 3500,
    "apis": {
      "openai": {
        "models": {
          "gpt-4o": {
            "total_requests": 4,
            "total_tokens": 2000,
            "details": [
              {"tokens": {"input_tokens": 600, "output_tokens": 400}},
              {"tokens": {"input_tokens": 600, "output_tokens": 400}}
            ]
          }
        }
      },
      "": {
        "models": {
          "mystery-model": {
            "total_requests": 3,
            "total_tokens": 1500,
            "details": [{"tokens": {"input_tokens": 1000, "output_tokens": 500}}]
          }
        }
      }
    }
  }
}`

type memStore struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
	err   error
}

func (m *memStore) InsertSnapshot(_ context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	snap.ID = int64(len(m.snaps) + 1)
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memStore) LatestSnapshot(context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return nil, nil
	}
	return m.snaps[len(m.snaps)-1], nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func newUsageServer(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != usagePath {
			http.NotFound(w, r)
			return
		}
		if wantKey != "" && r.Header.Get("Authorization") != "Bearer "+wantKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(usageJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildSnapshot(t *testing.T) {
	srv := newUsageServer(t, "")
	usage, err := FetchUsage(context.Background(), srv.Client(), srv.URL, "")
	if err != nil {
		t.Fatalf("FetchUsage() error = %v", err)
	}

	prices := config.NewPricingTable(map[string]config.ModelPricing{
		"gpt-4o": {InputPerMTok: 2.5, OutputPerMTok: 10},
	})
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	snap := BuildSnapshot(usage, prices, at)

	if err := snap.Validate(); err != nil {
		t.Fatalf("snapshot invalid: %v", err)
	}
	if snap.TotalRequests != 7 || snap.SuccessCount != 6 || snap.FailureCount != 1 || snap.TotalTokens != 3500 {
		t.Errorf("aggregates = %+v", snap)
	}
	if len(snap.Counters) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Counters))
	}

	gpt, ok := snap.Row(models.ResolveKey("gpt-4o", "openai"))
	if !ok {
		t.Fatal("gpt-4o|openai row missing")
	}
	if gpt.InputTokens != 1200 || gpt.OutputTokens != 800 || gpt.Requests != 4 {
		t.Errorf("gpt row = %+v", gpt)
	}
	wantGPT := 1200.0/1e6*2.5 + 800.0/1e6*10
	if !approx(gpt.Cost, wantGPT) {
		t.Errorf("gpt cost = %v, want %v", gpt.Cost, wantGPT)
	}

	mystery, ok := snap.Row(models.ResolveKey("mystery-model", models.DefaultEndpoint))
	if !ok {
		t.Fatal("empty endpoint was not resolved to the default endpoint")
	}
	wantMystery := config.FallbackPricing.Cost(1000, 500)
	if !approx(mystery.Cost, wantMystery) {
		t.Errorf("fallback cost = %v, want %v", mystery.Cost, wantMystery)
	}

	if !approx(snap.CumulativeCost, wantGPT+wantMystery) {
		t.Errorf("CumulativeCost = %v, want %v", snap.CumulativeCost, wantGPT+wantMystery)
	}
}

// gptUsage returns a payload with a single gpt-4o row.
func gptUsage(t *testing.T, requests, input, output int64) *UsageResponse {
	t.Helper()
	body := fmt.Sprintf(`{"usage": {"apis": {"openai": {"models": {"gpt-4o": {
		"total_requests": %d, "total_tokens": %d,
		"details": [{"tokens": {"input_tokens": %d, "output_tokens": %d}}]
	}}}}}}`, requests, input+output, input, output)
	var u UsageResponse
	if err := json.Unmarshal([]byte(body), &u); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return &u
}

func TestCarryCost_PriceDropIsNotReset(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	key := models.ResolveKey("gpt-4o", "openai")

	full := config.NewPricingTable(config.DefaultPricing)
	cheaper := config.NewPricingTable(config.DefaultPricing, map[string]config.ModelPricing{
		"gpt-4o": {InputPerMTok: 1.25, OutputPerMTok: 5},
	})

	first := BuildSnapshot(gptUsage(t, 10_000, 50_000_000, 10_000_000), full, at)
	first.ID = 1
	second := BuildSnapshot(gptUsage(t, 10_010, 50_010_000, 10_002_000), cheaper, at.Add(5*time.Minute))
	second.ID = 2
	CarryCost(second, first, cheaper)

	prev, _ := first.Row(key)
	cur, _ := second.Row(key)
	wantCost := prev.Cost + 10_000.0/1e6*1.25 + 2_000.0/1e6*5
	if !approx(cur.Cost, wantCost) {
		t.Errorf("carried cost = %v, want %v", cur.Cost, wantCost)
	}
	if !approx(second.CumulativeCost, wantCost) {
		t.Errorf("CumulativeCost = %v, want %v", second.CumulativeCost, wantCost)
	}

	ix := engine.BuildIndex([]models.Snapshot{*first, *second}, engine.Options{})
	if n := len(ix.Segments(key)); n != 1 {
		t.Fatalf("segments = %d, want 1", n)
	}
	got := ix.Usage(engine.Closed(at.Add(time.Minute), at.Add(6*time.Minute))).ByKey[key]
	if got.Requests != 10 || got.TotalTokens != 12_000 {
		t.Errorf("window usage = %+v, want 10 requests and 12000 tokens", got)
	}
	if !approx(got.Cost, 0.0225) {
		t.Errorf("window cost = %v, want 0.0225", got.Cost)
	}
}

func TestCarryCost_Reprices(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	key := models.ResolveKey("gpt-4o", "openai")
	prices := config.NewPricingTable(config.DefaultPricing)

	tests := []struct {
		name string
		prev *models.Snapshot
	}{
		{"NoPrevious", nil},
		{"CounterFell", BuildSnapshot(gptUsage(t, 500, 9_000_000, 1_000_000), prices, at)},
		{"KeyNew", &models.Snapshot{CollectedAt: at}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := BuildSnapshot(gptUsage(t, 20, 1_000, 500), prices, at.Add(time.Minute))
			CarryCost(snap, tt.prev, prices)
			row, _ := snap.Row(key)
			if want := config.DefaultPricing["gpt-4o"].Cost(1_000, 500); !approx(row.Cost, want) {
				t.Errorf("cost = %v, want fresh price %v", row.Cost, want)
			}
		})
	}
}

func TestService_CollectKeepsCostAcrossPriceChange(t *testing.T) {
	var cheap atomic.Bool
	pricing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		price := `{"prices":[{"id":"gpt-4o","input":3,"output":12}]}`
		if cheap.Load() {
			price = `{"prices":[{"id":"gpt-4o","input":1,"output":4}]}`
		}
		_, _ = w.Write([]byte(price))
	}))
	defer pricing.Close()

	srv := newUsageServer(t, "")
	store := &memStore{}
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.PricingURL = pricing.URL
	cfg.RemotePricing = true
	svc := New(store, cfg)
	defer svc.Close()
	svc.remote.ttl = 0

	first, err := svc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	cheap.Store(true)
	second, err := svc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if !approx(second.CumulativeCost, first.CumulativeCost) {
		t.Errorf("cost moved from %v to %v with no new tokens", first.CumulativeCost, second.CumulativeCost)
	}
	if second.Counters[0].DecreasedFrom(first.Counters[0].Counters) {
		t.Error("price change produced a counter decrease")
	}
}

func TestFetchUsage_Errors(t *testing.T) {
	srv := newUsageServer(t, "secret")

	t.Run("Unauthorized", func(t *testing.T) {
		_, err := FetchUsage(context.Background(), srv.Client(), srv.URL, "wrong")
		if err == nil {
			t.Fatal("expected error for bad key")
		}
	})

	t.Run("TrailingSlash", func(t *testing.T) {
		if _, err := FetchUsage(context.Background(), srv.Client(), srv.URL+"/", "secret"); err != nil {
			t.Fatalf("FetchUsage() error = %v", err)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer bad.Close()
		if _, err := FetchUsage(context.Background(), bad.Client(), bad.URL, ""); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestService_Collect(t *testing.T) {
	srv := newUsageServer(t, "secret")
	store := &memStore{}

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.ManagementKey = "secret"
	svc := New(store, cfg)
	defer svc.Close()

	snap, err := svc.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if snap.ID != 1 || store.count() != 1 {
		t.Errorf("snapshot not stored: id=%d count=%d", snap.ID, store.count())
	}

	h := svc.Health()
	if h.Runs != 1 || h.Failures != 0 || h.LastSuccess.IsZero() || h.Running {
		t.Errorf("Health() = %+v", h)
	}

	select {
	case ev := <-svc.Events():
		if ev.Type != EventCollected || ev.Snapshot != snap {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no event emitted")
	}
}

func TestService_CollectStoreError(t *testing.T) {
	srv := newUsageServer(t, "")
	store := &memStore{err: errors.New("disk full")}

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	svc := New(store, cfg)
	defer svc.Close()

	if _, err := svc.Collect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	h := svc.Health()
	if h.Failures != 1 || h.LastError == "" {
		t.Errorf("Health() = %+v", h)
	}
	ev := <-svc.Events()
	if ev.Type != EventCollectError {
		t.Errorf("event type = %v, want EventCollectError", ev.Type)
	}
}

func TestService_Trigger(t *testing.T) {
	srv := newUsageServer(t, "")
	store := &memStore{}

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Interval = time.Hour
	svc := New(store, cfg)
	defer svc.Close()

	var ts time.Time
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts = ts.Add(time.Second)
		if ts.Year() == 1 {
			ts = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		}
		return ts
	}

	svc.Start()
	waitFor(t, func() bool { return store.count() >= 1 })

	if !svc.Trigger() {
		t.Fatal("Trigger() = false with nothing pending")
	}
	waitFor(t, func() bool { return store.count() >= 2 })
}

func TestRemotePricing(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"prices":[
			{"id":"GPT-4o","vendor":"openai","input":3,"output":12},
			{"id":"incomplete","input":1},
			{"id":"","input":1,"output":1}
		]}`))
	}))
	defer srv.Close()

	r := newRemotePricing(srv.URL, srv.Client())
	prices := r.Prices(context.Background())
	if len(prices) != 1 {
		t.Fatalf("prices = %v, want one entry", prices)
	}
	if p := prices["gpt-4o"]; p.InputPerMTok != 3 || p.OutputPerMTok != 12 {
		t.Errorf("gpt-4o = %+v", p)
	}

	_ = r.Prices(context.Background())
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("remote fetched %d times, want 1 (cached)", hits)
	}
}

func TestRemotePricing_FailureKeepsPrevious(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"prices":[{"id":"m","input":1,"output":2}]}`))
	}))
	defer srv.Close()

	r := newRemotePricing(srv.URL, srv.Client())
	if len(r.Prices(context.Background())) != 1 {
		t.Fatal("initial fetch failed")
	}
	fail.Store(true)
	r.ttl = 0
	if got := r.Prices(context.Background()); len(got) != 1 {
		t.Errorf("prices after failure = %v, want previous", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
