// Package collector polls the proxy management API and stores counter snapshots.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/config"
	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

const (
	usagePath       = "/v0/management/usage"
	pricingCacheTTL = time.Hour
)

// UsageResponse is the management API usage payload.
type UsageResponse struct {
	Usage struct {
		APIs          map[string]apiUsage `json:"apis"`
		TotalRequests int64               `json:"total_requests"`
		SuccessCount  int64               `json:"success_count"`
		FailureCount  int64               `json:"failure_count"`
		TotalTokens   int64               `json:"total_tokens"`
	} `json:"usage"`
}

type apiUsage struct {
	Models map[string]modelUsage `json:"models"`
}

type modelUsage struct {
	Details       []requestDetail `json:"details"`
	TotalRequests int64           `json:"total_requests"`
	TotalTokens   int64           `json:"total_tokens"`
}

type requestDetail struct {
	Tokens struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"tokens"`
}

// FetchUsage retrieves the cumulative usage counters from the proxy.
func FetchUsage(ctx context.Context, client *http.Client, baseURL, key string) (*UsageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+usagePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage request: %w", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage request failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var usage UsageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, fmt.Errorf("failed to parse usage response: %w", err)
	}
	return &usage, nil
}

// BuildSnapshot converts a usage payload into a priced snapshot.
// Rows that resolve to the same key are summed.
func BuildSnapshot(usage *UsageResponse, prices *config.PricingTable, at time.Time) *models.Snapshot {
	snap := &models.Snapshot{
		CollectedAt:   at,
		TotalRequests: usage.Usage.TotalRequests,
		SuccessCount:  usage.Usage.SuccessCount,
		FailureCount:  usage.Usage.FailureCount,
		TotalTokens:   usage.Usage.TotalTokens,
	}

	index := make(map[models.CompositeKey]int)
	for endpoint, api := range usage.Usage.APIs {
		for model, mu := range api.Models {
			key := models.ResolveKey(model, endpoint)
			var c models.Counters
			c.Requests = mu.TotalRequests
			c.TotalTokens = mu.TotalTokens
			for _, d := range mu.Details {
				c.InputTokens += d.Tokens.InputTokens
				c.OutputTokens += d.Tokens.OutputTokens
			}
			price, _ := prices.Lookup(key.Model)
			c.Cost = price.Cost(c.InputTokens, c.OutputTokens)

			if i, ok := index[key]; ok {
				snap.Counters[i].Counters = snap.Counters[i].Add(c)
				continue
			}
			index[key] = len(snap.Counters)
			snap.Counters = append(snap.Counters, models.CounterRow{Key: key, Counters: c})
		}
	}

	sortRows(snap.Counters)
	for _, r := range snap.Counters {
		snap.CumulativeCost += r.Cost
	}
	return snap
}

// CarryCost continues each row's cost from prev. A row whose counters did not
// fall since prev costs the previous amount plus the price of the new tokens
// only, so a price change never lowers a cumulative cost. Rows that are new or
// whose counters fell keep the cost they were priced at.
func CarryCost(snap, prev *models.Snapshot, prices *config.PricingTable) {
	if prev == nil {
		return
	}
	before := make(map[models.CompositeKey]models.Counters, len(prev.Counters))
	for _, r := range prev.Counters {
		before[r.Key] = r.Counters
	}

	snap.CumulativeCost = 0
	for i := range snap.Counters {
		r := &snap.Counters[i]
		if p, ok := before[r.Key]; ok && continues(r.Counters, p) {
			price, _ := prices.Lookup(r.Key.Model)
			r.Cost = p.Cost + price.Cost(r.InputTokens-p.InputTokens, r.OutputTokens-p.OutputTokens)
		}
		snap.CumulativeCost += r.Cost
	}
}

// continues reports whether no token or request counter fell from prev to c.
func continues(c, prev models.Counters) bool {
	return c.Requests >= prev.Requests &&
		c.TotalTokens >= prev.TotalTokens &&
		c.InputTokens >= prev.InputTokens &&
		c.OutputTokens >= prev.OutputTokens
}

func sortRows(rows []models.CounterRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key.Model != rows[j].Key.Model {
			return rows[i].Key.Model < rows[j].Key.Model
		}
		return rows[i].Key.Endpoint < rows[j].Key.Endpoint
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// remotePricing fetches the public price list and caches it for an hour.
type remotePricing struct {
	fetched time.Time
	client  *http.Client
	prices  map[string]config.ModelPricing
	url     string
	ttl     time.Duration
	mu      sync.Mutex
}

func newRemotePricing(url string, client *http.Client) *remotePricing {
	return &remotePricing{url: url, client: client, ttl: pricingCacheTTL}
}

type priceList struct {
	Prices []struct {
		Input  *float64 `json:"input"`
		Output *float64 `json:"output"`
		ID     string   `json:"id"`
	} `json:"prices"`
}

// Prices returns the cached remote prices, refreshing them when stale.
// A failed refresh keeps the previous prices.
func (r *remotePricing) Prices(ctx context.Context) map[string]config.ModelPricing {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.prices) > 0 && time.Since(r.fetched) < r.ttl {
		return r.prices
	}

	prices, err := r.fetch(ctx)
	if err != nil {
		logger.Warn("Could not fetch remote pricing", "error", err)
		return r.prices
	}
	if len(prices) > 0 {
		r.prices = prices
		r.fetched = time.Now()
		logger.Debug("Loaded remote pricing", "models", len(prices))
	}
	return r.prices
}

func (r *remotePricing) fetch(ctx context.Context) (map[string]config.ModelPricing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pricing request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing request failed (status %d)", resp.StatusCode)
	}

	var list priceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse pricing response: %w", err)
	}

	prices := make(map[string]config.ModelPricing, len(list.Prices))
	for _, p := range list.Prices {
		if p.ID == "" || p.Input == nil || p.Output == nil {
			continue
		}
		prices[strings.ToLower(p.ID)] = config.ModelPricing{InputPerMTok: *p.Input, OutputPerMTok: *p.Output}
	}
	return prices, nil
}
