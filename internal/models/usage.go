// Package models defines data structures and domain types.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultEndpoint is used when a counter row carries no endpoint name.
const DefaultEndpoint = "default"

// CompositeKey identifies one independently resetting counter series.
type CompositeKey struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// ResolveKey normalizes a model/endpoint pair into a CompositeKey.
// Surrounding whitespace is trimmed and an empty endpoint maps to DefaultEndpoint.
func ResolveKey(model, endpoint string) CompositeKey {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return CompositeKey{Model: strings.TrimSpace(model), Endpoint: endpoint}
}

// String renders the key as "model|endpoint".
func (k CompositeKey) String() string {
	return k.Model + "|" + k.Endpoint
}

// Counters holds cumulative (or, after reconciliation, windowed) usage figures.
type Counters struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalTokens  int64   `json:"totalTokens"`
	Cost         float64 `json:"cost"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Requests:     c.Requests + o.Requests,
		InputTokens:  c.InputTokens + o.InputTokens,
		OutputTokens: c.OutputTokens + o.OutputTokens,
		TotalTokens:  c.TotalTokens + o.TotalTokens,
		Cost:         c.Cost + o.Cost,
	}
}

// Sub returns the field-wise difference c - o.
func (c Counters) Sub(o Counters) Counters {
	return Counters{
		Requests:     c.Requests - o.Requests,
		InputTokens:  c.InputTokens - o.InputTokens,
		OutputTokens: c.OutputTokens - o.OutputTokens,
		TotalTokens:  c.TotalTokens - o.TotalTokens,
		Cost:         c.Cost - o.Cost,
	}
}

// ClampZero replaces negative fields with zero and reports which fields were clamped.
func (c Counters) ClampZero() (Counters, []string) {
	var clamped []string
	if c.Requests < 0 {
		c.Requests = 0
		clamped = append(clamped, "requests")
	}
	if c.InputTokens < 0 {
		c.InputTokens = 0
		clamped = append(clamped, "input_tokens")
	}
	if c.OutputTokens < 0 {
		c.OutputTokens = 0
		clamped = append(clamped, "output_tokens")
	}
	if c.TotalTokens < 0 {
		c.TotalTokens = 0
		clamped = append(clamped, "total_tokens")
	}
	if c.Cost < 0 {
		c.Cost = 0
		clamped = append(clamped, "cost")
	}
	return c, clamped
}

// Lerp interpolates linearly between c and o. Integer fields are rounded.
func (c Counters) Lerp(o Counters, ratio float64) Counters {
	li := func(a, b int64) int64 {
		return a + int64(math.Round(float64(b-a)*ratio))
	}
	return Counters{
		Requests:     li(c.Requests, o.Requests),
		InputTokens:  li(c.InputTokens, o.InputTokens),
		OutputTokens: li(c.OutputTokens, o.OutputTokens),
		TotalTokens:  li(c.TotalTokens, o.TotalTokens),
		Cost:         c.Cost + (o.Cost-c.Cost)*ratio,
	}
}

// DecreasedFrom reports whether any reset-detecting field (total tokens,
// requests, cost) is lower in c than in prev.
func (c Counters) DecreasedFrom(prev Counters) bool {
	return c.TotalTokens < prev.TotalTokens ||
		c.Requests < prev.Requests ||
		c.Cost < prev.Cost
}

// IsZero reports whether every field is zero.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// CounterRow is the cumulative counter reading of one key inside a snapshot.
type CounterRow struct {
	Key CompositeKey
	Counters
}

// Snapshot is one point-in-time reading of every cumulative counter.
// Snapshots are immutable once stored.
type Snapshot struct {
	CollectedAt    time.Time
	Counters       []CounterRow
	Defects        []string
	ID             int64
	TotalRequests  int64
	SuccessCount   int64
	FailureCount   int64
	TotalTokens    int64
	CumulativeCost float64
}

// Validate reports the first shape problem that makes the snapshot unusable.
func (s *Snapshot) Validate() error {
	if len(s.Defects) > 0 {
		return fmt.Errorf("snapshot %d: %s", s.ID, strings.Join(s.Defects, ", "))
	}
	if s.CollectedAt.IsZero() {
		return fmt.Errorf("snapshot %d: missing collection time", s.ID)
	}
	if s.TotalRequests < 0 || s.TotalTokens < 0 || s.SuccessCount < 0 || s.FailureCount < 0 {
		return fmt.Errorf("snapshot %d: negative aggregate counter", s.ID)
	}
	if math.IsNaN(s.CumulativeCost) || math.IsInf(s.CumulativeCost, 0) {
		return fmt.Errorf("snapshot %d: invalid cumulative cost", s.ID)
	}
	seen := make(map[CompositeKey]struct{}, len(s.Counters))
	for _, row := range s.Counters {
		if row.Key.Model == "" {
			return fmt.Errorf("snapshot %d: counter row without model", s.ID)
		}
		if _, dup := seen[row.Key]; dup {
			return fmt.Errorf("snapshot %d: duplicate key %s", s.ID, row.Key)
		}
		seen[row.Key] = struct{}{}
		if row.Requests < 0 || row.InputTokens < 0 || row.OutputTokens < 0 || row.TotalTokens < 0 {
			return fmt.Errorf("snapshot %d: negative counter for %s", s.ID, row.Key)
		}
		if row.Cost < 0 || math.IsNaN(row.Cost) || math.IsInf(row.Cost, 0) {
			return fmt.Errorf("snapshot %d: invalid cost for %s", s.ID, row.Key)
		}
	}
	return nil
}

// Row returns the counters of key in the snapshot and whether the key is present.
func (s *Snapshot) Row(key CompositeKey) (Counters, bool) {
	for _, row := range s.Counters {
		if row.Key == key {
			return row.Counters, true
		}
	}
	return Counters{}, false
}
