// Package models defines data structures and domain types.
package models

import "time"

// ResetStrategy determines how a rate-limit window is anchored.
type ResetStrategy string

// Supported reset strategies.
const (
	ResetDaily   ResetStrategy = "daily"
	ResetWeekly  ResetStrategy = "weekly"
	ResetRolling ResetStrategy = "rolling"
)

// Dimension is the counter a rate limit is measured against.
type Dimension string

// Limit dimensions.
const (
	DimensionTokens   Dimension = "tokens"
	DimensionRequests Dimension = "requests"
)

// StatusLevel classifies how close usage is to its limit.
type StatusLevel string

// Status levels.
const (
	StatusOK       StatusLevel = "ok"
	StatusWarning  StatusLevel = "warning"
	StatusCritical StatusLevel = "critical"
)

// Severity orders status levels so crossings can be detected.
func (s StatusLevel) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// RateLimitConfig describes one configured limit.
type RateLimitConfig struct {
	ResetAnchor     *time.Time    `json:"resetAnchor,omitempty"`
	TokenLimit      *int64        `json:"tokenLimit,omitempty"`
	RequestLimit    *int64        `json:"requestLimit,omitempty"`
	Name            string        `json:"name"`
	Provider        string        `json:"provider,omitempty"`
	ModelPattern    string        `json:"modelPattern"`
	EndpointPattern string        `json:"endpointPattern,omitempty"`
	ResetStrategy   ResetStrategy `json:"resetStrategy"`
	ID              int64         `json:"id"`
	WindowMinutes   int           `json:"windowMinutes"`
}

// Window returns the configured window length.
func (c *RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// RateLimitStatus is the latest evaluation of one RateLimitConfig.
// There is exactly one status per config; each evaluation overwrites it.
type RateLimitStatus struct {
	WindowStart time.Time   `json:"windowStart"`
	NextReset   time.Time   `json:"nextReset"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Name        string      `json:"name"`
	Dimension   Dimension   `json:"dimension"`
	Status      StatusLevel `json:"status"`
	Label       string      `json:"label"`
	ConfigID    int64       `json:"configId"`
	Used        int64       `json:"used"`
	Limit       int64       `json:"limit"`
	Remaining   int64       `json:"remaining"`
	Percentage  int         `json:"percentage"`
	Cost        float64     `json:"cost"`
	Unbounded   bool        `json:"unbounded"`
}
