package config

import (
	"sort"
	"strings"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the USD cost of the given token counts.
func (p ModelPricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.InputPerMTok + float64(outputTokens)/1_000_000*p.OutputPerMTok
}

// FallbackPricing applies to models missing from every table.
var FallbackPricing = ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.60}

// DefaultPricing maps model names to their pricing.
var DefaultPricing = map[string]ModelPricing{
	"gpt-4o":                   {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":              {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4-turbo":              {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"gpt-4":                    {InputPerMTok: 30.00, OutputPerMTok: 60.00},
	"gpt-3.5-turbo":            {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"o1":                       {InputPerMTok: 15.00, OutputPerMTok: 60.00},
	"o1-mini":                  {InputPerMTok: 3.00, OutputPerMTok: 12.00},
	"o1-preview":               {InputPerMTok: 15.00, OutputPerMTok: 60.00},
	"o3":                       {InputPerMTok: 15.00, OutputPerMTok: 60.00},
	"o3-mini":                  {InputPerMTok: 1.10, OutputPerMTok: 4.40},
	"claude-sonnet-4":          {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-4-sonnet":          {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4":            {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-4-opus":            {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-5-sonnet":        {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3.5-sonnet":        {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":         {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3.5-haiku":         {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-sonnet":          {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-opus":            {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-haiku":           {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"claude-sonnet":            {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus":              {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-haiku":             {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"gemini-2.5-pro":           {InputPerMTok: 1.25, OutputPerMTok: 10.00},
	"gemini-2.5-flash":         {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	"gemini-2.5-flash-preview": {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	"gemini-2.0-flash":         {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-2.0-flash-lite":    {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	"gemini-2.0-flash-exp":     {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-1.5-pro":           {InputPerMTok: 1.25, OutputPerMTok: 5.00},
	"gemini-1.5-flash":         {InputPerMTok: 0.075, OutputPerMTok: 0.30},
}

// PricingTable resolves model names to prices.
type PricingTable struct {
	prices map[string]ModelPricing
	// patterns holds the table keys, longest first, for substring matching.
	patterns []string
}

// NewPricingTable builds a table from base overlaid with overrides.
// Keys are matched case-insensitively.
func NewPricingTable(base map[string]ModelPricing, overrides ...map[string]ModelPricing) *PricingTable {
	t := &PricingTable{prices: make(map[string]ModelPricing, len(base))}
	for _, m := range append([]map[string]ModelPricing{base}, overrides...) {
		for name, p := range m {
			t.prices[strings.ToLower(name)] = p
		}
	}
	for name := range t.prices {
		t.patterns = append(t.patterns, name)
	}
	sort.Slice(t.patterns, func(i, j int) bool {
		if len(t.patterns[i]) != len(t.patterns[j]) {
			return len(t.patterns[i]) > len(t.patterns[j])
		}
		return t.patterns[i] < t.patterns[j]
	})
	return t
}

// Lookup returns the pricing for model and whether it was found in the table.
// An exact match wins; otherwise the longest table entry that contains or is
// contained in the model name is used, then FallbackPricing.
func (t *PricingTable) Lookup(model string) (ModelPricing, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if p, ok := t.prices[name]; ok {
		return p, true
	}
	if name == "" {
		return FallbackPricing, false
	}
	for _, pattern := range t.patterns {
		if strings.Contains(name, pattern) || strings.Contains(pattern, name) {
			return t.prices[pattern], true
		}
	}
	return FallbackPricing, false
}

// Len returns the number of priced models.
func (t *PricingTable) Len() int {
	return len(t.prices)
}
