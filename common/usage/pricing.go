// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package usage

import (
	"fmt"
	"sync"
)

// Prices are stored in cents per 1K tokens. All prices are USD.

// DefaultPricingKey is the fallback entry of a pricing table
const DefaultPricingKey = "default"

// defaultServicePricing maps service types to cents per 1K tokens
var defaultServicePricing = map[string]float64{
	"source-control": 0.5,
	"slack":          0.5,
	"kafka":          0.2,
	"redis":          0.1,
	"postgres":       0.3,
	"mysql":          0.3,
	"mongodb":        0.3,
	"s3":             0.4,

	// Conservative fallback for anything not listed
	DefaultPricingKey: 1.0,
}

// Pricing turns token usage into an estimated cost. Rates can be overridden
// per service name at startup; lookups fall back from name to type to the
// default rate.
type Pricing struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewPricing returns a table seeded with the built-in service rates
func NewPricing() *Pricing {
	rates := make(map[string]float64, len(defaultServicePricing))
	for k, v := range defaultServicePricing {
		rates[k] = v
	}
	return &Pricing{rates: rates}
}

// SetRate sets the rate for a service name or type, in cents per 1K tokens.
// Negative rates are ignored.
func (p *Pricing) SetRate(key string, centsPer1K float64) {
	if key == "" || centsPer1K < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[key] = centsPer1K
}

// SetRateUSD sets a rate given in dollars per 1K tokens, the unit services
// are configured in
func (p *Pricing) SetRateUSD(key string, dollarsPer1K float64) {
	p.SetRate(key, dollarsPer1K*100)
}

// Rate returns the cents-per-1K rate for the first key that has one, or
// the default rate
func (p *Pricing) Rate(keys ...string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, k := range keys {
		if r, ok := p.rates[k]; ok {
			return r
		}
	}
	return p.rates[DefaultPricingKey]
}

// EstimateCost returns the cost in USD of tokens at the rate for service
// (or serviceType when the name has no rate of its own)
func (p *Pricing) EstimateCost(service, serviceType string, tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	cents := CalculateCostCents(tokens, p.Rate(service, serviceType))
	return cents / 100.0
}

// CalculateCostCents returns the cost in cents of tokens at centsPer1K
func CalculateCostCents(tokens int, centsPer1K float64) float64 {
	return float64(tokens) * centsPer1K / 1000.0
}

// FormatCostToDollars converts cents to dollar string (e.g., 135 cents -> "$1.35")
func FormatCostToDollars(cents int) string {
	dollars := float64(cents) / 100.0
	return fmt.Sprintf("$%.2f", dollars)
}
