// Package pricing defines the pricing Source seam consulted once a
// charging session completes with static pricing configured, plus the
// placeholder for a dynamic external source. The external source is an
// out-of-scope collaborator (spec.md §1); only the seam lives here.
package pricing

import (
	"context"
	"fmt"
)

// Source reports the current electricity price in EUR/MWh.
type Source interface {
	CurrentPrice(ctx context.Context) (eurPerMWh float64, ok bool)
}

// StaticSource always reports the configured flat rate, matching spec
// §4.6's "pricing=static" behavior: cost = energy_delivered * static_rate.
type StaticSource struct {
	RateEURPerKWh float64
}

// NewStaticSource constructs a StaticSource from a EUR/kWh rate.
func NewStaticSource(rateEURPerKWh float64) *StaticSource {
	return &StaticSource{RateEURPerKWh: rateEURPerKWh}
}

// CurrentPrice reports the flat rate converted to EUR/MWh.
func (s *StaticSource) CurrentPrice(_ context.Context) (float64, bool) {
	return s.RateEURPerKWh * 1000.0, true
}

// Cost computes the session cost for energyDeliveredKWh under the
// static rate (spec §4.6 step "pricing=static").
func (s *StaticSource) Cost(energyDeliveredKWh float64) float64 {
	return energyDeliveredKWh * s.RateEURPerKWh
}

// ExternalSource is the unimplemented seam for a dynamic pricing API
// (ENTSO-E, Tibber, ...). That client is an explicit non-goal collaborator
// (spec.md §1); this type documents where it would plug in without
// importing or reimplementing either vendor's HTTP client.
type ExternalSource struct {
	Endpoint string
}

// CurrentPrice always reports unavailable: no external client is wired.
func (e *ExternalSource) CurrentPrice(_ context.Context) (float64, bool) {
	return 0, false
}

// NewSource builds a Source from the configured pricing source name
// ("static", "external", "none").
func NewSource(source string, staticRateEURPerKWh float64, externalEndpoint string) (Source, error) {
	switch source {
	case "static":
		return NewStaticSource(staticRateEURPerKWh), nil
	case "external":
		return &ExternalSource{Endpoint: externalEndpoint}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown pricing source: %s", source)
	}
}
