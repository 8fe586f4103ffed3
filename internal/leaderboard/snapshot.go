package leaderboard

import (
	"time"
)

// MetricSample is the per-symbol result of one metric fetch
type MetricSample struct {
	Symbol      string  `json:"symbol"`
	NetMargin   float64 `json:"netMargin"`
	GrossMargin float64 `json:"grossMargin"`
	Quality     float64 `json:"qualityScore"`
	Period      string  `json:"period"`
}

// Snapshot is one computed leaderboard set for a universe. After the
// engine hands it to the cache store the engine never touches it again.
type Snapshot struct {
	Universe   string         `json:"universe"`
	UpdatedAt  *time.Time     `json:"updatedAt"`
	PeriodHint string         `json:"periodHint"`
	TopNet     []MetricSample `json:"topNet"`
	TopGross   []MetricSample `json:"topGross"`
	TopQuality []MetricSample `json:"topQuality"`
}

// PeriodUnknown is used when contributing samples disagree on the
// reporting period, or none exist.
const PeriodUnknown = "UNKNOWN"

// QualityScore combines the two margins into a single profitability
// score: 0.6*net + 0.4*gross. Net margin is weighted higher because it
// reflects realized profitability after all costs. Monotonic in both
// inputs and identical for every symbol.
func QualityScore(netMargin, grossMargin float64) float64 {
	return 0.6*netMargin + 0.4*grossMargin
}

// EmptySnapshot returns a well-formed snapshot with no samples
func EmptySnapshot(universeName string) *Snapshot {
	return &Snapshot{
		Universe:   universeName,
		PeriodHint: PeriodUnknown,
		TopNet:     []MetricSample{},
		TopGross:   []MetricSample{},
		TopQuality: []MetricSample{},
	}
}
