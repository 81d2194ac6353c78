// Package simulate generates synthetic provider/client engagement data and
// loads it into a matching engine, either in process or over HTTP.
package simulate

import "time"

// Config sizes a generated dataset.
type Config struct {
	Providers            int
	Clients              int
	MatchesPerClient     int
	InteractionsPerMatch int
	// DecidedShare is the fraction of matches with a known partnership result.
	DecidedShare float64
	// Span is how far back from Now match creation dates are spread.
	Span time.Duration
	Now  time.Time
	Seed uint64
}

// DefaultConfig returns a dataset large enough for a learning cycle.
func DefaultConfig() Config {
	return Config{
		Providers:            40,
		Clients:              120,
		MatchesPerClient:     3,
		InteractionsPerMatch: 6,
		DecidedShare:         0.8,
		Span:                 120 * 24 * time.Hour,
		Now:                  time.Now().UTC(),
		Seed:                 1,
	}
}

// Stats summarizes a load.
type Stats struct {
	Providers    int           `json:"providers"`
	Clients      int           `json:"clients"`
	Outcomes     int           `json:"outcomes"`
	Interactions int           `json:"interactions"`
	Milestones   int           `json:"milestones"`
	Duplicates   int           `json:"duplicates"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}
