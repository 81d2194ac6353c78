// Package types contains read shapes shared by the service and the API.
package types

import "time"

// Entry represents a performance leaderboard entry.
type Entry struct {
	Rank       int     `json:"rank"`
	ProviderID string  `json:"provider_id"`
	Score      float64 `json:"score"`
	Tier       string  `json:"tier,omitempty"`
}

// TaskStatus is the last known state of a scheduled loop.
type TaskStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastError string        `json:"last_error,omitempty"`
	Runs      int64         `json:"runs"`
	Skips     int64         `json:"skips"`
}

// Stats summarizes engine state for /stats.
type Stats struct {
	Outcomes           int                `json:"outcomes"`
	Providers          int                `json:"providers"`
	RankedProviders    int                `json:"ranked_providers"`
	QueueDepth         int                `json:"queue_depth"`
	QueueCapacity      int                `json:"queue_capacity"`
	Workers            int                `json:"workers"`
	DedupeEntries      int64              `json:"dedupe_entries"`
	LearningRunning    bool               `json:"learning_running"`
	LastLearningRun    string             `json:"last_learning_run,omitempty"`
	LastLearningStatus string             `json:"last_learning_status,omitempty"`
	Weights            map[string]float64 `json:"weights"`
	Tasks              []TaskStatus       `json:"tasks,omitempty"`
	RecentEvents       int                `json:"recent_events"`
}
