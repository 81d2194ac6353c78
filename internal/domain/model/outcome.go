// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
)

// Satisfaction scores live on a 1..5 scale.
const (
	MinSatisfaction = 1.0
	MaxSatisfaction = 5.0
)

// MatchOutcome is the observed result of a provider/client pairing.
// One row per MatchID; repeat reports overwrite, CreatedAt is preserved.
type MatchOutcome struct {
	MatchID    string `json:"match_id"`
	ProviderID string `json:"provider_id"`
	ClientID   string `json:"client_id"`

	// PartnershipFormed is nil while the outcome is still undetermined.
	PartnershipFormed    *bool    `json:"partnership_formed,omitempty"`
	ProviderSatisfaction *float64 `json:"provider_satisfaction,omitempty"`
	ClientSatisfaction   *float64 `json:"client_satisfaction,omitempty"`

	RevenueGenerated float64 `json:"revenue_generated"`
	ProjectValue     float64 `json:"project_value"`

	ContactMade       bool `json:"contact_made"`
	ProposalSubmitted bool `json:"proposal_submitted"`
	ContractSigned    bool `json:"contract_signed"`

	// FactorSnapshot holds factor values as scored when the match was made.
	FactorSnapshot map[string]float64 `json:"factor_snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Determined reports whether the partnership result is known.
func (o MatchOutcome) Determined() bool { return o.PartnershipFormed != nil }

// Succeeded reports whether a partnership formed. Undetermined counts as false.
func (o MatchOutcome) Succeeded() bool { return o.PartnershipFormed != nil && *o.PartnershipFormed }

// Validate rejects outcomes that must not reach the store.
func (o MatchOutcome) Validate() error {
	const op = "validate_outcome"
	switch {
	case strings.TrimSpace(o.MatchID) == "":
		return fault.Validation(op, "match_id is required")
	case strings.TrimSpace(o.ProviderID) == "":
		return fault.Validation(op, "provider_id is required")
	case strings.TrimSpace(o.ClientID) == "":
		return fault.Validation(op, "client_id is required")
	case o.RevenueGenerated < 0 || o.ProjectValue < 0:
		return fault.Validation(op, "revenue values must not be negative")
	}
	for _, s := range []*float64{o.ProviderSatisfaction, o.ClientSatisfaction} {
		if s != nil && (*s < MinSatisfaction || *s > MaxSatisfaction) {
			return fault.Validation(op, "satisfaction must be within [%.0f,%.0f], got %v", MinSatisfaction, MaxSatisfaction, *s)
		}
	}
	for name, v := range o.FactorSnapshot {
		if v < 0 || v > 1 {
			return fault.Validation(op, "factor snapshot %q must be within [0,1], got %v", name, v)
		}
	}
	return nil
}

// OutcomeFilter narrows GetOutcomes. Zero values mean "any".
type OutcomeFilter struct {
	ProviderID     string
	ClientID       string
	Since          time.Time
	OnlyDetermined bool
}

// Matches reports whether o passes the filter.
func (f OutcomeFilter) Matches(o MatchOutcome) bool {
	if f.ProviderID != "" && o.ProviderID != f.ProviderID {
		return false
	}
	if f.ClientID != "" && o.ClientID != f.ClientID {
		return false
	}
	if !f.Since.IsZero() && o.UpdatedAt.Before(f.Since) {
		return false
	}
	if f.OnlyDetermined && !o.Determined() {
		return false
	}
	return true
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
