package model

import (
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
)

// Channel is the medium of an interaction.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelPhone    Channel = "phone"
	ChannelVideo    Channel = "video"
	ChannelMeeting  Channel = "meeting"
	ChannelPlatform Channel = "platform"
)

// Verbal reports whether the channel is spoken rather than written.
func (c Channel) Verbal() bool {
	return c == ChannelPhone || c == ChannelVideo || c == ChannelMeeting
}

func (c Channel) valid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelVideo, ChannelMeeting, ChannelPlatform:
		return true
	}
	return false
}

// Initiator is the side that started an interaction.
type Initiator string

const (
	InitiatorProvider Initiator = "provider"
	InitiatorClient   Initiator = "client"
)

// Interaction is one communication event on a match. Append-only.
type Interaction struct {
	ID                  string    `json:"id"`
	MatchID             string    `json:"match_id"`
	Channel             Channel   `json:"channel"`
	Type                string    `json:"type,omitempty"`
	Initiator           Initiator `json:"initiator"`
	QualityScore        float64   `json:"quality_score"`
	ResponseTimeMinutes *float64  `json:"response_time_minutes,omitempty"`
	ContentLength       int       `json:"content_length,omitempty"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Validate checks identifiers, enumerations and ranges.
func (i Interaction) Validate() error {
	const op = "validate_interaction"
	switch {
	case strings.TrimSpace(i.ID) == "":
		return fault.Validation(op, "interaction id is required")
	case strings.TrimSpace(i.MatchID) == "":
		return fault.Validation(op, "match_id is required")
	case !i.Channel.valid():
		return fault.Validation(op, "unknown channel %q", i.Channel)
	case i.Initiator != InitiatorProvider && i.Initiator != InitiatorClient:
		return fault.Validation(op, "initiator must be provider or client, got %q", i.Initiator)
	case i.QualityScore < 0 || i.QualityScore > 1:
		return fault.Validation(op, "quality_score must be within [0,1]")
	case i.ResponseTimeMinutes != nil && *i.ResponseTimeMinutes < 0:
		return fault.Validation(op, "response_time_minutes must not be negative")
	case i.ContentLength < 0:
		return fault.Validation(op, "content_length must not be negative")
	case i.OccurredAt.IsZero():
		return fault.Validation(op, "occurred_at is required")
	}
	return nil
}

// MilestoneType names a funnel stage.
type MilestoneType string

const (
	MilestoneFirstContact       MilestoneType = "first_contact"
	MilestoneDiscoveryCall      MilestoneType = "discovery_call"
	MilestoneProposalSent       MilestoneType = "proposal_sent"
	MilestoneProposalAccepted   MilestoneType = "proposal_accepted"
	MilestoneContractSigned     MilestoneType = "contract_signed"
	MilestoneOnboardingComplete MilestoneType = "onboarding_complete"
	MilestoneFirstDeliverable   MilestoneType = "first_deliverable"
)

// MilestoneStages orders the funnel; the index+1 is the stage number.
var MilestoneStages = []MilestoneType{
	MilestoneFirstContact,
	MilestoneDiscoveryCall,
	MilestoneProposalSent,
	MilestoneProposalAccepted,
	MilestoneContractSigned,
	MilestoneOnboardingComplete,
	MilestoneFirstDeliverable,
}

// Stage returns the 1-based funnel position, or 0 for unknown types.
func (t MilestoneType) Stage() int {
	for i, s := range MilestoneStages {
		if s == t {
			return i + 1
		}
	}
	return 0
}

// Milestone is a discrete funnel event on a match. Append-only.
type Milestone struct {
	ID               string        `json:"id"`
	MatchID          string        `json:"match_id"`
	Type             MilestoneType `json:"type"`
	Stage            int           `json:"stage"`
	QualityScore     float64       `json:"quality_score"`
	TimeToReachHours float64       `json:"time_to_reach_hours"`
	ReachedAt        time.Time     `json:"reached_at"`
}

// Validate checks identifiers, enumerations and ranges.
func (m Milestone) Validate() error {
	const op = "validate_milestone"
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fault.Validation(op, "milestone id is required")
	case strings.TrimSpace(m.MatchID) == "":
		return fault.Validation(op, "match_id is required")
	case m.Type.Stage() == 0:
		return fault.Validation(op, "unknown milestone type %q", m.Type)
	case m.QualityScore < 0 || m.QualityScore > 1:
		return fault.Validation(op, "quality_score must be within [0,1]")
	case m.TimeToReachHours < 0:
		return fault.Validation(op, "time_to_reach_hours must not be negative")
	case m.ReachedAt.IsZero():
		return fault.Validation(op, "reached_at is required")
	}
	return nil
}

// EngagementPrediction is the current derived engagement state of a match.
// Overwritten on every recompute; never an input to weight learning.
type EngagementPrediction struct {
	MatchID                string    `json:"match_id"`
	ProviderID             string    `json:"provider_id"`
	ClientID               string    `json:"client_id"`
	EngagementScore        float64   `json:"engagement_score"`
	PartnershipProbability float64   `json:"partnership_probability"`
	DropoutRisk            float64   `json:"dropout_risk"`
	EstimatedRevenue       float64   `json:"estimated_revenue"`
	AvgResponseHours       float64   `json:"avg_response_hours"`
	Momentum               string    `json:"momentum"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// PredictionFilter narrows ListPredictions. Zero values mean "any".
type PredictionFilter struct {
	MinProbability float64
	MaxProbability float64
	UpdatedSince   time.Time
}

// Matches reports whether p passes the filter.
func (f PredictionFilter) Matches(p EngagementPrediction) bool {
	if p.PartnershipProbability < f.MinProbability {
		return false
	}
	if f.MaxProbability > 0 && p.PartnershipProbability > f.MaxProbability {
		return false
	}
	if !f.UpdatedSince.IsZero() && p.UpdatedAt.Before(f.UpdatedSince) {
		return false
	}
	return true
}
