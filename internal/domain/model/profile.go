package model

import (
	"strings"

	"github.com/okian/matchloop/internal/domain/fault"
)

// BusinessSize buckets a client by headcount and revenue.
type BusinessSize string

const (
	SizeMicro  BusinessSize = "micro"
	SizeSmall  BusinessSize = "small"
	SizeMedium BusinessSize = "medium"
	SizeLarge  BusinessSize = "large"
)

// Sizes lists business sizes in ascending order.
var Sizes = []BusinessSize{SizeMicro, SizeSmall, SizeMedium, SizeLarge}

// Index returns the position of s in Sizes, or -1.
func (s BusinessSize) Index() int {
	for i, v := range Sizes {
		if v == s {
			return i
		}
	}
	return -1
}

// Complexity describes how demanding a client's work is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ProviderProfile describes an accountant. Pointer fields are optional;
// scoring substitutes neutral defaults when they are nil.
type ProviderProfile struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name,omitempty"`
	Specializations        []string       `json:"specializations,omitempty"`
	Province               string         `json:"province,omitempty"`
	City                   string         `json:"city,omitempty"`
	YearsExperience        *int           `json:"years_experience,omitempty"`
	AcceptingClients       *bool          `json:"accepting_clients,omitempty"`
	CurrentCapacity        *int           `json:"current_capacity,omitempty"`
	PreferredBusinessSizes []BusinessSize `json:"preferred_business_sizes,omitempty"`
	Services               []string       `json:"services,omitempty"`
	CommunicationStyles    []string       `json:"communication_styles,omitempty"`
	Rating                 *float64       `json:"rating,omitempty"`
	CompletedEngagements   *int           `json:"completed_engagements,omitempty"`
}

// Validate checks identifiers and numeric ranges.
func (p ProviderProfile) Validate() error {
	const op = "validate_provider"
	if strings.TrimSpace(p.ID) == "" {
		return fault.Validation(op, "provider id is required")
	}
	if p.YearsExperience != nil && *p.YearsExperience < 0 {
		return fault.Validation(op, "years_experience must not be negative")
	}
	if p.CurrentCapacity != nil && *p.CurrentCapacity < 0 {
		return fault.Validation(op, "current_capacity must not be negative")
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > MaxSatisfaction) {
		return fault.Validation(op, "rating must be within [0,5]")
	}
	if p.CompletedEngagements != nil && *p.CompletedEngagements < 0 {
		return fault.Validation(op, "completed_engagements must not be negative")
	}
	for _, s := range p.PreferredBusinessSizes {
		if s.Index() < 0 {
			return fault.Validation(op, "unknown business size %q", s)
		}
	}
	return nil
}

// OffersService reports whether the provider lists service (case-insensitive).
func (p ProviderProfile) OffersService(service string) bool {
	for _, s := range p.Services {
		if strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}

// ClientProfile describes a business looking for an accountant.
type ClientProfile struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name,omitempty"`
	Industry               string       `json:"industry,omitempty"`
	Province               string       `json:"province,omitempty"`
	City                   string       `json:"city,omitempty"`
	BusinessSize           BusinessSize `json:"business_size,omitempty"`
	AnnualRevenue          *float64     `json:"annual_revenue,omitempty"`
	ServicesNeeded         []string     `json:"services_needed,omitempty"`
	Complexity             Complexity   `json:"complexity,omitempty"`
	PreferredCommunication string       `json:"preferred_communication,omitempty"`
}

// Validate checks identifiers and enumerations.
func (c ClientProfile) Validate() error {
	const op = "validate_client"
	if strings.TrimSpace(c.ID) == "" {
		return fault.Validation(op, "client id is required")
	}
	if c.BusinessSize != "" && c.BusinessSize.Index() < 0 {
		return fault.Validation(op, "unknown business size %q", c.BusinessSize)
	}
	switch c.Complexity {
	case "", ComplexitySimple, ComplexityModerate, ComplexityComplex:
	default:
		return fault.Validation(op, "unknown complexity %q", c.Complexity)
	}
	if c.AnnualRevenue != nil && *c.AnnualRevenue < 0 {
		return fault.Validation(op, "annual_revenue must not be negative")
	}
	return nil
}
