package scoring

import (
	"math"
	"slices"
	"strings"

	"github.com/okian/matchloop/internal/domain/model"
)

// Factor names. The order of Factors is the breakdown order.
const (
	FactorIndustryFit          = "industry_fit"
	FactorGeographicProximity  = "geographic_proximity"
	FactorBusinessSizeFit      = "business_size_fit"
	FactorServiceComplexityFit = "service_complexity_fit"
	FactorAvailability         = "availability"
	FactorTrackRecord          = "track_record"
	FactorExperience           = "experience"
	FactorCommunicationFit     = "communication_fit"
)

// Factors lists every scoring factor.
var Factors = []string{
	FactorIndustryFit,
	FactorGeographicProximity,
	FactorBusinessSizeFit,
	FactorServiceComplexityFit,
	FactorAvailability,
	FactorTrackRecord,
	FactorExperience,
	FactorCommunicationFit,
}

var baselineWeights = map[string]float64{
	FactorIndustryFit:          1.3,
	FactorGeographicProximity:  1.2,
	FactorBusinessSizeFit:      0.9,
	FactorServiceComplexityFit: 1.1,
	FactorAvailability:         1.1,
	FactorTrackRecord:          0.9,
	FactorExperience:           0.8,
	FactorCommunicationFit:     0.6,
}

// Neutral values used when an input is missing.
const (
	defaultIndustry      = 0.5
	defaultGeography     = 0.5
	defaultBusinessSize  = 0.7
	defaultService       = 0.6
	defaultAvailability  = 0.7
	defaultTrackRecord   = 0.5
	defaultExperience    = 0.5
	defaultCommunication = 0.7
)

// BaselineWeight returns the starting weight of factor, or 1 for unknown names.
func BaselineWeight(factor string) float64 {
	if w, ok := baselineWeights[factor]; ok {
		return w
	}
	return 1
}

// industryFamilies groups industries whose bookkeeping needs overlap.
// Checked in order so overlapping keywords resolve deterministically.
var industryFamilies = []struct {
	name     string
	keywords []string
}{
	{"finance", []string{"finance", "insurance", "investment", "fintech"}},
	{"technology", []string{"tech", "software", "saas", "it services", "digital", "startup"}},
	{"healthcare", []string{"health", "medical", "dental", "clinic", "pharma", "wellness"}},
	{"retail", []string{"retail", "ecommerce", "e-commerce", "store", "wholesale"}},
	{"construction", []string{"construction", "contractor", "trades", "real estate", "property"}},
	{"hospitality", []string{"restaurant", "hospitality", "food", "hotel", "catering"}},
	{"professional", []string{"legal", "law", "consulting", "agency", "marketing"}},
	{"manufacturing", []string{"manufacturing", "industrial", "fabrication"}},
	{"nonprofit", []string{"nonprofit", "non-profit", "charity", "foundation"}},
	{"agriculture", []string{"agriculture", "farm", "farming"}},
	{"transport", []string{"transport", "logistics", "trucking"}},
}

func familyOf(s string) string {
	s = strings.ToLower(s)
	for _, f := range industryFamilies {
		for _, k := range f.keywords {
			if strings.Contains(s, k) {
				return f.name
			}
		}
	}
	return ""
}

// factorFunc computes a value in [0,1] and whether a default was used.
type factorFunc func(c model.ClientProfile, p model.ProviderProfile) (float64, bool)

var factorFuncs = map[string]factorFunc{
	FactorIndustryFit:          industryFit,
	FactorGeographicProximity:  geographicProximity,
	FactorBusinessSizeFit:      businessSizeFit,
	FactorServiceComplexityFit: serviceComplexityFit,
	FactorAvailability:         availability,
	FactorTrackRecord:          trackRecord,
	FactorExperience:           experience,
	FactorCommunicationFit:     communicationFit,
}

func industryFit(c model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	industry := strings.ToLower(strings.TrimSpace(c.Industry))
	if industry == "" || len(p.Specializations) == 0 {
		return defaultIndustry, true
	}
	family := familyOf(industry)
	best := 0.2
	for _, spec := range p.Specializations {
		spec = strings.ToLower(strings.TrimSpace(spec))
		if spec == "" {
			continue
		}
		if strings.Contains(industry, spec) || strings.Contains(spec, industry) {
			return 1.0, false
		}
		if family != "" && familyOf(spec) == family {
			best = 0.7
		}
	}
	return best, false
}

func geographicProximity(c model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if c.Province == "" || p.Province == "" {
		return defaultGeography, true
	}
	if !strings.EqualFold(c.Province, p.Province) {
		return 0.3, false
	}
	if c.City == "" || p.City == "" || strings.EqualFold(c.City, p.City) {
		return 1.0, false
	}
	return 0.8, false
}

func businessSizeFit(c model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	want := c.BusinessSize.Index()
	if want < 0 || len(p.PreferredBusinessSizes) == 0 {
		return defaultBusinessSize, true
	}
	best := 0.3
	for _, s := range p.PreferredBusinessSizes {
		switch d := s.Index() - want; {
		case d == 0:
			return 1.0, false
		case d == 1 || d == -1:
			best = 0.6
		}
	}
	return best, false
}

func serviceComplexityFit(c model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if len(c.ServicesNeeded) == 0 || len(p.Services) == 0 {
		return defaultService, true
	}
	offered := 0
	for _, s := range c.ServicesNeeded {
		if p.OffersService(s) {
			offered++
		}
	}
	v := float64(offered) / float64(len(c.ServicesNeeded))
	if c.Complexity == model.ComplexityComplex && p.YearsExperience != nil && *p.YearsExperience < 5 {
		v *= 0.7
	}
	return v, false
}

func availability(_ model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if p.AcceptingClients != nil && !*p.AcceptingClients {
		return 0.0, false
	}
	if p.AcceptingClients == nil || p.CurrentCapacity == nil {
		return defaultAvailability, true
	}
	switch capacity := *p.CurrentCapacity; {
	case capacity >= 3:
		return 1.0, false
	case capacity >= 1:
		return 0.7, false
	default:
		return 0.2, false
	}
}

func trackRecord(_ model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if p.Rating == nil && p.CompletedEngagements == nil {
		return defaultTrackRecord, true
	}
	rating, volume := 0.5, 0.5
	if p.Rating != nil {
		rating = clamp01(*p.Rating / model.MaxSatisfaction)
	}
	if p.CompletedEngagements != nil {
		volume = math.Min(float64(*p.CompletedEngagements)/20, 1)
	}
	return 0.7*rating + 0.3*volume, false
}

func experience(_ model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if p.YearsExperience == nil {
		return defaultExperience, true
	}
	switch y := *p.YearsExperience; {
	case y >= 10:
		return 1.0, false
	case y >= 7:
		return 0.9, false
	case y >= 4:
		return 0.75, false
	case y >= 2:
		return 0.6, false
	default:
		return 0.4, false
	}
}

func communicationFit(c model.ClientProfile, p model.ProviderProfile) (float64, bool) {
	if c.PreferredCommunication == "" || len(p.CommunicationStyles) == 0 {
		return defaultCommunication, true
	}
	if slices.ContainsFunc(p.CommunicationStyles, func(s string) bool {
		return strings.EqualFold(s, c.PreferredCommunication)
	}) {
		return 1.0, false
	}
	return 0.5, false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
