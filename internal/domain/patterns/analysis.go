package patterns

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/matchloop/internal/domain/model"
)

// Pattern labels.
const (
	InsufficientData = "insufficient_data"

	ConsistentDaily   = "consistent_daily"
	ConsistentWeekly  = "consistent_weekly"
	Irregular         = "irregular"
	HighFrequency     = "high_frequency"
	ModerateFrequency = "moderate_frequency"
	LowFrequency      = "low_frequency"

	RapidResponse   = "rapid_response"
	FocusedTiming   = "focused_timing"
	SameDayResponse = "same_day_response"
	DelayedResponse = "delayed_response"

	InconsistentQuality = "inconsistent_quality"
	ImprovingQuality    = "improving_quality"
	DecliningQuality    = "declining_quality"
	ConsistentlyHigh    = "consistently_high"
	ModerateQuality     = "moderate_quality"

	LimitedInteraction  = "limited_interaction"
	ProviderDriven      = "cpa_driven"
	ClientDriven        = "client_driven"
	InteractiveDialogue = "interactive_dialogue"
	Balanced            = "balanced"

	FormalDetailed   = "formal_detailed"
	DirectVerbal     = "direct_verbal"
	ConciseEfficient = "concise_efficient"
	PlatformFocused  = "platform_focused"
	Mixed            = "mixed"

	Accelerating = "accelerating"
	Building     = "building"
	Declining    = "declining"
	Consistent   = "consistent"
	Stable       = "stable"

	RapidProgression         = "rapid_progression"
	SlowProgression          = "slow_progression"
	ComprehensiveProgression = "comprehensive_progression"
	MilestoneRich            = "milestone_rich"
	NormalProgression        = "normal"
)

// Minimum observations per sub-report.
const (
	minFrequency = 2
	minTiming    = 3
	minQuality   = 3
	minBalance   = 1
	minStyle     = 2
	minMomentum  = 3
	minMilestone = 1
)

const day = 24 * time.Hour

// SubReport is one classified aspect of a match's engagement.
type SubReport struct {
	PatternType string             `json:"pattern_type"`
	DataPoints  int                `json:"data_points"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

func insufficient(n int) SubReport {
	return SubReport{PatternType: InsufficientData, DataPoints: n}
}

// spanDays is the number of calendar days touched from first to last, at least 1.
func spanDays(first, last time.Time) int {
	return int(last.Sub(first)/day) + 1
}

func popVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.PopVariance(xs, nil)
}

// Frequency classifies how regularly the parties interact.
func Frequency(in []model.Interaction) SubReport {
	n := len(in)
	if n < minFrequency {
		return insufficient(n)
	}
	first, last := in[0].OccurredAt, in[n-1].OccurredAt
	days := spanDays(first, last)
	daily := make([]float64, days)
	for _, i := range in {
		daily[int(i.OccurredAt.Sub(first)/day)]++
	}
	weeks := (days + 6) / 7
	weekly := make([]float64, weeks)
	activeDays := 0
	for d, c := range daily {
		weekly[d/7] += c
		if c > 0 {
			activeDays++
		}
	}
	activeWeeks := 0
	for _, c := range weekly {
		if c > 0 {
			activeWeeks++
		}
	}

	dayRatio := float64(activeDays) / float64(days)
	weekRatio := float64(activeWeeks) / float64(weeks)
	dailyVar := popVariance(daily)
	weeklyVar := popVariance(weekly)
	mean := stat.Mean(daily, nil)
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(dailyVar) / mean
	}
	perWeek := float64(n) / math.Max(1, float64(days)/7)

	var label string
	switch {
	case dayRatio >= 0.7 && dailyVar < 1:
		label = ConsistentDaily
	case weekRatio >= 0.8 && weeklyVar < 2:
		label = ConsistentWeekly
	case cv > 1.5:
		label = Irregular
	case perWeek >= 5:
		label = HighFrequency
	case perWeek >= 2:
		label = ModerateFrequency
	default:
		label = LowFrequency
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"per_week":          perWeek,
		"active_day_ratio":  dayRatio,
		"active_week_ratio": weekRatio,
		"daily_variance":    dailyVar,
		"weekly_variance":   weeklyVar,
		"variation":         cv,
		"span_days":         float64(days),
	}}
}

// Timing classifies responsiveness and when in the day contact happens.
func Timing(in []model.Interaction) SubReport {
	n := len(in)
	if n < minTiming {
		return insufficient(n)
	}
	var hours [24]int
	var responses []float64
	for _, i := range in {
		hours[i.OccurredAt.UTC().Hour()]++
		if i.ResponseTimeMinutes != nil {
			responses = append(responses, *i.ResponseTimeMinutes/60)
		}
	}
	peak, peakStart := 0, 0
	for h := range 24 {
		band := hours[h] + hours[(h+1)%24] + hours[(h+2)%24]
		if band > peak {
			peak, peakStart = band, h
		}
	}
	peakShare := float64(peak) / float64(n)

	metrics := map[string]float64{
		"peak_band_share":  peakShare,
		"peak_band_start":  float64(peakStart),
		"response_samples": float64(len(responses)),
	}
	meanResp := -1.0
	if len(responses) > 0 {
		meanResp = stat.Mean(responses, nil)
		metrics["mean_response_hours"] = meanResp
	}

	var label string
	switch {
	case meanResp >= 0 && meanResp < 2:
		label = RapidResponse
	case peakShare >= 0.6:
		label = FocusedTiming
	case meanResp >= 0 && meanResp < 24:
		label = SameDayResponse
	case meanResp >= 24:
		label = DelayedResponse
	default:
		label = Irregular
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: metrics}
}

// Quality classifies the level and trend of interaction quality.
func Quality(in []model.Interaction) SubReport {
	n := len(in)
	if n < minQuality {
		return insufficient(n)
	}
	qs := make([]float64, n)
	for i, x := range in {
		qs[i] = x.QualityScore
	}
	mean := stat.Mean(qs, nil)
	variance := popVariance(qs)
	half := n / 2
	trend := stat.Mean(qs[half:], nil) - stat.Mean(qs[:half], nil)

	var label string
	switch {
	case variance > 0.05:
		label = InconsistentQuality
	case trend > 0.1:
		label = ImprovingQuality
	case trend < -0.1:
		label = DecliningQuality
	case mean >= 0.8:
		label = ConsistentlyHigh
	default:
		label = ModerateQuality
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"mean":     mean,
		"variance": variance,
		"trend":    trend,
	}}
}

// ResponseBalance classifies who drives the conversation.
func ResponseBalance(in []model.Interaction) SubReport {
	n := len(in)
	if n < minBalance {
		return insufficient(n)
	}
	provider, alternations := 0, 0
	for i, x := range in {
		if x.Initiator == model.InitiatorProvider {
			provider++
		}
		if i > 0 && x.Initiator != in[i-1].Initiator {
			alternations++
		}
	}
	providerShare := float64(provider) / float64(n)
	alternation := 0.0
	if n > 1 {
		alternation = float64(alternations) / float64(n-1)
	}

	var label string
	switch {
	case n < 4:
		label = LimitedInteraction
	case providerShare > 0.7:
		label = ProviderDriven
	case 1-providerShare > 0.7:
		label = ClientDriven
	case alternation >= 0.6:
		label = InteractiveDialogue
	default:
		label = Balanced
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"provider_share": providerShare,
		"client_share":   1 - providerShare,
		"alternation":    alternation,
	}}
}

// CommunicationStyle classifies the dominant channel and message length.
func CommunicationStyle(in []model.Interaction) SubReport {
	n := len(in)
	if n < minStyle {
		return insufficient(n)
	}
	counts := map[model.Channel]int{}
	verbal, written, totalLen := 0, 0, 0
	for _, x := range in {
		counts[x.Channel]++
		if x.Channel.Verbal() {
			verbal++
		}
		if x.ContentLength > 0 {
			written++
			totalLen += x.ContentLength
		}
	}
	share := func(c int) float64 { return float64(c) / float64(n) }
	meanLen := 0.0
	if written > 0 {
		meanLen = float64(totalLen) / float64(written)
	}

	var label string
	switch {
	case share(counts[model.ChannelEmail]) >= 0.5 && meanLen >= 500:
		label = FormalDetailed
	case share(verbal) >= 0.5:
		label = DirectVerbal
	case written > 0 && meanLen < 150:
		label = ConciseEfficient
	case share(counts[model.ChannelPlatform]) >= 0.5:
		label = PlatformFocused
	default:
		label = Mixed
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"email_share":    share(counts[model.ChannelEmail]),
		"verbal_share":   share(verbal),
		"platform_share": share(counts[model.ChannelPlatform]),
		"mean_length":    meanLen,
	}}
}

// Momentum compares activity and quality across three equal periods.
func Momentum(in []model.Interaction) SubReport {
	n := len(in)
	if n < minMomentum {
		return insufficient(n)
	}
	first, last := in[0].OccurredAt, in[n-1].OccurredAt
	span := last.Sub(first)

	var counts [3]int
	var quality [3]float64
	for _, x := range in {
		p := 2
		if span > 0 {
			p = min(2, int(3*x.OccurredAt.Sub(first)/span))
		}
		counts[p]++
		quality[p] += x.QualityScore
	}
	maxCount := max(counts[0], counts[1], counts[2])
	var scores [3]float64
	for p := range 3 {
		if counts[p] == 0 {
			continue
		}
		scores[p] = 0.5*float64(counts[p])/float64(maxCount) + 0.5*quality[p]/float64(counts[p])
	}
	d1, d2 := scores[1]-scores[0], scores[2]-scores[1]
	overall := scores[2] - scores[0]

	var label string
	switch {
	case d1 > 0.1 && d2 > 0.1:
		label = Accelerating
	case overall > 0.2:
		label = Building
	case (d1 < -0.1 && d2 < -0.1) || overall < -0.2:
		label = Declining
	case math.Abs(d1) < 0.1 && math.Abs(d2) < 0.1:
		label = Consistent
	default:
		label = Stable
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"period_1": scores[0],
		"period_2": scores[1],
		"period_3": scores[2],
		"change":   overall,
	}}
}

// Milestones classifies funnel progression as of asOf.
func Milestones(ms []model.Milestone, asOf time.Time) SubReport {
	n := len(ms)
	if n < minMilestone {
		return insufficient(n)
	}
	sorted := append([]model.Milestone(nil), ms...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ReachedAt.Before(sorted[j].ReachedAt) })

	stages := map[int]struct{}{}
	maxStage := 0
	quality := 0.0
	for _, m := range sorted {
		s := m.Stage
		if s == 0 {
			s = m.Type.Stage()
		}
		stages[s] = struct{}{}
		maxStage = max(maxStage, s)
		quality += m.QualityScore
	}
	progressDays := sorted[n-1].ReachedAt.Sub(sorted[0].ReachedAt).Hours() / 24
	elapsedDays := asOf.Sub(sorted[0].ReachedAt).Hours() / 24

	var label string
	switch {
	case n >= 3 && progressDays < 7:
		label = RapidProgression
	case n < 3 && elapsedDays > 30:
		label = SlowProgression
	case len(stages) >= 4:
		label = ComprehensiveProgression
	case n >= 5:
		label = MilestoneRich
	default:
		label = NormalProgression
	}
	return SubReport{PatternType: label, DataPoints: n, Metrics: map[string]float64{
		"distinct_stages": float64(len(stages)),
		"max_stage":       float64(maxStage),
		"progress_days":   progressDays,
		"elapsed_days":    elapsedDays,
		"mean_quality":    quality / float64(n),
	}}
}
