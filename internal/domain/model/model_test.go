package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestMatchOutcome(t *testing.T) {
	convey.Convey("Given match outcomes", t, func() {
		base := model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1"}

		convey.Convey("When the partnership result is unknown", func() {
			convey.So(base.Determined(), convey.ShouldBeFalse)
			convey.So(base.Succeeded(), convey.ShouldBeFalse)
		})

		convey.Convey("When the partnership formed", func() {
			o := base
			o.PartnershipFormed = model.Bool(true)
			convey.So(o.Determined(), convey.ShouldBeTrue)
			convey.So(o.Succeeded(), convey.ShouldBeTrue)
		})

		convey.Convey("When validating", func() {
			convey.So(base.Validate(), convey.ShouldBeNil)

			missing := base
			missing.MatchID = " "
			convey.So(errors.Is(missing.Validate(), fault.ErrValidation), convey.ShouldBeTrue)

			badSat := base
			badSat.ClientSatisfaction = model.Float(6)
			convey.So(badSat.Validate(), convey.ShouldNotBeNil)

			badSnapshot := base
			badSnapshot.FactorSnapshot = map[string]float64{"industry_fit": 1.4}
			convey.So(badSnapshot.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestOutcomeFilter(t *testing.T) {
	convey.Convey("Given an outcome filter", t, func() {
		now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		o := model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1", UpdatedAt: now}

		convey.So(model.OutcomeFilter{}.Matches(o), convey.ShouldBeTrue)
		convey.So(model.OutcomeFilter{ProviderID: "p-2"}.Matches(o), convey.ShouldBeFalse)
		convey.So(model.OutcomeFilter{Since: now.Add(time.Hour)}.Matches(o), convey.ShouldBeFalse)
		convey.So(model.OutcomeFilter{OnlyDetermined: true}.Matches(o), convey.ShouldBeFalse)
	})
}

func TestEngagementValidation(t *testing.T) {
	convey.Convey("Given interactions and milestones", t, func() {
		at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		convey.Convey("When an interaction is well formed", func() {
			i := model.Interaction{ID: "i-1", MatchID: "m-1", Channel: model.ChannelEmail, Initiator: model.InitiatorClient, QualityScore: 0.8, OccurredAt: at}
			convey.So(i.Validate(), convey.ShouldBeNil)

			i.Channel = "fax"
			convey.So(i.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When a milestone uses a known type", func() {
			m := model.Milestone{ID: "ms-1", MatchID: "m-1", Type: model.MilestoneProposalSent, QualityScore: 0.7, ReachedAt: at}
			convey.So(m.Validate(), convey.ShouldBeNil)
			convey.So(m.Type.Stage(), convey.ShouldEqual, 3)

			m.Type = "handshake"
			convey.So(m.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestFactorWeightBounds(t *testing.T) {
	convey.Convey("Given a factor weight", t, func() {
		w := model.FactorWeight{Factor: "experience", BaselineWeight: 0.8, CurrentWeight: 0.8}

		lo, hi := w.Bounds(0.3)
		convey.So(lo, convey.ShouldAlmostEqual, 0.56, 1e-9)
		convey.So(hi, convey.ShouldAlmostEqual, 1.04, 1e-9)
		convey.So(w.WithinBounds(0.3), convey.ShouldBeTrue)

		w.CurrentWeight = 1.2
		convey.So(w.WithinBounds(0.3), convey.ShouldBeFalse)

		convey.Convey("And a very small baseline is floored globally", func() {
			small := model.FactorWeight{BaselineWeight: 0.12}
			lo, _ := small.Bounds(0.3)
			convey.So(lo, convey.ShouldEqual, model.MinWeight)
		})
	})
}

func TestPredictionFilter(t *testing.T) {
	convey.Convey("Given a prediction filter for the optimizer window", t, func() {
		now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		f := model.PredictionFilter{MinProbability: 0.4, MaxProbability: 0.9, UpdatedSince: now.AddDate(0, 0, -7)}

		convey.So(f.Matches(model.EngagementPrediction{PartnershipProbability: 0.5, UpdatedAt: now}), convey.ShouldBeTrue)
		convey.So(f.Matches(model.EngagementPrediction{PartnershipProbability: 0.95, UpdatedAt: now}), convey.ShouldBeFalse)
		convey.So(f.Matches(model.EngagementPrediction{PartnershipProbability: 0.5, UpdatedAt: now.AddDate(0, 0, -8)}), convey.ShouldBeFalse)
	})
}
