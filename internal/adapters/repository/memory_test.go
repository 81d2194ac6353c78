package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
)

func TestMemoryStore_Outcomes(t *testing.T) {
	Convey("Given an empty memory store with a controllable clock", t, func() {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		store := NewMemoryStore(WithNow(func() time.Time { return now }))
		ctx := context.Background()

		Convey("When the same match is recorded twice", func() {
			first, err := store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1"})
			So(err, ShouldBeNil)

			now = now.Add(24 * time.Hour)
			second, err := store.RecordOutcome(ctx, model.MatchOutcome{
				MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1",
				PartnershipFormed: model.Bool(true), RevenueGenerated: 5000,
			})
			So(err, ShouldBeNil)

			Convey("Then there is one row with the latest values and the original creation time", func() {
				n, _ := store.CountOutcomes(ctx)
				So(n, ShouldEqual, 1)
				So(second.CreatedAt, ShouldEqual, first.CreatedAt)
				So(second.UpdatedAt, ShouldEqual, now)

				got, err := store.GetOutcome(ctx, "m-1")
				So(err, ShouldBeNil)
				So(got.Succeeded(), ShouldBeTrue)
				So(got.RevenueGenerated, ShouldEqual, 5000)
			})
		})

		Convey("When a returned outcome is mutated by the caller", func() {
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{
				MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1",
				PartnershipFormed: model.Bool(false),
				FactorSnapshot:    map[string]float64{"experience": 0.4},
			})
			got, _ := store.GetOutcome(ctx, "m-1")
			*got.PartnershipFormed = true
			got.FactorSnapshot["experience"] = 1

			Convey("Then the stored copy is unchanged", func() {
				again, _ := store.GetOutcome(ctx, "m-1")
				So(*again.PartnershipFormed, ShouldBeFalse)
				So(again.FactorSnapshot["experience"], ShouldEqual, 0.4)
			})
		})

		Convey("When filtering outcomes", func() {
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1", PartnershipFormed: model.Bool(true)})
			now = now.Add(time.Hour)
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-2", ProviderID: "p-1", ClientID: "c-2"})
			now = now.Add(time.Hour)
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-3", ProviderID: "p-2", ClientID: "c-1", PartnershipFormed: model.Bool(false)})

			Convey("Then provider and determined filters combine", func() {
				out, err := store.GetOutcomes(ctx, model.OutcomeFilter{ProviderID: "p-1", OnlyDetermined: true})
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(out[0].MatchID, ShouldEqual, "m-1")
			})

			Convey("Then results are ordered oldest first and since is inclusive", func() {
				out, _ := store.GetOutcomes(ctx, model.OutcomeFilter{Since: now.Add(-time.Hour)})
				So(out, ShouldHaveLength, 2)
				So(out[0].MatchID, ShouldEqual, "m-2")
				So(out[1].MatchID, ShouldEqual, "m-3")
			})

			Convey("Then active providers are listed once each", func() {
				ids, _ := store.ActiveProviders(ctx, time.Time{})
				So(ids, ShouldResemble, []string{"p-1", "p-2"})
				ids, _ = store.ActiveProviders(ctx, now)
				So(ids, ShouldResemble, []string{"p-2"})
			})
		})

		Convey("When an unknown match is requested", func() {
			_, err := store.GetOutcome(ctx, "missing")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_AppendOnlyHistory(t *testing.T) {
	Convey("Given interactions and milestones appended out of order", t, func() {
		store := NewMemoryStore()
		ctx := context.Background()
		base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

		ok, err := store.AppendInteraction(ctx, model.Interaction{ID: "i-2", MatchID: "m", Channel: model.ChannelPhone, Initiator: model.InitiatorClient, OccurredAt: base.Add(2 * time.Hour)})
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		_, _ = store.AppendInteraction(ctx, model.Interaction{ID: "i-1", MatchID: "m", Channel: model.ChannelEmail, Initiator: model.InitiatorProvider, OccurredAt: base})
		_, _ = store.AppendMilestone(ctx, model.Milestone{ID: "ms-1", MatchID: "m", Type: model.MilestoneFirstContact, ReachedAt: base})

		Convey("When the same interaction id is appended again", func() {
			ok, err := store.AppendInteraction(ctx, model.Interaction{ID: "i-1", MatchID: "m", OccurredAt: base})

			Convey("Then it is ignored", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				list, _ := store.GetInteractions(ctx, "m", time.Time{})
				So(list, ShouldHaveLength, 2)
			})
		})

		Convey("When reading history", func() {
			list, _ := store.GetInteractions(ctx, "m", time.Time{})
			recent, _ := store.GetInteractions(ctx, "m", base.Add(time.Hour))
			ms, _ := store.GetMilestones(ctx, "m", time.Time{})

			Convey("Then entries come back oldest first and honour since", func() {
				So(list[0].ID, ShouldEqual, "i-1")
				So(list[1].ID, ShouldEqual, "i-2")
				So(recent, ShouldHaveLength, 1)
				So(ms, ShouldHaveLength, 1)
			})
		})

		Convey("When a milestone id repeats", func() {
			ok, _ := store.AppendMilestone(ctx, model.Milestone{ID: "ms-1", MatchID: "m", Type: model.MilestoneDiscoveryCall, ReachedAt: base})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestMemoryStore_Weights(t *testing.T) {
	Convey("Given stored weights", t, func() {
		store := NewMemoryStore()
		ctx := context.Background()
		So(store.UpsertWeights(ctx, []model.FactorWeight{
			{Factor: "experience", CurrentWeight: 0.8, BaselineWeight: 0.8},
			{Factor: "availability", CurrentWeight: 1.1, BaselineWeight: 1.1},
		}), ShouldBeNil)

		Convey("When a batch contains an invalid row", func() {
			err := store.UpsertWeights(ctx, []model.FactorWeight{
				{Factor: "experience", CurrentWeight: 1.0, BaselineWeight: 0.8},
				{CurrentWeight: 1},
			})

			Convey("Then nothing from the batch is applied", func() {
				So(errors.Is(err, fault.ErrValidation), ShouldBeTrue)
				ws, _ := store.GetWeights(ctx)
				So(ws, ShouldHaveLength, 2)
				So(model.NewWeightSet(ws)["experience"].CurrentWeight, ShouldEqual, 0.8)
			})
		})

		Convey("When a single weight is updated", func() {
			So(store.UpsertWeight(ctx, model.FactorWeight{Factor: "experience", CurrentWeight: 0.9, BaselineWeight: 0.8}), ShouldBeNil)

			Convey("Then reads are sorted by factor and reflect the change", func() {
				ws, _ := store.GetWeights(ctx)
				So(ws[0].Factor, ShouldEqual, "availability")
				So(ws[1].CurrentWeight, ShouldEqual, 0.9)
				So(ws[1].UpdatedAt.IsZero(), ShouldBeFalse)
			})
		})
	})
}

func TestMemoryStore_ProfilesAndViews(t *testing.T) {
	Convey("Given profiles, predictions and snapshots", t, func() {
		store := NewMemoryStore()
		ctx := context.Background()
		now := time.Now()

		So(store.UpsertProviderProfile(ctx, model.ProviderProfile{ID: "p-2", Services: []string{"audit"}}), ShouldBeNil)
		So(store.UpsertProviderProfile(ctx, model.ProviderProfile{ID: "p-1", YearsExperience: model.Int(4)}), ShouldBeNil)
		So(store.UpsertClientProfile(ctx, model.ClientProfile{ID: "c-1", Industry: "retail"}), ShouldBeNil)
		So(store.SavePrediction(ctx, model.EngagementPrediction{MatchID: "m-1", PartnershipProbability: 0.5, UpdatedAt: now}), ShouldBeNil)
		So(store.SavePrediction(ctx, model.EngagementPrediction{MatchID: "m-2", PartnershipProbability: 0.95, UpdatedAt: now}), ShouldBeNil)
		So(store.SavePerformanceSnapshot(ctx, model.PerformanceSnapshot{ProviderID: "p-1", OverallScore: 72}), ShouldBeNil)

		Convey("Then providers list in id order and are copied", func() {
			ps, _ := store.ListProviders(ctx)
			So(ps, ShouldHaveLength, 2)
			So(ps[0].ID, ShouldEqual, "p-1")
			ps[1].Services[0] = "changed"
			p, _ := store.GetProviderProfile(ctx, "p-2")
			So(p.Services[0], ShouldEqual, "audit")
		})

		Convey("Then missing profiles are not found", func() {
			_, err := store.GetClientProfile(ctx, "nobody")
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
			_, err = store.GetProviderProfile(ctx, "nobody")
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then predictions are filtered by probability window", func() {
			out, _ := store.ListPredictions(ctx, model.PredictionFilter{MinProbability: 0.4, MaxProbability: 0.9})
			So(out, ShouldHaveLength, 1)
			So(out[0].MatchID, ShouldEqual, "m-1")
		})

		Convey("Then a snapshot is overwritten by the next run", func() {
			So(store.SavePerformanceSnapshot(ctx, model.PerformanceSnapshot{ProviderID: "p-1", OverallScore: 80}), ShouldBeNil)
			snap, err := store.GetPerformanceSnapshot(ctx, "p-1")
			So(err, ShouldBeNil)
			So(snap.OverallScore, ShouldEqual, 80)
		})
	})
}
