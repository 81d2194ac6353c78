package forecast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fixedTrend float64

func (t fixedTrend) RevenueTrend() float64 { return float64(t) }

var march = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func TestMultipliers(t *testing.T) {
	Convey("Given the pricing tables", t, func() {
		Convey("Then seasonal multipliers follow the tax calendar", func() {
			So(forecast.Seasonal(time.January), ShouldEqual, 1.10)
			So(forecast.Seasonal(time.February), ShouldEqual, 1.25)
			So(forecast.Seasonal(time.April), ShouldEqual, 1.25)
			So(forecast.Seasonal(time.May), ShouldEqual, 1.05)
			So(forecast.Seasonal(time.July), ShouldEqual, 1.0)
			So(forecast.Seasonal(time.December), ShouldEqual, 0.90)
		})

		Convey("Then regions price by province", func() {
			So(forecast.RegionMultiplier("on"), ShouldEqual, 1.10)
			So(forecast.RegionMultiplier("NS"), ShouldEqual, 0.95)
			So(forecast.RegionMultiplier(""), ShouldEqual, 1.0)
		})

		Convey("Then the market trend is bounded", func() {
			So(forecast.Trend(5), ShouldEqual, 1.2)
			So(forecast.Trend(0.5), ShouldEqual, 0.9)
			So(forecast.Trend(0), ShouldEqual, forecast.DefaultTrend)
		})
	})
}

func TestForecast(t *testing.T) {
	Convey("Given a forecaster over a store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		c := cache.NewLocal()
		f := forecast.New(store,
			forecast.WithTrendSource(fixedTrend(1.03)),
			forecast.WithCache(c, time.Minute),
			forecast.WithNow(func() time.Time { return march }),
		)

		So(store.UpsertClientProfile(ctx, model.ClientProfile{
			ID:             "c-1",
			Province:       "ON",
			BusinessSize:   model.SizeSmall,
			Complexity:     model.ComplexityModerate,
			ServicesNeeded: []string{"Bookkeeping", "tax_preparation", "knitting"},
		}), ShouldBeNil)
		_, err := store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1"})
		So(err, ShouldBeNil)
		So(store.SavePrediction(ctx, model.EngagementPrediction{MatchID: "m-1", PartnershipProbability: 0.6}), ShouldBeNil)

		Convey("When a fully described match is forecast", func() {
			out, err := f.Forecast(ctx, "m-1", forecast.Options{})
			So(err, ShouldBeNil)
			combined := 1.10 * 1.25 * 1.03

			Convey("Then annual figures apply every multiplier", func() {
				So(out.Services, ShouldResemble, []string{"bookkeeping", "tax_preparation"})
				So(out.Multipliers.Combined, ShouldAlmostEqual, combined, 1e-9)
				So(out.AnnualOngoing, ShouldAlmostEqual, 7500*combined, 1e-6)
				So(out.AnnualProject, ShouldAlmostEqual, 3750*combined, 1e-6)
				So(out.ExpectedAnnual, ShouldAlmostEqual, 11250*combined*0.6, 1e-6)
				So(out.DataQuality, ShouldEqual, 1)
				So(out.DefaultedInputs, ShouldBeEmpty)
			})

			Convey("Then scenarios blend by probability", func() {
				So(out.Scenarios, ShouldHaveLength, 4)
				So(out.Scenarios[0].Revenue, ShouldAlmostEqual, out.ExpectedAnnual*0.7, 1e-6)
				So(out.Blended, ShouldAlmostEqual, out.ExpectedAnnual*1.015, 1e-6)
			})

			Convey("Then wider confidence levels give wider bands", func() {
				So(out.Sigma, ShouldAlmostEqual, 0.15, 1e-12)
				So(out.Bands, ShouldHaveLength, 3)
				So(out.Bands[0].Upper-out.Bands[0].Lower, ShouldBeGreaterThan, out.Bands[1].Upper-out.Bands[1].Lower)
				So(out.Bands[1].Upper-out.Bands[1].Lower, ShouldBeGreaterThan, out.Bands[2].Upper-out.Bands[2].Lower)
				So(out.Bands[0].Lower, ShouldAlmostEqual, out.ExpectedAnnual*(1-1.96*0.15), 1e-6)
			})

			Convey("Then the monthly projection compounds growth", func() {
				So(out.Monthly, ShouldHaveLength, forecast.DefaultMonths)
				So(out.Monthly[0].Month, ShouldEqual, "2025-03")
				So(out.Monthly[11].Month, ShouldEqual, "2026-02")
				So(out.MonthlyGrowth, ShouldBeGreaterThan, 0)
				// June and July share a seasonal factor, so only growth differs.
				So(out.Monthly[4].Revenue, ShouldAlmostEqual, out.Monthly[3].Revenue*(1+out.MonthlyGrowth), 1e-6)
				last := out.Monthly[len(out.Monthly)-1]
				sum := 0.0
				for _, m := range out.Monthly {
					sum += m.Expected
				}
				So(last.Cumulative, ShouldAlmostEqual, sum, 1e-6)
			})
		})

		Convey("When nothing is known about the client", func() {
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-2", ProviderID: "p-1", ClientID: "c-unknown"})
			out, err := f.Forecast(ctx, "m-2", forecast.Options{Months: 3})

			Convey("Then every input is defaulted and the bands widen", func() {
				So(err, ShouldBeNil)
				So(out.Services, ShouldResemble, forecast.DefaultServices)
				So(out.Probability, ShouldEqual, 0.5)
				So(out.DefaultedInputs, ShouldHaveLength, 5)
				So(out.Sigma, ShouldAlmostEqual, 0.4, 1e-12)
				So(out.DataQuality, ShouldAlmostEqual, 0, 1e-12)
				So(out.Monthly, ShouldHaveLength, 3)
				So(out.Bands[0].Lower, ShouldBeLessThan, out.ExpectedAnnual)
			})
		})

		Convey("When the partnership already formed", func() {
			_, _ = store.RecordOutcome(ctx, model.MatchOutcome{MatchID: "m-1", ProviderID: "p-1", ClientID: "c-1", PartnershipFormed: model.Bool(true)})
			out, err := f.Forecast(ctx, "m-1", forecast.Options{BypassCache: true})
			So(err, ShouldBeNil)
			So(out.Probability, ShouldEqual, 1)
			So(out.ExpectedAnnual, ShouldAlmostEqual, out.AnnualTotal, 1e-9)
		})

		Convey("When a forecast is cached", func() {
			first, _ := f.Forecast(ctx, "m-1", forecast.Options{})
			So(store.SavePrediction(ctx, model.EngagementPrediction{MatchID: "m-1", PartnershipProbability: 0.9}), ShouldBeNil)

			Convey("Then repeat calls reuse it until bypassed", func() {
				again, _ := f.Forecast(ctx, "m-1", forecast.Options{})
				So(again.Probability, ShouldEqual, first.Probability)
				fresh, _ := f.Forecast(ctx, "m-1", forecast.Options{BypassCache: true})
				So(fresh.Probability, ShouldEqual, 0.9)
			})
		})

		Convey("When a forecast is pinned to another start", func() {
			current, err := f.Forecast(ctx, "m-1", forecast.Options{})
			So(err, ShouldBeNil)
			june := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
			pinned, err := f.Forecast(ctx, "m-1", forecast.Options{AsOf: june})
			So(err, ShouldBeNil)

			Convey("Then the pinned projection starts at the pin and skips the cache", func() {
				So(current.Monthly[0].Month, ShouldEqual, "2025-03")
				So(pinned.Monthly[0].Month, ShouldEqual, "2025-06")
				again, err := f.Forecast(ctx, "m-1", forecast.Options{})
				So(err, ShouldBeNil)
				So(again.Monthly[0].Month, ShouldEqual, "2025-03")
			})
		})

		Convey("When custom scenarios are configured", func() {
			custom := forecast.New(store, forecast.WithScenarios([]forecast.Scenario{{Name: "flat", Multiplier: 1, Probability: 1}}))
			out, err := custom.Forecast(ctx, "m-1", forecast.Options{AsOf: march})
			So(err, ShouldBeNil)
			So(out.Scenarios, ShouldHaveLength, 1)
			So(out.Blended, ShouldAlmostEqual, out.ExpectedAnnual, 1e-9)
			So(out.Multipliers.Trend, ShouldEqual, forecast.DefaultTrend)
		})

		Convey("When the match or input is invalid", func() {
			_, err := f.Forecast(ctx, "missing", forecast.Options{})
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
			_, err = f.Forecast(ctx, "", forecast.Options{})
			So(errors.Is(err, fault.ErrValidation), ShouldBeTrue)
			_, err = f.Forecast(ctx, "m-1", forecast.Options{Months: 61})
			So(errors.Is(err, fault.ErrValidation), ShouldBeTrue)
		})
	})
}
