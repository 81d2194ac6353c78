package scoring_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	scoring "github.com/okian/matchloop/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func exampleClient() model.ClientProfile {
	return model.ClientProfile{ID: "c-1", Industry: "technology", Province: "ON"}
}

func exampleProvider() model.ProviderProfile {
	return model.ProviderProfile{
		ID:               "p-1",
		Specializations:  []string{"tech"},
		Province:         "ON",
		YearsExperience:  model.Int(8),
		AcceptingClients: model.Bool(true),
		CurrentCapacity:  model.Int(5),
	}
}

func factor(r scoring.Result, name string) scoring.FactorResult {
	for _, f := range r.Breakdown {
		if f.Factor == name {
			return f
		}
	}
	return scoring.FactorResult{}
}

func TestFactorScorer_Score(t *testing.T) {
	Convey("Given a factor scorer and baseline weights", t, func() {
		scorer := scoring.NewFactorScorer()
		ctx := context.Background()

		Convey("When scoring the technology client against a tech specialist in the same province", func() {
			res, err := scorer.Score(ctx, exampleClient(), exampleProvider(), nil)
			So(err, ShouldBeNil)

			Convey("Then the headline factors are maxed", func() {
				So(factor(res, scoring.FactorIndustryFit).Value, ShouldEqual, 1.0)
				So(factor(res, scoring.FactorGeographicProximity).Value, ShouldEqual, 1.0)
				So(factor(res, scoring.FactorAvailability).Value, ShouldEqual, 1.0)
				So(factor(res, scoring.FactorExperience).Value, ShouldEqual, 0.9)
			})

			Convey("And the total lands in the high range", func() {
				So(res.TotalScore, ShouldBeGreaterThan, 80)
				So(res.TotalScore, ShouldAlmostEqual, 100*6.48/7.9, 1e-9)
			})

			Convey("And confidence reflects four defaulted factors", func() {
				So(res.Confidence, ShouldAlmostEqual, 0.4+0.6*4.0/8.0, 1e-9)
			})
		})

		Convey("When the cities differ within the province", func() {
			c := exampleClient()
			c.City = "Toronto"
			p := exampleProvider()
			p.City = "Ottawa"
			res, err := scorer.Score(ctx, c, p, nil)
			So(err, ShouldBeNil)
			So(factor(res, scoring.FactorGeographicProximity).Value, ShouldEqual, 0.8)
		})

		Convey("When the provider is not accepting clients", func() {
			p := exampleProvider()
			p.AcceptingClients = model.Bool(false)
			res, err := scorer.Score(ctx, exampleClient(), p, nil)
			So(err, ShouldBeNil)

			Convey("Then availability is zero but the pair still has a score", func() {
				So(factor(res, scoring.FactorAvailability).Value, ShouldEqual, 0.0)
				So(factor(res, scoring.FactorAvailability).Defaulted, ShouldBeFalse)
				So(res.TotalScore, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When both profiles are empty apart from ids", func() {
			res, err := scorer.Score(ctx, model.ClientProfile{ID: "c"}, model.ProviderProfile{ID: "p"}, nil)
			So(err, ShouldBeNil)

			Convey("Then every factor uses its neutral default", func() {
				for _, f := range res.Breakdown {
					So(f.Defaulted, ShouldBeTrue)
				}
				So(factor(res, scoring.FactorIndustryFit).Value, ShouldEqual, 0.5)
				So(factor(res, scoring.FactorAvailability).Value, ShouldEqual, 0.7)
				So(res.Confidence, ShouldEqual, 0.4)
			})
		})

		Convey("When the industries only share a family", func() {
			c := model.ClientProfile{ID: "c", Industry: "dental clinic"}
			p := model.ProviderProfile{ID: "p", Specializations: []string{"medical practices"}}
			res, _ := scorer.Score(ctx, c, p, nil)
			So(factor(res, scoring.FactorIndustryFit).Value, ShouldEqual, 0.7)
		})

		Convey("When complex work meets a junior provider", func() {
			c := model.ClientProfile{ID: "c", ServicesNeeded: []string{"audit", "tax_preparation"}, Complexity: model.ComplexityComplex}
			p := model.ProviderProfile{ID: "p", Services: []string{"Audit"}, YearsExperience: model.Int(3)}
			res, _ := scorer.Score(ctx, c, p, nil)
			So(factor(res, scoring.FactorServiceComplexityFit).Value, ShouldAlmostEqual, 0.5*0.7, 1e-9)
		})

		Convey("When the sizes are adjacent", func() {
			c := model.ClientProfile{ID: "c", BusinessSize: model.SizeMedium}
			p := model.ProviderProfile{ID: "p", PreferredBusinessSizes: []model.BusinessSize{model.SizeSmall}}
			res, _ := scorer.Score(ctx, c, p, nil)
			So(factor(res, scoring.FactorBusinessSizeFit).Value, ShouldEqual, 0.6)
		})

		Convey("When identifiers are missing", func() {
			_, err := scorer.Score(ctx, model.ClientProfile{}, exampleProvider(), nil)

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, fault.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := scorer.Score(cctx, exampleClient(), exampleProvider(), nil)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestEffectiveWeight(t *testing.T) {
	Convey("Given learned weights with invalid values", t, func() {
		weights := model.WeightSet{
			scoring.FactorIndustryFit:         {Factor: scoring.FactorIndustryFit, CurrentWeight: 0},
			scoring.FactorGeographicProximity: {Factor: scoring.FactorGeographicProximity, CurrentWeight: -3},
			scoring.FactorExperience:          {Factor: scoring.FactorExperience, CurrentWeight: math.NaN()},
			scoring.FactorTrackRecord:         {Factor: scoring.FactorTrackRecord, CurrentWeight: 1.7},
		}

		Convey("Then non-positive and non-finite weights clamp to the minimum", func() {
			So(scoring.EffectiveWeight(weights, scoring.FactorIndustryFit), ShouldEqual, model.MinWeight)
			So(scoring.EffectiveWeight(weights, scoring.FactorGeographicProximity), ShouldEqual, model.MinWeight)
			So(scoring.EffectiveWeight(weights, scoring.FactorExperience), ShouldEqual, model.MinWeight)
		})

		Convey("Then valid learned weights are used and missing ones fall back to baseline", func() {
			So(scoring.EffectiveWeight(weights, scoring.FactorTrackRecord), ShouldEqual, 1.7)
			So(scoring.EffectiveWeight(weights, scoring.FactorCommunicationFit), ShouldEqual, 0.6)
		})
	})
}

func TestScoreProperties(t *testing.T) {
	Convey("Given randomly generated profiles and weights", t, func() {
		rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic fixture generation
		industries := []string{"", "technology", "retail", "dental", "construction"}
		provinces := []string{"", "ON", "BC", "QC"}
		sizes := []model.BusinessSize{"", model.SizeMicro, model.SizeSmall, model.SizeMedium, model.SizeLarge}

		for i := 0; i < 500; i++ {
			c := model.ClientProfile{
				ID:           "c",
				Industry:     industries[rng.Intn(len(industries))],
				Province:     provinces[rng.Intn(len(provinces))],
				BusinessSize: sizes[rng.Intn(len(sizes))],
			}
			p := model.ProviderProfile{
				ID:                     "p",
				Specializations:        []string{industries[rng.Intn(len(industries))]},
				Province:               provinces[rng.Intn(len(provinces))],
				YearsExperience:        model.Int(rng.Intn(25)),
				CurrentCapacity:        model.Int(rng.Intn(6)),
				AcceptingClients:       model.Bool(rng.Intn(4) > 0),
				Rating:                 model.Float(rng.Float64() * 5),
				PreferredBusinessSizes: []model.BusinessSize{sizes[1+rng.Intn(4)]},
			}
			weights := model.WeightSet{}
			for _, f := range scoring.Factors {
				weights[f] = model.FactorWeight{Factor: f, CurrentWeight: rng.Float64()*3 - 0.5}
			}

			first := scoring.Compute(c, p, weights)
			second := scoring.Compute(c, p, weights)

			So(first.TotalScore, ShouldBeBetweenOrEqual, 0, 100)
			So(first.Confidence, ShouldBeBetweenOrEqual, 0.4, 1)
			So(second, ShouldResemble, first)
		}
	})
}

func TestResultHelpers(t *testing.T) {
	Convey("Given a computed result", t, func() {
		res := scoring.Compute(exampleClient(), exampleProvider(), nil)

		Convey("Then Top orders by weighted contribution", func() {
			top := res.Top(3)
			So(top, ShouldHaveLength, 3)
			So(top[0].Factor, ShouldEqual, scoring.FactorIndustryFit)
			So(top[0].Weighted, ShouldBeGreaterThanOrEqualTo, top[1].Weighted)
			So(top[1].Weighted, ShouldBeGreaterThanOrEqualTo, top[2].Weighted)
		})

		Convey("Then Values exposes a snapshot for every factor", func() {
			So(res.Values(), ShouldHaveLength, len(scoring.Factors))
		})

		Convey("Then seeded weights equal their baselines", func() {
			seeded := scoring.DefaultWeights(time.Unix(0, 0))
			So(seeded, ShouldHaveLength, len(scoring.Factors))
			for _, w := range seeded {
				So(w.CurrentWeight, ShouldEqual, scoring.BaselineWeight(w.Factor))
				So(w.WithinBounds(0.3), ShouldBeTrue)
			}
		})
	})
}
