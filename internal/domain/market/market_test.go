package market_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/market"
	"github.com/okian/matchloop/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRefresh(t *testing.T) {
	Convey("Given outcomes across two industries", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		clock := now.Add(-120 * 24 * time.Hour)
		store := repository.NewMemoryStore(repository.WithNow(func() time.Time { return clock }))
		m := market.New(store, market.WithNow(func() time.Time { return now }))

		So(store.UpsertClientProfile(ctx, model.ClientProfile{ID: "tech", Industry: "Technology"}), ShouldBeNil)
		So(store.UpsertClientProfile(ctx, model.ClientProfile{ID: "shop", Industry: "retail"}), ShouldBeNil)
		So(store.UpsertClientProfile(ctx, model.ClientProfile{ID: "farm", Industry: "agriculture"}), ShouldBeNil)

		record := func(id, client string, ok bool, revenue float64) {
			_, err := store.RecordOutcome(ctx, model.MatchOutcome{
				MatchID: id, ProviderID: "p", ClientID: client,
				PartnershipFormed: model.Bool(ok), RevenueGenerated: revenue,
			})
			So(err, ShouldBeNil)
		}
		// Older half: modest revenue.
		for i := 0; i < 10; i++ {
			record(fmt.Sprintf("old-tech-%d", i), "tech", true, 1000)
			record(fmt.Sprintf("old-shop-%d", i), "shop", i < 2, 1000)
		}
		// Recent half: revenue doubles.
		clock = now.Add(-10 * 24 * time.Hour)
		for i := 0; i < 10; i++ {
			record(fmt.Sprintf("new-tech-%d", i), "tech", true, 2000)
		}
		record("new-farm", "farm", false, 0)

		Convey("Before the first refresh signals are neutral", func() {
			So(m.DemandIndex("technology"), ShouldEqual, 1)
			So(m.RevenueTrend(), ShouldEqual, forecast.DefaultTrend)
		})

		Convey("When refreshed", func() {
			snap, err := m.Refresh(ctx)
			So(err, ShouldBeNil)

			Convey("Then industries above the overall rate gain demand within bounds", func() {
				So(snap.Outcomes, ShouldEqual, 31)
				So(m.DemandIndex(" TECHNOLOGY "), ShouldEqual, 1.1)
				So(m.DemandIndex("retail"), ShouldBeLessThan, 1)
				So(m.DemandIndex("retail"), ShouldBeGreaterThanOrEqualTo, 0.9)
			})

			Convey("Then thin industries stay neutral", func() {
				So(snap.IndustryOutcomes["agriculture"], ShouldEqual, 1)
				So(m.DemandIndex("agriculture"), ShouldEqual, 1)
				So(m.DemandIndex("unknown"), ShouldEqual, 1)
			})

			Convey("Then the revenue trend is capped", func() {
				So(m.RevenueTrend(), ShouldEqual, 1.2)
			})

			Convey("Then snapshots are copies", func() {
				s := m.Snapshot()
				s.DemandIndex["technology"] = 5
				So(m.DemandIndex("technology"), ShouldEqual, 1.1)
			})
		})

		Convey("When reads race a refresh", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						_ = m.DemandIndex("technology")
						_ = m.RevenueTrend()
					}
				}()
			}
			_, err := m.Refresh(ctx)
			wg.Wait()
			So(err, ShouldBeNil)
		})
	})
}
