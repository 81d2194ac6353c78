package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/matchloop/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntryJSON(t *testing.T) {
	Convey("Given a leaderboard entry", t, func() {
		entry := types.Entry{Rank: 1, ProviderID: "p-1", Score: 91.5, Tier: "elite"}

		Convey("When encoding it for the API", func() {
			raw, err := json.Marshal(entry)
			So(err, ShouldBeNil)

			Convey("Then the wire names are snake_case", func() {
				So(string(raw), ShouldEqual, `{"rank":1,"provider_id":"p-1","score":91.5,"tier":"elite"}`)
			})
		})

		Convey("When the tier is unknown", func() {
			raw, err := json.Marshal(types.Entry{Rank: 2, ProviderID: "p-2", Score: 40})
			So(err, ShouldBeNil)
			So(string(raw), ShouldNotContainSubstring, "tier")
		})
	})
}
