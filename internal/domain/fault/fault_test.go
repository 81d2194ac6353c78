package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/matchloop/internal/domain/fault"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFaultKinds(t *testing.T) {
	Convey("Given classified errors", t, func() {
		cause := errors.New("connection refused")

		Convey("When a store error wraps a driver failure", func() {
			err := fmt.Errorf("record outcome: %w", fault.Store("record_outcome", cause))

			Convey("Then it matches both the sentinel and the cause and is retryable", func() {
				So(errors.Is(err, fault.ErrStore), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(fault.IsRetryable(err), ShouldBeTrue)
				So(fault.KindOf(err), ShouldEqual, fault.KindStore)
			})
		})

		Convey("When a store error wraps an already classified error", func() {
			inner := fault.NotFound("get_outcome", "outcome", "m-1")
			err := fault.Store("get_outcome", inner)

			Convey("Then the original classification is kept", func() {
				So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
				So(fault.IsRetryable(err), ShouldBeFalse)
			})
		})

		Convey("When wrapping nil", func() {
			So(fault.Store("noop", nil), ShouldBeNil)
		})

		Convey("When building a validation error", func() {
			err := fault.Validation("score", "client id is required")

			Convey("Then the message names the op and kind", func() {
				So(err.Error(), ShouldEqual, "score: validation: client id is required")
				So(errors.Is(err, fault.ErrValidation), ShouldBeTrue)
				So(fault.IsRetryable(err), ShouldBeFalse)
			})
		})

		Convey("When building insufficient data and computation errors", func() {
			So(errors.Is(fault.InsufficientData("learn", 3, 15), fault.ErrInsufficientData), ShouldBeTrue)
			So(fault.KindOf(fault.Computation("correlate", errors.New("NaN"))), ShouldEqual, fault.KindComputation)
		})

		Convey("When the error is unclassified", func() {
			So(fault.KindOf(cause), ShouldEqual, fault.KindInternal)
			So(fault.IsRetryable(cause), ShouldBeFalse)
		})
	})
}
