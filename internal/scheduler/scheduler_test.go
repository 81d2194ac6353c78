package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/scheduler"
	. "github.com/smartystreets/goconvey/convey"
)

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestLoop(t *testing.T) {
	Convey("Given a loop driven by a fake clock", t, func() {
		clock := scheduler.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
		loop := scheduler.NewLoop(scheduler.WithClock(clock))
		ctx := context.Background()

		var runs atomic.Int64
		So(loop.Add(scheduler.Task{
			Name:     "learning",
			Interval: time.Hour,
			Run: func(context.Context) error {
				runs.Add(1)
				return nil
			},
		}), ShouldBeNil)

		Convey("When the clock advances past the interval", func() {
			loop.Start(ctx)
			defer loop.Stop()
			So(waitUntil(func() bool { return clock.Tickers() == 1 }), ShouldBeTrue)

			clock.Advance(time.Hour)

			Convey("Then the task runs once", func() {
				So(waitUntil(func() bool { return runs.Load() == 1 }), ShouldBeTrue)
				So(waitUntil(func() bool { return loop.State()[0].Runs == 1 }), ShouldBeTrue)
			})
		})

		Convey("When the loop is stopped and started again", func() {
			loop.Start(ctx)
			So(waitUntil(func() bool { return clock.Tickers() == 1 }), ShouldBeTrue)
			loop.Stop()
			So(clock.Tickers(), ShouldEqual, 0)

			loop.Start(ctx)
			defer loop.Stop()
			So(waitUntil(func() bool { return clock.Tickers() == 1 }), ShouldBeTrue)
			clock.Advance(time.Hour)

			Convey("Then the task is scheduled again", func() {
				So(waitUntil(func() bool { return runs.Load() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When Stop is called twice", func() {
			loop.Start(ctx)
			loop.Stop()
			loop.Stop()
			So(clock.Tickers(), ShouldEqual, 0)
		})

		Convey("When a task is registered twice or without a run function", func() {
			So(loop.Add(scheduler.Task{Name: "learning", Run: func(context.Context) error { return nil }}), ShouldNotBeNil)
			So(loop.Add(scheduler.Task{Name: "empty"}), ShouldNotBeNil)
		})

		Convey("When an unknown task is triggered", func() {
			_, err := loop.Trigger(ctx, "missing")
			So(errors.Is(err, scheduler.ErrUnknownTask), ShouldBeTrue)
		})
	})

	Convey("Given a task that blocks until released", t, func() {
		clock := scheduler.NewFakeClock(time.Unix(0, 0))
		loop := scheduler.NewLoop(scheduler.WithClock(clock))
		ctx := context.Background()

		release := make(chan struct{})
		started := make(chan struct{}, 4)
		var runs atomic.Int64
		So(loop.Add(scheduler.Task{
			Name:     "optimizer",
			Interval: time.Minute,
			Run: func(context.Context) error {
				runs.Add(1)
				started <- struct{}{}
				<-release
				return nil
			},
		}), ShouldBeNil)

		Convey("When a trigger arrives while a run is in flight", func() {
			done := make(chan bool, 1)
			go func() {
				ran, _ := loop.Trigger(ctx, "optimizer")
				done <- ran
			}()
			<-started
			So(loop.Running("optimizer"), ShouldBeTrue)

			ran, err := loop.Trigger(ctx, "optimizer")

			Convey("Then the overlapping run is skipped and counted", func() {
				So(err, ShouldBeNil)
				So(ran, ShouldBeFalse)
				close(release)
				So(<-done, ShouldBeTrue)
				So(runs.Load(), ShouldEqual, 1)
				state := loop.State()[0]
				So(state.Skips, ShouldEqual, 1)
				So(state.Runs, ShouldEqual, 1)
				So(state.Running, ShouldBeFalse)
			})
		})

		Convey("When ticks keep arriving during a long run", func() {
			loop.Start(ctx)
			So(waitUntil(func() bool { return clock.Tickers() == 1 }), ShouldBeTrue)

			clock.Advance(time.Minute)
			<-started
			clock.Advance(time.Minute)
			So(waitUntil(func() bool { return loop.State()[0].Skips >= 1 }), ShouldBeTrue)
			close(release)
			loop.Stop()

			Convey("Then only one run happened", func() {
				So(runs.Load(), ShouldEqual, 1)
				So(clock.Tickers(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given tasks that fail or panic", t, func() {
		loop := scheduler.NewLoop()
		ctx := context.Background()
		So(loop.Add(scheduler.Task{Name: "failing", Run: func(context.Context) error { return errors.New("boom") }}), ShouldBeNil)
		So(loop.Add(scheduler.Task{Name: "panicking", Run: func(context.Context) error { panic("bad") }}), ShouldBeNil)

		Convey("Then errors are returned and recorded", func() {
			ran, err := loop.Trigger(ctx, "failing")
			So(ran, ShouldBeTrue)
			So(err, ShouldNotBeNil)
			So(loop.State()[0].LastErr, ShouldEqual, err)
		})

		Convey("Then a panic becomes an error and the flag is cleared", func() {
			ran, err := loop.Trigger(ctx, "panicking")
			So(ran, ShouldBeTrue)
			So(err, ShouldNotBeNil)
			So(loop.Running("panicking"), ShouldBeFalse)

			ran, _ = loop.Trigger(ctx, "panicking")
			So(ran, ShouldBeTrue)
		})
	})
}
