package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocal(t *testing.T) {
	Convey("Given a local locker", t, func() {
		now := time.Unix(1_700_000_000, 0)
		l := NewLocal()
		l.now = func() time.Time { return now }
		ctx := context.Background()

		release, ok, err := l.TryAcquire(ctx, "learning", time.Minute)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		Convey("When a second caller tries the same key", func() {
			_, ok, _ := l.TryAcquire(ctx, "learning", time.Minute)
			So(ok, ShouldBeFalse)
		})

		Convey("When a different key is requested", func() {
			_, ok, _ := l.TryAcquire(ctx, "market", time.Minute)
			So(ok, ShouldBeTrue)
		})

		Convey("When the holder releases", func() {
			So(release(ctx), ShouldBeNil)
			_, ok, _ := l.TryAcquire(ctx, "learning", time.Minute)
			So(ok, ShouldBeTrue)
		})

		Convey("When the hold expires and is taken over", func() {
			now = now.Add(2 * time.Minute)
			_, ok, _ := l.TryAcquire(ctx, "learning", time.Minute)
			So(ok, ShouldBeTrue)

			Convey("Then the stale release does not free the new hold", func() {
				So(release(ctx), ShouldBeNil)
				_, ok, _ := l.TryAcquire(ctx, "learning", time.Minute)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestRedis(t *testing.T) {
	Convey("Given a redis locker", t, func() {
		mr, err := miniredis.Run()
		So(err, ShouldBeNil)
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		a := NewRedis(client, "matchloop:")
		b := NewRedis(client, "matchloop:")
		ctx := context.Background()

		release, ok, err := a.TryAcquire(ctx, "learning", 10*time.Minute)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(mr.Exists("matchloop:lock:learning"), ShouldBeTrue)

		Convey("Then another instance cannot acquire it", func() {
			_, ok, err := b.TryAcquire(ctx, "learning", 10*time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Then releasing frees the key", func() {
			So(release(ctx), ShouldBeNil)
			So(mr.Exists("matchloop:lock:learning"), ShouldBeFalse)
		})

		Convey("Then an expired lock is free for others and the old release is a no-op", func() {
			mr.FastForward(11 * time.Minute)
			_, ok, err := b.TryAcquire(ctx, "learning", 10*time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			So(release(ctx), ShouldBeNil)
			So(mr.Exists("matchloop:lock:learning"), ShouldBeTrue)
		})
	})
}
