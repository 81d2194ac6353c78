package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, model.Event{ID: "e1", Type: model.EventOutcomeRecorded, MatchID: "m-1"}) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	event := <-q.Dequeue(ctx)
	if event.ID != "e1" || event.MatchID != "m-1" {
		t.Errorf("unexpected event %+v", event)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !q.Enqueue(ctx, model.Event{ID: fmt.Sprintf("e%d", i)}) {
			t.Errorf("expected enqueue %d to succeed", i)
		}
	}
	if q.Enqueue(ctx, model.Event{ID: "overflow"}) {
		t.Error("expected enqueue to fail when full")
	}
	if q.Capacity() != 2 || q.Len(ctx) != 2 {
		t.Errorf("expected 2/2, got %d/%d", q.Len(ctx), q.Capacity())
	}
}

func TestInMemoryQueue_PublishStampsEvents(t *testing.T) {
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	q := NewInMemoryQueue(WithCapacity(1), WithNow(func() time.Time { return at }))
	ctx := context.Background()

	q.Publish(ctx, model.Event{Type: model.EventWeightsUpdated})
	// Full: dropped without blocking or panicking.
	q.Publish(ctx, model.Event{Type: model.EventWeightsUpdated})

	event := <-q.Dequeue(ctx)
	if event.ID == "" {
		t.Error("expected a generated event id")
	}
	if !event.OccurredAt.Equal(at) {
		t.Errorf("expected occurred_at %v, got %v", at, event.OccurredAt)
	}
	if q.Len(ctx) != 0 {
		t.Errorf("expected the second publish to be dropped, queue has %d", q.Len(ctx))
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var consumed sync.WaitGroup
	consumed.Add(producers * perProducer)
	out := q.Dequeue(ctx)
	for i := 0; i < 4; i++ {
		go func() {
			for range out {
				consumed.Done()
			}
		}()
	}

	var produced sync.WaitGroup
	for i := 0; i < producers; i++ {
		produced.Add(1)
		go func(id int) {
			defer produced.Done()
			for j := 0; j < perProducer; j++ {
				e := model.Event{ID: fmt.Sprintf("e%d_%d", id, j), Type: model.EventOutcomeRecorded}
				for !q.Enqueue(ctx, e) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	produced.Wait()
	consumed.Wait()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, model.Event{ID: "e1"})
	_ = q.Enqueue(ctx, model.Event{ID: "e2"})

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, model.Event{ID: "late"}) {
		t.Error("expected enqueue to fail after closing")
	}

	// Events queued before Close are still delivered, then the channel closes.
	var got []string
	timeout := time.After(time.Second)
	out := q.Dequeue(ctx)
	for done := false; !done; {
		select {
		case e, ok := <-out:
			if !ok {
				done = true
				break
			}
			got = append(got, e.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 drained events, got %v", got)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
