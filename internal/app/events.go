package service

import (
	"context"
	"sync"

	"github.com/okian/matchloop/internal/adapters/mq/worker"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
)

// eventLog keeps the most recent events for /stats.
type eventLog struct {
	mu    sync.Mutex
	buf   []model.Event
	next  int
	total int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]model.Event, capacity)}
}

func (l *eventLog) record(e model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	l.total++
}

// recent returns up to n events, newest first.
func (l *eventLog) recent(n int) []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := min(l.total, len(l.buf))
	if n <= 0 || n > size {
		n = size
	}
	out := make([]model.Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.buf[(l.next-i+len(l.buf))%len(l.buf)])
	}
	return out
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return min(l.total, len(l.buf))
}

func (s *Service) registerHandlers() {
	s.dispatcher.On("", worker.HandlerFunc(func(_ context.Context, e model.Event) error {
		s.events.record(e)
		return nil
	}))
	s.dispatcher.On(model.EventWeightsUpdated, worker.HandlerFunc(func(ctx context.Context, e model.Event) error {
		s.logger.Info(ctx, "factor weights updated",
			logger.Any("weights", e.Payload["weights"]),
			logger.Any("sample_size", e.Payload["sample_size"]))
		return nil
	}))
	s.dispatcher.On(model.EventInterventionExecuted, worker.HandlerFunc(func(ctx context.Context, e model.Event) error {
		s.logger.Info(ctx, "intervention executed",
			logger.String("match_id", e.MatchID),
			logger.Any("strategy", e.Payload["strategy"]))
		return nil
	}))
}

// RecentEvents returns up to n recently dispatched events, newest first.
func (s *Service) RecentEvents(n int) []model.Event {
	return s.events.recent(n)
}
