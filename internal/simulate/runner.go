package simulate

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/matchloop/pkg/logger"
)

type counters struct {
	ok, duplicate, failed atomic.Int64
}

// Load writes ds into sink with up to workers concurrent requests. Profiles
// go first, then outcomes, then the engagement history, so every write
// refers to data already present. Individual failures are counted and
// logged; only cancellation aborts the load.
func Load(ctx context.Context, sink Sink, ds Dataset, workers int) (Stats, error) {
	start := time.Now()
	log := logger.Get().Named("simulate")
	workers = max(1, workers)

	var stats Stats
	var failed, duplicates int64

	phase := func(name string, n int, write func(ctx context.Context, i int) (bool, error)) (int, error) {
		var c counters
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range n {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				inserted, err := write(gctx, i)
				switch {
				case err != nil:
					if ctx.Err() != nil {
						return ctx.Err()
					}
					c.failed.Add(1)
					log.Warn(gctx, "write failed", logger.String("phase", name), logger.Int("index", i), logger.Error(err))
				case !inserted:
					c.duplicate.Add(1)
				default:
					c.ok.Add(1)
				}
				return nil
			})
		}
		err := g.Wait()
		if err == nil {
			err = ctx.Err()
		}
		failed += c.failed.Load()
		duplicates += c.duplicate.Load()
		log.Info(ctx, "phase loaded",
			logger.String("phase", name),
			logger.Int64("written", c.ok.Load()),
			logger.Int64("duplicates", c.duplicate.Load()),
			logger.Int64("failed", c.failed.Load()))
		return int(c.ok.Load()), err
	}

	var err error
	steps := []struct {
		name  string
		n     int
		into  *int
		write func(ctx context.Context, i int) (bool, error)
	}{
		{"providers", len(ds.Providers), &stats.Providers, func(ctx context.Context, i int) (bool, error) {
			return true, sink.UpsertProvider(ctx, ds.Providers[i])
		}},
		{"clients", len(ds.Clients), &stats.Clients, func(ctx context.Context, i int) (bool, error) {
			return true, sink.UpsertClient(ctx, ds.Clients[i])
		}},
		{"outcomes", len(ds.Outcomes), &stats.Outcomes, func(ctx context.Context, i int) (bool, error) {
			_, err := sink.RecordOutcome(ctx, ds.Outcomes[i])
			return true, err
		}},
		{"interactions", len(ds.Interactions), &stats.Interactions, func(ctx context.Context, i int) (bool, error) {
			return sink.AppendInteraction(ctx, ds.Interactions[i])
		}},
		{"milestones", len(ds.Milestones), &stats.Milestones, func(ctx context.Context, i int) (bool, error) {
			return sink.AppendMilestone(ctx, ds.Milestones[i])
		}},
	}
	for _, st := range steps {
		if *st.into, err = phase(st.name, st.n, st.write); err != nil {
			break
		}
	}

	stats.Failed = int(failed)
	stats.Duplicates = int(duplicates)
	stats.Duration = time.Since(start)
	return stats, err
}
