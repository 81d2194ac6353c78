// Package service assembles the matching engine: store, cache, event bus,
// the domain engines and the scheduled loops that keep them learning.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/lock"
	"github.com/okian/matchloop/internal/adapters/mq/queue"
	"github.com/okian/matchloop/internal/adapters/mq/worker"
	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/config"
	"github.com/okian/matchloop/internal/domain/dedupe"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/domain/market"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/optimizer"
	"github.com/okian/matchloop/internal/domain/patterns"
	"github.com/okian/matchloop/internal/domain/performance"
	"github.com/okian/matchloop/internal/domain/recommend"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/internal/scheduler"
	"github.com/okian/matchloop/pkg/logger"
)

// Scheduled task names.
const (
	TaskLearning    = "learning"
	TaskPerformance = "performance"
	TaskOptimizer   = "optimizer"
	TaskMarket      = "market"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	recentEventCapacity    = 256
	redisKeyPrefix         = "matchloop:"
)

// Service owns every engine component and the infrastructure under them.
type Service struct {
	cfg             *config.Config
	logger          logger.Logger
	clock           scheduler.Clock
	shutdownTimeout time.Duration

	store     repository.Store
	ownsStore bool
	cache     cache.Cache
	ownsCache bool
	locker    lock.Locker
	redis     redis.UniversalClient
	deduper   dedupe.Deduper

	queue      *queue.InMemoryQueue
	dispatcher *worker.Dispatcher
	pool       *worker.Pool
	events     *eventLog

	board       *repository.Leaderboard
	scorer      *scoring.FactorScorer
	learner     *learning.Learner
	analyzer    *patterns.Analyzer
	forecaster  *forecast.Forecaster
	market      *market.Intelligence
	performance *performance.Scorer
	optimizer   *optimizer.Optimizer
	recommender *recommend.Recommender
	loop        *scheduler.Loop

	lastLearning atomic.Pointer[learning.Report]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New builds a Service from cfg. Components not injected through options
// are constructed from the configured drivers.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:             cfg,
		clock:           scheduler.RealClock{},
		shutdownTimeout: defaultShutdownTimeout,
		ownsStore:       true,
		ownsCache:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if err := s.buildInfra(ctx); err != nil {
		_ = s.closeInfra()
		return nil, err
	}
	s.buildEngines()
	if err := s.buildSchedule(); err != nil {
		_ = s.closeInfra()
		return nil, err
	}
	return s, nil
}

func (s *Service) buildInfra(ctx context.Context) error {
	cfg := s.cfg
	if cfg.CacheDriver == config.DriverRedis && (s.cache == nil || s.locker == nil) {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		s.redis = client
	}

	if s.store == nil {
		switch cfg.StoreDriver {
		case config.DriverPostgres:
			pg, err := repository.OpenPostgres(ctx, cfg.PostgresDSN, repository.WithLogger(s.logger.Named("store")))
			if err != nil {
				return err
			}
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			s.store = pg
		default:
			s.store = repository.NewMemoryStore(
				repository.WithNow(s.clock.Now),
				repository.WithLogger(s.logger.Named("store")))
		}
	}

	if s.cache == nil {
		if s.redis != nil {
			s.cache = cache.NewRedis(s.redis, cache.WithLogger(s.logger.Named("cache")))
		} else {
			s.cache = cache.NewLocal(
				cache.WithSize(cfg.CacheSize),
				cache.WithNow(s.clock.Now),
				cache.WithLogger(s.logger.Named("cache")))
		}
	}
	if s.locker == nil {
		if s.redis != nil {
			s.locker = lock.NewRedis(s.redis, redisKeyPrefix)
		} else {
			s.locker = lock.NewLocal()
		}
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.EventQueueSize), queue.WithNow(s.clock.Now))
	s.events = newEventLog(recentEventCapacity)
	s.dispatcher = worker.NewDispatcher()
	s.registerHandlers()
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s.dispatcher, worker.WithLogger(s.logger.Named("worker")))
	return nil
}

func (s *Service) buildEngines() {
	cfg := s.cfg
	now := s.clock.Now

	tunables := learning.DefaultTunables()
	tunables.LearningRate = cfg.LearningRate
	tunables.Stability = cfg.StabilityFactor
	tunables.MaxChange = cfg.MaxWeightChange
	tunables.Conservatism = cfg.ConservatismFactor
	tunables.SuccessRateThreshold = cfg.SuccessRateThreshold
	tunables.MinSample = cfg.LearningMinSample
	tunables.Window = days(cfg.LearningWindowDays)

	s.board = repository.NewLeaderboard()
	s.scorer = scoring.NewFactorScorer()
	s.learner = learning.New(s.store,
		learning.WithTunables(tunables),
		learning.WithCache(s.cache),
		learning.WithPublisher(s.queue),
		learning.WithLocker(s.locker, cfg.LockTTL),
		learning.WithNow(now),
		learning.WithLogger(s.logger.Named("learning")))
	s.market = market.New(s.store,
		market.WithNow(now),
		market.WithLogger(s.logger.Named("market")))
	s.analyzer = patterns.New(s.store,
		patterns.WithCache(s.cache, cfg.PatternCacheTTL),
		patterns.WithNow(now),
		patterns.WithLogger(s.logger.Named("patterns")))
	s.forecaster = forecast.New(s.store,
		forecast.WithTrendSource(s.market),
		forecast.WithCache(s.cache, cfg.ForecastCacheTTL),
		forecast.WithNow(now),
		forecast.WithLogger(s.logger.Named("forecast")))
	s.performance = performance.New(s.store,
		performance.WithBoard(s.board),
		performance.WithCache(s.cache, cfg.PerformanceCacheTTL),
		performance.WithPublisher(s.queue),
		performance.WithActiveDays(cfg.PerformanceActiveDays),
		performance.WithConcurrency(cfg.PerformanceConcurrency),
		performance.WithNow(now),
		performance.WithLogger(s.logger.Named("performance")))
	s.optimizer = optimizer.New(s.store, s.analyzer, s.forecaster,
		optimizer.WithPublisher(s.queue),
		optimizer.WithCache(s.cache, cfg.OptimizeCacheTTL),
		optimizer.WithCandidateWindow(cfg.OptimizerMinProbability, cfg.OptimizerMaxProbability, days(cfg.OptimizerRecentDays)),
		optimizer.WithNow(now),
		optimizer.WithLogger(s.logger.Named("optimizer")))
	s.recommender = recommend.New(s.store, s.scorer,
		recommend.WithDemand(s.market),
		recommend.WithCache(s.cache, cfg.RecommendCacheTTL),
		recommend.WithNow(now),
		recommend.WithLogger(s.logger.Named("recommend")))
}

func (s *Service) buildSchedule() error {
	s.loop = scheduler.NewLoop(scheduler.WithClock(s.clock), scheduler.WithLogger(s.logger.Named("scheduler")))
	tasks := []scheduler.Task{
		{Name: TaskLearning, Interval: s.cfg.LearningInterval, Run: func(ctx context.Context) error {
			_, err := s.RunLearningCycle(ctx, false)
			return err
		}},
		{Name: TaskPerformance, Interval: s.cfg.PerformanceInterval, Run: func(ctx context.Context) error {
			_, err := s.performance.Batch(ctx)
			return err
		}},
		{Name: TaskOptimizer, Interval: s.cfg.OptimizerInterval, Run: func(ctx context.Context) error {
			_, err := s.optimizer.Batch(ctx, s.cfg.AutoExecute)
			return err
		}},
		{Name: TaskMarket, Interval: s.cfg.MarketInterval, Run: func(ctx context.Context) error {
			_, err := s.market.Refresh(ctx)
			return err
		}},
	}
	for _, t := range tasks {
		if err := s.loop.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the event workers, primes market signals and, when
// enabled, the scheduled loops. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	if _, err := s.market.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "initial market refresh failed", logger.Error(err))
	}
	if s.cfg.SchedulerEnabled {
		s.loop.Start(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "matching engine started",
		logger.String("store", s.cfg.StoreDriver),
		logger.String("cache", s.cfg.CacheDriver),
		logger.Int("workers", s.pool.Size()),
		logger.Bool("scheduler", s.cfg.SchedulerEnabled))
	return nil
}

// Stop halts the loops, drains the event bus and releases owned
// infrastructure. It is safe to call on a service that never started.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		s.loop.Stop()
		shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		if err := s.pool.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		s.cancel()
		s.started = false
	} else {
		_ = s.queue.Close()
	}
	errs = append(errs, s.closeInfra())
	s.logger.Info(ctx, "matching engine stopped")
	return errors.Join(errs...)
}

func (s *Service) closeInfra() error {
	var errs []error
	if s.ownsCache && s.cache != nil {
		errs = append(errs, s.cache.Close())
		s.cache = nil
	}
	if s.ownsStore && s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	return errors.Join(errs...)
}

// Publish puts e on the event bus.
func (s *Service) Publish(ctx context.Context, e model.Event) {
	s.queue.Publish(ctx, e)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
