package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"golang.org/x/time/rate"
)

// minLimiterBurst covers the largest chunk storage charges in one WaitN call.
const minLimiterBurst = 64 << 10

type CompactionConfig struct {
	Compacter               storage.Compacter
	Interval                time.Duration
	MinDeadRecords          int
	RateLimitBytesPerSecond int
	TempPath                string
	Logger                  *slog.Logger
}

// CompactionScheduler runs at most one compaction at a time, on a ticker or
// on demand.
type CompactionScheduler struct {
	compacter      storage.Compacter
	interval       time.Duration
	minDeadRecords int
	tempPath       string
	limiter        *rate.Limiter
	logger         *slog.Logger

	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	sem     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewCompactionScheduler(cfg CompactionConfig) *CompactionScheduler {
	var limiter *rate.Limiter
	if cfg.RateLimitBytesPerSecond > 0 {
		burst := cfg.RateLimitBytesPerSecond
		if burst < minLimiterBurst {
			burst = minLimiterBurst
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitBytesPerSecond), burst)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CompactionScheduler{
		compacter:      cfg.Compacter,
		interval:       cfg.Interval,
		minDeadRecords: cfg.MinDeadRecords,
		tempPath:       cfg.TempPath,
		limiter:        limiter,
		logger:         logger.With("component", "compaction"),
		trigger:        make(chan struct{}, 1),
		stop:           make(chan struct{}),
		sem:            make(chan struct{}, 1),
	}
}

func (s *CompactionScheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

func (s *CompactionScheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *CompactionScheduler) Trigger() {
	if s == nil {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *CompactionScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.trigger:
			s.launch(ctx)
		case <-tick:
			s.launch(ctx)
		}
	}
}

func (s *CompactionScheduler) launch(ctx context.Context) {
	select {
	case s.sem <- struct{}{}:
	default:
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		opts := storage.CompactOptions{
			TempPath:       s.tempPath,
			Context:        ctx,
			MinDeadRecords: s.minDeadRecords,
		}
		if s.limiter != nil {
			opts.RateLimiter = s.limiter
		}
		stats, err := s.compacter.Compact(opts)
		if err != nil {
			s.logger.Error("compaction failed", "error", err)
			return
		}
		if stats.Skipped {
			s.logger.Debug("compaction skipped", "bytes", stats.BytesBefore)
			return
		}
		s.logger.Info("compaction finished",
			"entries", stats.EntriesWritten,
			"bytes_before", stats.BytesBefore,
			"bytes_after", stats.BytesAfter,
		)
	}()
}
