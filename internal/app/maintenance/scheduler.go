package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/services"
	"github.com/dcrane/planwise/pkg/logger"
)

const (
	defaultScanSpec  = "@every 15m"
	defaultSweepSpec = "@daily"
)

// Scheduler coordinates background maintenance: scanning tasks for due-date
// notifications and sweeping stale entries out of the image cache.
type Scheduler struct {
	scanner *services.DueScanner
	cache   imagecache.Store
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	enabled bool

	maxAgeDays    int
	scanSchedule  string
	sweepSchedule string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAgeDays adjusts how long cache entries are retained before sweeping.
func WithMaxAgeDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.maxAgeDays = days
		}
	}
}

// WithScanSchedule overrides the cron specification for due-date scanning.
func WithScanSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.scanSchedule = spec
		}
	}
}

// WithSweepSchedule overrides the cron specification for cache sweeping.
func WithSweepSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler with sensible defaults. Any nil
// dependency results in the corresponding job being skipped.
func NewScheduler(scanner *services.DueScanner, cache imagecache.Store, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		scanner:       scanner,
		cache:         cache,
		now:           time.Now,
		maxAgeDays:    imagecache.DefaultMaxAgeDays,
		scanSchedule:  defaultScanSpec,
		sweepSchedule: defaultSweepSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	if scheduler.cron == nil {
		scheduler.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	scheduler.enabled = scheduler.scanner != nil || scheduler.cache != nil

	return scheduler
}

// Start registers maintenance jobs with the cron scheduler and launches it if
// at least one job is enabled.
func (s *Scheduler) Start() error {
	if !s.enabled {
		return nil
	}

	if s.scanner != nil {
		if _, err := s.cron.AddFunc(s.scanSchedule, func() {
			ctx := context.Background()
			if _, err := s.scanner.Scan(ctx); err != nil {
				s.log.Warn("due-date scan failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.cache != nil && s.maxAgeDays > 0 {
		if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
			if removed := s.cache.Sweep(s.maxAgeDays); removed > 0 {
				s.log.Info("image cache swept", zap.Int("removed", removed))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.scanner != nil {
		if _, err := s.scanner.Scan(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.cache != nil && s.maxAgeDays > 0 {
		if removed := s.cache.Sweep(s.maxAgeDays); removed > 0 {
			s.log.Info("image cache swept", zap.Int("removed", removed))
		}
	}

	return errs
}
