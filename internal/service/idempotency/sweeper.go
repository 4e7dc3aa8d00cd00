// Package idempotency чистит просроченные ключи Idempotency-Key для checkout.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
	"github.com/vladislavdragonenkov/caffe/internal/metrics"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
	// defaultMaxBatches ограничивает один проход, остаток уйдёт в следующий тик.
	defaultMaxBatches = 20
)

// SweepReport — итог одного прохода очистки.
type SweepReport struct {
	Deleted int
	Batches int
	// Truncated выставляется, если проход упёрся в лимит батчей.
	Truncated bool
}

type sweeperOptions struct {
	logger     *log.Entry
	metrics    *metrics.CleanupMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// Option настраивает Sweeper.
type Option func(*sweeperOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *sweeperOptions) { opts.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) Option {
	return func(opts *sweeperOptions) { opts.metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *sweeperOptions) { opts.interval = interval }
}

// WithBatchSize задаёт limit одного DeleteExpired.
func WithBatchSize(batchSize int) Option {
	return func(opts *sweeperOptions) { opts.batchSize = batchSize }
}

func WithMaxBatches(maxBatches int) Option {
	return func(opts *sweeperOptions) { opts.maxBatches = maxBatches }
}

func withClock(now func() time.Time) Option {
	return func(opts *sweeperOptions) { opts.now = now }
}

// Sweeper удаляет ключи идемпотентности с истёкшим TTL.
// Для redis не запускается: там ключи истекают сами.
type Sweeper struct {
	repo domain.IdempotencyRepository
	opts sweeperOptions
}

// NewSweeper создаёт Sweeper поверх хранилища ключей.
func NewSweeper(repo domain.IdempotencyRepository, options ...Option) *Sweeper {
	opts := sweeperOptions{
		interval:   defaultSweepInterval,
		batchSize:  defaultSweepBatch,
		maxBatches: defaultMaxBatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.logger == nil {
		opts.logger = log.WithField("component", "idempotency-sweeper")
	}
	if opts.interval <= 0 {
		opts.interval = defaultSweepInterval
	}
	if opts.batchSize <= 0 {
		opts.batchSize = defaultSweepBatch
	}
	if opts.maxBatches <= 0 {
		opts.maxBatches = defaultMaxBatches
	}
	return &Sweeper{repo: repo, opts: opts}
}

// Run делает проход сразу и затем каждые interval, пока ctx не отменён.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.opts.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.opts.metrics.RecordRun(false, report.Deleted)
		s.opts.logger.WithError(err).WithField("deleted", report.Deleted).Warn("idempotency sweep failed")
		return
	}

	s.opts.metrics.RecordRun(true, report.Deleted)
	if report.Deleted == 0 {
		return
	}
	entry := s.opts.logger.WithFields(log.Fields{
		"deleted": report.Deleted,
		"batches": report.Batches,
	})
	if report.Truncated {
		entry.Warn("idempotency sweep hit batch limit, backlog remains")
		return
	}
	entry.Info("idempotency sweep completed")
}

// Sweep удаляет ключи с TTL раньше текущего момента, пока батчи приходят полными.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	before := s.opts.now()

	for report.Batches < s.opts.maxBatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		deleted, err := s.repo.DeleteExpired(ctx, before, s.opts.batchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += deleted
		s.opts.metrics.AddDeleted(deleted)

		if deleted < s.opts.batchSize {
			return report, nil
		}
	}

	report.Truncated = true
	return report, nil
}
