package jobs

import (
	"context"
	"time"

	"nauvus-backend/internal/config"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/service"
)

const (
	// Paid invoices younger than this may still have a webhook delivery in
	// flight. The webhook always answers 200, so the gateway never redelivers a
	// failed event and this job is the only recovery path after the grace.
	stalledPayoutGrace = 30 * time.Minute
	reconcileBatchSize = 100
	jobTimeout         = 10 * time.Minute
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	now      func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Reconciliation service.ReconciliationService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		now:      time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery, a timeout and
// run metrics.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	start := time.Now()
	result := metrics.ResultError
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
		metrics.ObserveJobRun(jobName, result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return
	}
	result = metrics.ResultSuccess
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

// RunAll runs every reconciliation job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ReconcileStalledPayouts()
	jr.MarkLateLoans()
	jr.SyncUnpaidInvoices()
}
