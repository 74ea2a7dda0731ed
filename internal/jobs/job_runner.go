package jobs

import (
	"time"

	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository"
	"vehicle-rental-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	bookingRepo repository.BookingRepository
	driverRepo  repository.DriverRepository
	services    *Services
	config      *config.Config
	now         func() time.Time
}

// Services holds the service dependencies needed by jobs
type Services struct {
	Bookings     service.BookingService
	Verification service.VerificationService
}

type Option func(*JobRunner)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(jr *JobRunner) { jr.now = now }
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(bookingRepo repository.BookingRepository, driverRepo repository.DriverRepository, services *Services, cfg *config.Config, opts ...Option) *JobRunner {
	jr := &JobRunner{
		bookingRepo: bookingRepo,
		driverRepo:  driverRepo,
		services:    services,
		config:      cfg,
		now:         time.Now,
	}
	for _, o := range opts {
		o(jr)
	}
	return jr
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	log := logger.WithJob(jobName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
		}
	}()

	log.Info("Starting job")
	start := time.Now()
	jobFunc()
	log.Info("Job completed", "duration_ms", time.Since(start).Milliseconds())
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.RevokeExpiredDocuments()
	jr.ExpireUnconfirmedBookings()
}
