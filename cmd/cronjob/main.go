package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/jobs"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/notify"
	"vehicle-rental-backend/internal/repository/postgres"
	"vehicle-rental-backend/internal/scheduler"
	"vehicle-rental-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-unconfirmed-bookings', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Vehicle Rental Cronjob Runner...", "log_level", cfg.Log.Level)

	// Jobs run in their own process, so they need the shared database.
	if cfg.Storage.Type != "postgres" {
		log.Fatalf("Cronjob runner requires postgres storage, got %q", cfg.Storage.Type)
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	cancel()
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	store := postgres.NewStore(db)
	defer store.Close()
	logger.Info("Database connection established")

	sinks, closeSinks := notify.SinksFromConfig(context.Background(), cfg.Notifications)
	defer closeSinks()
	dispatcher := notify.NewDispatcher(sinks, 2, 256, cfg.Notifications.PublishTimeout())
	defer dispatcher.Close()

	bookingSvc := service.NewBookingService(store.BookingRepository, store.DriverRepository, store.VehicleRepository,
		nil, dispatcher, service.PolicyFromConfig(cfg.Booking))
	jobServices := &jobs.Services{
		Bookings:     bookingSvc,
		Verification: service.NewVerificationService(store.DriverRepository, bookingSvc),
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store.BookingRepository, store.DriverRepository, jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			return
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		return
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job and reports whether the name was known
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "expire-unconfirmed-bookings":
		jobRunner.ExpireUnconfirmedBookings()
	case "revoke-expired-documents":
		jobRunner.RevokeExpiredDocuments()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-unconfirmed-bookings\n")
		fmt.Printf("  - revoke-expired-documents\n")
		fmt.Printf("  - all\n")
		return false
	}
	return true
}
