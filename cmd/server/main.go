package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	grpcapi "vehicle-rental-backend/internal/api/grpc"
	httpapi "vehicle-rental-backend/internal/api/http"
	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/notify"
	"vehicle-rental-backend/internal/repository"
	"vehicle-rental-backend/internal/repository/memory"
	"vehicle-rental-backend/internal/repository/postgres"
	"vehicle-rental-backend/internal/security"
	"vehicle-rental-backend/internal/service"
)

const healthInterval = 15 * time.Second

type repositories struct {
	bookings repository.BookingRepository
	drivers  repository.DriverRepository
	vehicles repository.VehicleRepository
	ping     grpcapi.Pinger
	close    func()
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Vehicle Rental Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http", cfg.GetHTTPAddress(), "grpc", cfg.GetGRPCAddress(), "storage", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer repos.close()

	sinks, closeSinks := notify.SinksFromConfig(ctx, cfg.Notifications)
	defer closeSinks()
	dispatcher := notify.NewDispatcher(sinks, 4, 256, cfg.Notifications.PublishTimeout())
	defer dispatcher.Close()

	// Card charges arrive through the payment webhook; no synchronous gateway is configured.
	bookingSvc := service.NewBookingService(repos.bookings, repos.drivers, repos.vehicles,
		nil, dispatcher, service.PolicyFromConfig(cfg.Booking))
	verificationSvc := service.NewVerificationService(repos.drivers, bookingSvc)

	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	httpServer := &http.Server{
		Addr:              cfg.GetHTTPAddress(),
		Handler:           httpapi.NewRouter(bookingSvc, verificationSvc, tokenManager, cfg.Server.WebhookSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := grpcapi.NewServer(healthServer)
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", "address", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcapi.WatchHealth(gctx, healthServer, repos.ping, healthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return
	}
	logger.Info("Server stopped. Goodbye!")
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Storage.Type == "memory" {
		vehicles := cfg.Storage.SeedVehicles()
		s := memory.NewSeededStore(vehicles)
		logger.Warn("Using in-memory storage; data is lost on restart", "vehicles", len(vehicles))
		if len(vehicles) == 0 {
			logger.Warn("No vehicles configured under storage.vehicles; bookings cannot be created")
		}
		return &repositories{
			bookings: s.BookingRepo,
			drivers:  s.DriverRepo,
			vehicles: s.VehicleRepo,
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := postgres.Open(openCtx, cfg.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")
	s := postgres.NewStore(db)
	return &repositories{
		bookings: s.BookingRepository,
		drivers:  s.DriverRepository,
		vehicles: s.VehicleRepository,
		ping:     s.Ping,
		close:    func() { s.Close() },
	}, nil
}
