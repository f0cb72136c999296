package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"selforder-system/internal/catalog"
	"selforder-system/internal/config"
	"selforder-system/internal/database"
	"selforder-system/internal/logger"
	"selforder-system/internal/messaging"
	"selforder-system/internal/services/kitchen"
	"selforder-system/internal/services/selforder"
)

func main() {
	var (
		mode     = flag.String("mode", "", "Service mode (api, scheduler, kitchen-subscriber)")
		port     = flag.Int("port", 0, "HTTP port (overrides config)")
		prefetch = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.HTTP.Port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "api":
		err = runAPI(ctx, cfg, log)
	case "scheduler":
		err = runScheduler(ctx, cfg, log)
	case "kitchen-subscriber":
		err = runKitchenSubscriber(ctx, cfg, log, *prefetch)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runAPI runs the self-order HTTP service with both sweeps attached
func runAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)
	store := selforder.NewPostgresStore(db)
	catalogRepo := catalog.NewRepository(db, log)
	fulfillment := kitchen.NewRepository(db)

	service := selforder.NewService(store, catalogRepo, catalogRepo, log, cfg.SessionWindow(), cfg.HTTP.BaseURL)
	handoff := selforder.NewHandoff(store, catalogRepo, fulfillment, publisher, log)
	payments := selforder.NewOrchestrator(store, catalogRepo, handoff, log, cfg.Session.AmountTolerance, cfg.PaymentWindow())
	scheduler := selforder.NewScheduler(store, log, cfg.ExpireSweepInterval(), cfg.CleanupSweepInterval(), cfg.Retention(), cfg.PaymentWindow())

	scheduler.Start(ctx)

	handler := selforder.NewHandler(service, payments, handoff, scheduler, db, log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.SetupRoutes(),
	}

	go func() {
		log.Info("service_started", fmt.Sprintf("Self-order API started on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runScheduler runs the sweeps standalone, for deployments where the API
// instances should stay free of background work
func runScheduler(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := selforder.NewPostgresStore(db)
	scheduler := selforder.NewScheduler(store, log, cfg.ExpireSweepInterval(), cfg.CleanupSweepInterval(), cfg.Retention(), cfg.PaymentWindow())
	scheduler.Start(ctx)

	<-ctx.Done()
	return nil
}

// runKitchenSubscriber consumes order lifecycle events
func runKitchenSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.FulfillmentQueue, "kitchen-subscriber", prefetch)
	subscriber := kitchen.NewSubscriber(kitchen.NewRepository(db), consumer, log)

	if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
