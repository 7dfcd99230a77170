package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"nauvus-backend/internal/config"
	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/jobs"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository/postgres"
	"nauvus-backend/internal/scheduler"
	"nauvus-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'reconcile-stalled-payouts', 'all')")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Nauvus reconciliation cronjob...", "log_level", cfg.Log.Level)

	db, err := postgres.Open(cfg.Database.Driver, cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	store := postgres.NewStore(db)
	metrics.Init(db)

	creditClient, err := credit.NewOatfiClient(credit.OatfiConfig{
		BaseURL:   cfg.Oatfi.URL,
		APIKey:    cfg.Oatfi.APIKey,
		ProductID: cfg.Oatfi.ProductID,
		Timeout:   cfg.OatfiTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize credit client: %v", err)
	}
	gw := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		ProductID: cfg.Stripe.ProductID,
		Currency:  cfg.Stripe.Currency,
		Timeout:   cfg.StripeTimeout(),
	})
	notifier, err := service.NewPushNotifier(context.Background(), cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to initialize push notifications: %v", err)
	}

	emailSvc := service.NewEmailService(cfg.SendGrid.APIKey, cfg.Invoice.FromEmail, cfg.Invoice.FromName)
	alerter := service.NewAlerter(emailSvc, cfg.Invoice.OpsEmail)
	creditSvc := service.NewCreditProvider(creditClient, gw, store, cfg.Oatfi.StripeAccount)
	payouts := service.NewPayoutDistributor(store, gw, creditSvc, service.NewLoadStateMachine(), alerter, notifier, cfg.Stripe.FeeAccount)

	jobRunner := jobs.NewJobRunner(&jobs.Services{
		Reconciliation: service.NewReconciliationService(store, payouts, creditSvc),
	}, cfg)

	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to register jobs: %v", err)
	}
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "reconcile-stalled-payouts":
		jobRunner.ReconcileStalledPayouts()
	case "mark-late-loans":
		jobRunner.MarkLateLoans()
	case "sync-unpaid-invoices":
		jobRunner.SyncUnpaidInvoices()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - reconcile-stalled-payouts\n")
		fmt.Printf("  - mark-late-loans\n")
		fmt.Printf("  - sync-unpaid-invoices\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
