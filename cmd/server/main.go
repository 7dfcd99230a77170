package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpapi "nauvus-backend/internal/api/http"
	"nauvus-backend/internal/config"
	"nauvus-backend/internal/credit"
	"nauvus-backend/internal/gateway"
	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
	"nauvus-backend/internal/repository/postgres"
	"nauvus-backend/internal/security"
	"nauvus-backend/internal/service"
	"nauvus-backend/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Secrets may come from a local .env during development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Nauvus settlement server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Database configuration", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)

	db, err := postgres.Open(cfg.Database.Driver, cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	store := postgres.NewStore(db)
	metrics.Init(db)

	ctx := context.Background()

	files, err := storage.New(ctx, storage.Config{
		Type:      cfg.Storage.Type,
		MockDir:   cfg.Storage.UploadDir,
		BaseURL:   cfg.Storage.BaseURL,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	creditClient, closeCache := newCreditClient(cfg)
	defer closeCache()

	gw := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		ProductID: cfg.Stripe.ProductID,
		Currency:  cfg.Stripe.Currency,
		Timeout:   cfg.StripeTimeout(),
	})

	notifier, err := service.NewPushNotifier(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to initialize push notifications: %v", err)
	}

	emailSvc := service.NewEmailService(cfg.SendGrid.APIKey, cfg.Invoice.FromEmail, cfg.Invoice.FromName)
	alerter := service.NewAlerter(emailSvc, cfg.Invoice.OpsEmail)
	states := service.NewLoadStateMachine()
	creditSvc := service.NewCreditProvider(creditClient, gw, store, cfg.Oatfi.StripeAccount)
	documents := service.NewInvoiceDocumentService(store, files, emailSvc)
	payouts := service.NewPayoutDistributor(store, gw, creditSvc, states, alerter, notifier, cfg.Stripe.FeeAccount)

	svcs := &httpapi.Services{
		Events: service.NewPaymentEventProcessor(
			gateway.NewStripeVerifier(cfg.Stripe.WebhookSecret),
			store, gw, payouts, alerter, cfg.ClaimStaleAfter(),
		),
		Settlements:    service.NewSettlementBuilder(store, gw, creditSvc, documents, states, cfg.HandlingFeePercent(), cfg.Invoice.DueDays),
		Terms:          service.NewPaymentTermsService(store, creditSvc, states),
		Balances:       service.NewBalanceCalculator(store, gw),
		Exports:        service.NewExportService(store),
		Reconciliation: service.NewReconciliationService(store, payouts, creditSvc),
		Registration:   service.NewRegistrationService(store, creditSvc),
		Documents:      documents,
		Loads:          store.Loads,
	}

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	router := httpapi.NewRouter(svcs, tokens)
	if cfg.Storage.Type == "mock" {
		httpapi.RegisterMockStorageRoutes(router, files)
	}

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// newCreditClient wraps the credit provider client with the Redis preapproval
// cache when an address is configured.
func newCreditClient(cfg *config.Config) (credit.Client, func()) {
	client, err := credit.NewOatfiClient(credit.OatfiConfig{
		BaseURL:   cfg.Oatfi.URL,
		APIKey:    cfg.Oatfi.APIKey,
		ProductID: cfg.Oatfi.ProductID,
		Timeout:   cfg.OatfiTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize credit client: %v", err)
	}
	if cfg.Redis.Addr == "" {
		return client, func() {}
	}

	cache, err := credit.NewRedisCache(credit.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Warn("Redis unavailable, preapprovals will not be cached", "addr", cfg.Redis.Addr, "error", err)
		return client, func() {}
	}
	ttl := time.Duration(cfg.Oatfi.CacheTTLSec) * time.Second
	return credit.WithPreapprovalCache(client, cache, ttl), func() { cache.Close() }
}
