package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/bootstrap"
	settlementconfig "marketplace-settlement/internal/config"
	"marketplace-settlement/internal/notify"
	"marketplace-settlement/internal/observability/metrics"
	reportinginterfaces "marketplace-settlement/internal/reporting/interfaces"
	"marketplace-settlement/internal/settlement/adapters/payments"
	settlementapp "marketplace-settlement/internal/settlement/application"
	settlementinterfaces "marketplace-settlement/internal/settlement/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	engineCfg, err := settlementconfig.Load(cfg.ConfigPath)
	if err != nil {
		logger.Fatalf("settlement config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	engine, err := bootstrap.NewEngine(db, engineCfg, logger)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}

	var channels []notify.Channel
	if engineCfg.Notify.WebhookURL != "" {
		opts := []notify.WebhookOption{}
		if engineCfg.Notify.Token != "" {
			opts = append(opts, notify.WithHeader("Authorization", "Bearer "+engineCfg.Notify.Token))
		}
		channel, err := notify.NewWebhookChannel(engineCfg.Notify.WebhookURL, opts...)
		if err != nil {
			logger.Fatalf("notify webhook error: %v", err)
		}
		channels = append(channels, channel)
	} else {
		channels = append(channels, notify.LogChannel{Logf: logger.Printf})
	}
	notifier, err := notify.NewNotifier(notify.NewMultiChannel(channels...),
		notify.WithDedupeWindow(engineCfg.Notify.DedupeWindow),
		notify.WithLogger(logger))
	if err != nil {
		logger.Fatalf("notifier error: %v", err)
	}
	notifier.Subscribe(engine.Bus, engine.Processed)

	settlementHandler, err := settlementinterfaces.NewHandler(engine.Coordinator, auditRepo)
	if err != nil {
		logger.Fatalf("settlement handler error: %v", err)
	}
	reportHandler, err := reportinginterfaces.NewHandler(engine.Revenue, auditRepo)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	var verifier settlementinterfaces.PaymentVerifier
	if engineCfg.Payments.AccessToken != "" || engineCfg.Payments.MockMode {
		mp, err := payments.NewMercadoPagoVerifier(engineCfg.Payments.AccessToken, engineCfg.Payments.MockMode, logger)
		if err != nil {
			logger.Fatalf("payment verifier error: %v", err)
		}
		verifier = mp
	}
	webhookHandler, err := settlementinterfaces.NewPaymentWebhookHandler(engine.Coordinator, verifier, logger)
	if err != nil {
		logger.Fatalf("payment webhook error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go settlementapp.NewSweeper(engine.Coordinator, engineCfg.Inventory.SweepInterval, logger).Start(ctx)
	go engine.Dispatcher.Run(ctx, engineCfg.Outbox.DispatchInterval, engineCfg.Outbox.Batch)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/webhooks/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	webhookAuth := auth.NewWebhookAuthMiddleware([]byte(cfg.WebhookSecret), time.Duration(cfg.WebhookSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/checkout", settlementHandler)
	mux.Handle("/api/v1/orders/", settlementHandler)
	mux.Handle("/api/v1/suborders/", settlementHandler)
	mux.Handle("/api/v1/milestones/", settlementHandler)
	mux.Handle("/api/v1/reports/vendors/", reportHandler)
	mux.Handle("/webhooks/payments", webhookAuth.Wrap(webhookHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
	logger.Printf("http server stopped")
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	ConfigPath         string
	JWTSecret          string
	WebhookSecret      string
	WebhookSkewSeconds int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		ConfigPath:         getenvDefault("SETTLEMENT_CONFIG", ""),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		WebhookSecret:      getenvDefault("PAYMENT_WEBHOOK_SECRET", ""),
		WebhookSkewSeconds: getenvIntDefault("PAYMENT_WEBHOOK_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		log.Fatal("PAYMENT_WEBHOOK_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
