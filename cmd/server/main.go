package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
	"github.com/tendant/receipt-vault/pkg/receiptvault/api"
	"github.com/tendant/receipt-vault/pkg/receiptvault/config"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	Database string `env:"RECEIPT_DATABASE" env-default:"memory"` // memory, postgres
	Vault    string `env:"RECEIPT_VAULT" env-default:"memory"`    // memory, s3
	DB       DbConfig
	S3       S3Config

	RetentionPeriod   time.Duration `env:"RECEIPT_RETENTION_PERIOD" env-default:"61320h"`
	CredentialTTL     time.Duration `env:"RECEIPT_CREDENTIAL_TTL" env-default:"5m"`
	ReconcileInterval time.Duration `env:"RECEIPT_RECONCILE_INTERVAL" env-default:"1m"`

	ElevatedActors string `env:"RECEIPT_ELEVATED_ACTORS" env-default:""`
	JWTSecret      string `env:"RECEIPT_JWT_SECRET" env-default:""`
}

type DbConfig struct {
	Port     uint16 `env:"RECEIPT_PG_PORT" env-default:"5432"`
	Host     string `env:"RECEIPT_PG_HOST" env-default:"localhost"`
	Name     string `env:"RECEIPT_PG_NAME" env-default:"receipt_db"`
	User     string `env:"RECEIPT_PG_USER" env-default:"receipt"`
	Password string `env:"RECEIPT_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"RECEIPT_PG_SCHEMA" env-default:"receipt"`
}

type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	BucketName      string `env:"AWS_S3_BUCKET" env-default:"receipt-vault"`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	LockMode        string `env:"AWS_S3_LOCK_MODE" env-default:"COMPLIANCE"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

func (c DbConfig) toDatabaseUrl() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	return u.String()
}

func buildOptions(cfg Config) []config.Option {
	opts := []config.Option{
		config.WithPort(cfg.Port),
		config.WithEnvironment(cfg.Environment),
		config.WithRetentionPeriod(cfg.RetentionPeriod),
		config.WithCredentialTTL(cfg.CredentialTTL),
		config.WithReconcileInterval(cfg.ReconcileInterval),
	}

	if cfg.Database == "postgres" {
		opts = append(opts,
			config.WithDatabase("postgres", cfg.DB.toDatabaseUrl()),
			config.WithDatabaseSchema(cfg.DB.Schema),
		)
	}

	if cfg.Vault == "s3" {
		opts = append(opts,
			config.WithS3Vault(cfg.S3.BucketName, cfg.S3.Region),
			config.WithS3Credentials(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey),
			config.WithS3LockMode(cfg.S3.LockMode),
		)
		if cfg.S3.Endpoint != "" {
			opts = append(opts, config.WithS3Endpoint(cfg.S3.Endpoint, cfg.S3.UsePathStyle))
		}
		if cfg.S3.CreateBucket {
			opts = append(opts, config.WithS3CreateBucket())
		}
	}

	if cfg.ElevatedActors != "" {
		actors := strings.Split(cfg.ElevatedActors, ",")
		for i := range actors {
			actors[i] = strings.TrimSpace(actors[i])
		}
		opts = append(opts, config.WithElevatedActors(actors...))
	}

	return opts
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(buildOptions(cfg)...)
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}
	serverConfig.JWTSecret = cfg.JWTSecret

	metrics := receiptvault.NewMetrics(prometheus.DefaultRegisterer)

	svc, reconciler, err := serverConfig.BuildService(metrics)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	var tokenAuth *jwtauth.JWTAuth
	if serverConfig.JWTSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(serverConfig.JWTSecret), nil)
	} else if serverConfig.Environment != "development" {
		slog.Warn("Hold routes are unauthenticated; set RECEIPT_JWT_SECRET")
	}

	receiptHandler := api.NewReceiptHandler(svc, tokenAuth)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/api/v1/receipts", receiptHandler.Routes())
	r.Mount("/api/v1/subjects", receiptHandler.SubjectRoutes())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "environment": "%s"}`, serverConfig.Environment)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	// Background orphan reconciliation
	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	go reconciler.Run(reconcileCtx, serverConfig.ReconcileInterval)

	go func() {
		slog.Info("Receipt vault server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"vault", serverConfig.VaultType)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	stopReconciler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}
