package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
	repomemory "github.com/tendant/receipt-vault/pkg/receiptvault/repo/memory"
	repopg "github.com/tendant/receipt-vault/pkg/receiptvault/repo/postgres"
	memorystorage "github.com/tendant/receipt-vault/pkg/receiptvault/storage/memory"
	s3storage "github.com/tendant/receipt-vault/pkg/receiptvault/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		DatabaseType:      "memory",
		DBSchema:          "receipt",
		VaultType:         "memory",
		RetentionPeriod:   receiptvault.DefaultRetentionPeriod,
		CredentialTTL:     receiptvault.DefaultCredentialTTL,
		ReconcileInterval: time.Minute,
	}
}

// ServerConfig represents server configuration for the receipt vault service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: receipt)

	// Vault store configuration
	VaultType string // "memory", "s3"
	S3        S3Config

	// Receipt policy
	RetentionPeriod   time.Duration
	CredentialTTL     time.Duration
	ReconcileInterval time.Duration

	// Hold authorization: actor ids granted the elevated-privilege
	// capability. Empty means allow-all (development only).
	ElevatedActors []string

	// JWTSecret enables bearer-token authentication on the hold and
	// retention routes when non-empty.
	JWTSecret string
}

// S3Config holds the vault backend settings when VaultType is "s3".
type S3Config struct {
	Region                 string
	Bucket                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	LockMode               string
	CreateBucketIfNotExist bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.VaultType != "memory" && c.VaultType != "s3" {
		return errors.New("vault_type must be 'memory' or 's3'")
	}

	if c.VaultType == "s3" && c.S3.Bucket == "" {
		return errors.New("s3 bucket is required when using the s3 vault")
	}

	if c.CredentialTTL > time.Hour {
		return errors.New("credential_ttl must be short-lived (at most one hour)")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration,
// returning the service plus the stores needed to run the reconciler.
func (c *ServerConfig) BuildService(metrics *receiptvault.Metrics) (receiptvault.Service, *receiptvault.Reconciler, error) {
	repo, err := c.buildRepository()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	vault, err := c.buildVaultStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build vault store: %w", err)
	}

	orphans, err := c.buildOrphanQueue()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build orphan queue: %w", err)
	}

	var authz receiptvault.Authorizer
	if len(c.ElevatedActors) > 0 {
		authz = receiptvault.NewStaticAuthorizer(c.ElevatedActors...)
	} else {
		authz = receiptvault.NewAllowAllAuthorizer()
	}

	svc, err := receiptvault.New(
		receiptvault.WithRepository(repo),
		receiptvault.WithVaultStore(vault),
		receiptvault.WithOrphanQueue(orphans),
		receiptvault.WithAuthorizer(authz),
		receiptvault.WithNotifier(receiptvault.NewLogNotifier()),
		receiptvault.WithMetrics(metrics),
		receiptvault.WithRetentionPeriod(c.RetentionPeriod),
		receiptvault.WithCredentialTTL(c.CredentialTTL),
	)
	if err != nil {
		return nil, nil, err
	}

	reconciler := receiptvault.NewReconciler(repo, vault, orphans, metrics)
	return svc, reconciler, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (receiptvault.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := c.pgPool()
		if err != nil {
			return nil, err
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildOrphanQueue() (receiptvault.OrphanQueue, error) {
	switch c.DatabaseType {
	case "memory":
		return receiptvault.NewMemoryOrphanQueue(), nil
	case "postgres":
		pool, err := c.pgPool()
		if err != nil {
			return nil, err
		}
		return repopg.NewOrphanQueueWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

var sharedPool *pgxpool.Pool

func (c *ServerConfig) pgPool() (*pgxpool.Pool, error) {
	if sharedPool != nil {
		return sharedPool, nil
	}
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	sharedPool = pool
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
// It fails if the schema (when provided) does not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildVaultStore creates a VaultStore based on the configuration
func (c *ServerConfig) buildVaultStore() (receiptvault.VaultStore, error) {
	switch c.VaultType {
	case "memory":
		return memorystorage.New(), nil
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			LockMode:               c.S3.LockMode,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", c.VaultType)
	}
}
