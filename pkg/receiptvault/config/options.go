package config

import (
	"fmt"
	"time"
)

// WithPort sets the HTTP listen port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment (development, production, testing).
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase sets the metadata database type and connection string.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType == "" {
			return fmt.Errorf("database type cannot be empty")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema used for receipt tables.
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryVault selects the in-memory vault store.
func WithMemoryVault() Option {
	return func(c *ServerConfig) error {
		c.VaultType = "memory"
		return nil
	}
}

// WithS3Vault selects the S3 vault store with object lock enabled.
func WithS3Vault(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		c.VaultType = "s3"
		c.S3.Bucket = bucket
		c.S3.Region = region
		return nil
	}
}

// WithS3Credentials sets static credentials for the S3 vault store.
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint points the S3 vault store at a custom endpoint (MinIO, localstack).
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithS3CreateBucket creates the bucket (with object lock enabled) at startup
// when it does not exist yet.
func WithS3CreateBucket() Option {
	return func(c *ServerConfig) error {
		c.S3.CreateBucketIfNotExist = true
		return nil
	}
}

// WithS3LockMode overrides the object lock mode (COMPLIANCE by default,
// GOVERNANCE is useful for test buckets that must be cleanable).
func WithS3LockMode(mode string) Option {
	return func(c *ServerConfig) error {
		if mode != "COMPLIANCE" && mode != "GOVERNANCE" {
			return fmt.Errorf("lock mode must be COMPLIANCE or GOVERNANCE, got %q", mode)
		}
		c.S3.LockMode = mode
		return nil
	}
}

// WithRetentionPeriod sets the retain-until horizon applied to new receipts.
func WithRetentionPeriod(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("retention period must be positive")
		}
		c.RetentionPeriod = d
		return nil
	}
}

// WithCredentialTTL sets the lifetime of presigned download credentials.
func WithCredentialTTL(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("credential TTL must be positive")
		}
		c.CredentialTTL = d
		return nil
	}
}

// WithReconcileInterval sets how often the orphan sweep runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("reconcile interval must be positive")
		}
		c.ReconcileInterval = d
		return nil
	}
}

// WithElevatedActors grants the listed actor ids hold-management privilege.
func WithElevatedActors(actorIDs ...string) Option {
	return func(c *ServerConfig) error {
		c.ElevatedActors = append([]string(nil), actorIDs...)
		return nil
	}
}
