package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.VaultType)
	assert.Equal(t, receiptvault.DefaultRetentionPeriod, cfg.RetentionPeriod)
	assert.Equal(t, receiptvault.DefaultCredentialTTL, cfg.CredentialTTL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "postgres requires url",
			opts: []Option{WithDatabase("postgres", "")},
		},
		{
			name: "unknown database type",
			opts: []Option{WithDatabase("sqlite", "file.db")},
		},
		{
			name: "s3 requires bucket",
			opts: []Option{WithS3Vault("x", "us-east-1"), func(c *ServerConfig) error {
				c.S3.Bucket = ""
				return nil
			}},
		},
		{
			name: "credential ttl must stay short-lived",
			opts: []Option{WithCredentialTTL(2 * time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestLoadProgrammaticOptions(t *testing.T) {
	cfg, err := Load(
		WithPort("9090"),
		WithEnvironment("testing"),
		WithS3Vault("receipts", "us-west-2"),
		WithS3Endpoint("http://localhost:9000", true),
		WithS3LockMode("GOVERNANCE"),
		WithRetentionPeriod(24*time.Hour),
		WithCredentialTTL(time.Minute),
		WithElevatedActors("legal-ops", "compliance"),
	)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3", cfg.VaultType)
	assert.Equal(t, "receipts", cfg.S3.Bucket)
	assert.Equal(t, "us-west-2", cfg.S3.Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UsePathStyle)
	assert.Equal(t, "GOVERNANCE", cfg.S3.LockMode)
	assert.Equal(t, []string{"legal-ops", "compliance"}, cfg.ElevatedActors)
}

func TestWithS3LockModeRejectsUnknownMode(t *testing.T) {
	_, err := Load(WithS3Vault("receipts", "us-east-1"), WithS3LockMode("FOREVER"))
	assert.Error(t, err)
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	svc, reconciler, err := cfg.BuildService(nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.NotNil(t, reconciler)
}
