package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // RELAY_DATABASE_URL (required)
	HTTPAddr    string // RELAY_HTTP_ADDR (default ":8080")
	NATSURL     string // RELAY_NATS_URL (optional, empty = no mirroring)

	Retention     time.Duration // RELAY_RETENTION (default 12h)
	SweepInterval time.Duration // RELAY_SWEEP_INTERVAL (default 10m; 0 = disabled)

	// Backup settings
	BackupInterval   time.Duration // RELAY_BACKUP_INTERVAL (default 15m)
	BackupS3Bucket   string        // RELAY_BACKUP_S3_BUCKET (enables S3 backup when set)
	BackupS3Endpoint string        // RELAY_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string        // RELAY_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string        // RELAY_BACKUP_S3_KEY (default "relay/messages.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("RELAY_DATABASE_URL"),
		HTTPAddr:         envOrDefault("RELAY_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("RELAY_NATS_URL"),
		BackupS3Bucket:   os.Getenv("RELAY_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("RELAY_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("RELAY_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Key:      envOrDefault("RELAY_BACKUP_S3_KEY", "relay/messages.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("RELAY_DATABASE_URL is required")
	}

	var err error
	if c.Retention, err = envDuration("RELAY_RETENTION", "12h"); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = envDuration("RELAY_SWEEP_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if c.BackupInterval, err = envDuration("RELAY_BACKUP_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
