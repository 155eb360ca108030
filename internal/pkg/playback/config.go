package playback

import (
	"errors"

	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

// Config holds the object storage settings for media assets.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
	}
	if cfg.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required for playback URLs")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for playback URLs")
	}
	return cfg, nil
}
