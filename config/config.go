package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		Backend string `yaml:"backend"` // s3 or fs

		S3 struct {
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
			Region string `yaml:"region"`
		} `yaml:"s3"`

		FS struct {
			Root string `yaml:"root"`
		} `yaml:"fs"`
	} `yaml:"storage"`

	Table struct {
		Location string `yaml:"location"`
	} `yaml:"table"`

	Commit struct {
		MaxRetries             int     `yaml:"max_retries"`
		BaseRetryDelayMs       int     `yaml:"base_retry_delay_ms"`
		MaxRetryDelayMs        int     `yaml:"max_retry_delay_ms"`
		RetryJitter            float64 `yaml:"retry_jitter"`
		MetadataMaxAgeMs       int64   `yaml:"metadata_max_age_ms"`
		MetadataRetainVersions int     `yaml:"metadata_retain_versions"`
	} `yaml:"commit"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "fs"
	}
	if cfg.Storage.Backend != "s3" && cfg.Storage.Backend != "fs" {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.S3.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	if cfg.Table.Location == "" {
		return nil, fmt.Errorf("table location is required")
	}

	return &cfg, nil
}
