package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/raster-pipeline/internal/storage"
)

// Remote holds the credentials of one blob storage deployment.
type Remote struct {
	Account  string
	SAS      string
	Key      string
	Endpoint string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	StorageLocalDir string
	Remotes         map[storage.Mode]Remote

	// Artifact notifications are disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	FetchTimeout time.Duration
	FetchRate    float64 // requests per second, 0 for unlimited
	FetchToken   string

	ProductsFile string
	Catalog      *Catalog
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := positiveDuration("FETCH_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	fetchRate, err := nonNegativeFloat("FETCH_RATE", "2")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		StorageLocalDir: sharedcfg.EnvOrDefault("STORAGE_LOCAL_DIR", "test_local"),
		Remotes: map[storage.Mode]Remote{
			storage.ModeDev: {
				Account:  os.Getenv("STORAGE_ACCOUNT_DEV"),
				SAS:      os.Getenv("STORAGE_SAS_DEV"),
				Key:      os.Getenv("STORAGE_KEY_DEV"),
				Endpoint: os.Getenv("STORAGE_ENDPOINT_DEV"),
			},
			storage.ModeProd: {
				Account:  os.Getenv("STORAGE_ACCOUNT_PROD"),
				SAS:      os.Getenv("STORAGE_SAS_PROD"),
				Key:      os.Getenv("STORAGE_KEY_PROD"),
				Endpoint: os.Getenv("STORAGE_ENDPOINT_PROD"),
			},
		},
		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "raster-artifacts"),
		FetchTimeout: fetchTimeout,
		FetchRate:    fetchRate,
		FetchToken:   os.Getenv("FETCH_TOKEN"),
		ProductsFile: os.Getenv("PRODUCTS_FILE"),
	}

	if cfg.StorageLocalDir == "" {
		return nil, errors.New("STORAGE_LOCAL_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if cfg.ProductsFile != "" {
		cfg.Catalog, err = LoadCatalogFile(cfg.ProductsFile)
	} else {
		cfg.Catalog, err = DefaultCatalog()
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// StorageFor returns the storage settings of the given mode and container.
// Remote modes need an account or endpoint, plus a SAS token or account key.
func (c *Config) StorageFor(mode storage.Mode, container string) (storage.Config, error) {
	sc := storage.Config{Mode: mode, Container: container}
	switch mode {
	case storage.ModeLocal:
		sc.LocalDir = c.StorageLocalDir
		return sc, nil
	case storage.ModeDev, storage.ModeProd:
		r := c.Remotes[mode]
		suffix := map[storage.Mode]string{storage.ModeDev: "DEV", storage.ModeProd: "PROD"}[mode]
		if r.Account == "" && r.Endpoint == "" {
			return storage.Config{}, fmt.Errorf("STORAGE_ACCOUNT_%s is required for %s mode", suffix, mode)
		}
		if r.SAS == "" && r.Key == "" {
			return storage.Config{}, fmt.Errorf("STORAGE_SAS_%s or STORAGE_KEY_%s is required for %s mode", suffix, suffix, mode)
		}
		sc.Account, sc.SAS, sc.Key, sc.Endpoint = r.Account, r.SAS, r.Key, r.Endpoint
		return sc, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage mode %q", mode)
	}
}
