// Package storage persists raw and processed artifacts either on the local
// filesystem or in Azure Blob Storage. Keys are slash-separated paths
// relative to the store root, e.g. "era5/monthly/processed/precip_reanalysis_v2020-01-01.tif".
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Tier is a storage access tier hint. Backends without tiers ignore it.
type Tier string

const (
	TierHot  Tier = "Hot"
	TierCool Tier = "Cool"
)

// WriteOptions carries optional object properties.
type WriteOptions struct {
	ContentType string
	Tier        Tier
}

// Backend is an object store.
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte, opts WriteOptions) error
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Location describes the store for logs and reports.
	Location() string
}

// Mode selects a storage deployment.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeDev   Mode = "dev"
	ModeProd  Mode = "prod"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLocal, ModeDev, ModeProd:
		return m, nil
	default:
		return "", fmt.Errorf("unknown storage mode %q (want local, dev or prod)", s)
	}
}

// Config is the explicit description of one store. Only the fields relevant
// to Mode are used.
type Config struct {
	Mode      Mode
	LocalDir  string
	Account   string
	Container string
	// SAS is a shared access signature query string. Key is an account key.
	// One of the two is required for remote modes; SAS wins when both are set.
	SAS string
	Key string
	// Endpoint overrides the service URL, e.g. for an emulator.
	Endpoint string
}

// Open returns the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Mode {
	case ModeLocal:
		return NewLocalStore(cfg.LocalDir, cfg.Container)
	case ModeDev, ModeProd:
		return NewBlobStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("open storage: unknown mode %q", cfg.Mode)
	}
}
