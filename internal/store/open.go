package store

import (
	"fmt"
	"path/filepath"

	"asistan/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return OpenFile(cfg.Path)
	case "sqlite":
		p := cfg.Path
		if filepath.Ext(p) == "" {
			p = filepath.Join(p, "asistan.db")
		}
		return OpenSQLite(p)
	case "valkey":
		return OpenValkey(ValkeyConfig{
			Address:   cfg.ValkeyAddr,
			Password:  cfg.ValkeyPassword,
			DB:        cfg.ValkeyDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}
