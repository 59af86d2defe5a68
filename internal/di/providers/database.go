package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/samber/do/v2"

	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/logger"
	"github.com/coversync/coversync-server/internal/store"
)

// DataLockHandle holds the exclusive lock on the data directory. Two
// instances sharing a cover root would race on the same slots.
type DataLockHandle struct {
	*flock.Flock
}

// Shutdown implements do.Shutdownable.
func (h *DataLockHandle) Shutdown() error {
	return h.Unlock()
}

// ProvideDataLock acquires the data directory lock.
func ProvideDataLock(i do.Injector) (*DataLockHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lockPath := filepath.Join(cfg.Data.BasePath, "coversync.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another coversync instance is using %s", cfg.Data.BasePath)
	}

	log.Debug("Data directory locked", "path", lockPath)
	return &DataLockHandle{Flock: lock}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	_ = do.MustInvoke[*DataLockHandle](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
