// Package storage provides the app-state key/value store backed by bbolt.
// It holds small durable markers that must survive restarts: the active
// profile id and the system-proxy flag. The larger statistics and traffic
// documents live in their own JSON files (see internal/stats).
package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	stateBucket = "app_state"

	activeProfileKey = "active_profile"
	systemProxyKey   = "system_proxy_enabled"
)

// BoltDB wraps bolt database operations for app state.
type BoltDB struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltDB opens (or creates) the app-state database at dbPath.
func NewBoltDB(dbPath string, logger *zap.SugaredLogger) (*BoltDB, error) {
	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state bucket: %w", err)
	}

	return &BoltDB{db: db, logger: logger}, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) putString(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put([]byte(key), []byte(value))
	})
}

func (b *BoltDB) getString(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(stateBucket)).Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

func (b *BoltDB) deleteKey(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Delete([]byte(key))
	})
}

// SetActiveProfile records the id of the currently active profile.
func (b *BoltDB) SetActiveProfile(id string) error {
	return b.putString(activeProfileKey, id)
}

// GetActiveProfile returns the active profile id, or "" when none is set.
func (b *BoltDB) GetActiveProfile() (string, error) {
	return b.getString(activeProfileKey)
}

// ClearActiveProfile removes the active profile marker.
func (b *BoltDB) ClearActiveProfile() error {
	return b.deleteKey(activeProfileKey)
}

// SetSystemProxyEnabled persists the system-proxy toggle state.
func (b *BoltDB) SetSystemProxyEnabled(enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return b.putString(systemProxyKey, v)
}

// GetSystemProxyEnabled returns the persisted system-proxy toggle state.
func (b *BoltDB) GetSystemProxyEnabled() (bool, error) {
	v, err := b.getString(systemProxyKey)
	return v == "1", err
}
