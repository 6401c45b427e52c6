/*
Package badger registers the "badger" storage engine, an embedded BadgerDB.

Settings in the [store] section:

	path              directory of the database (required)
	testing           if true, path is relative to the system temp directory
	readonly          open without write access
	valuethreshold    values larger than this go to the value log
	valuelogfilesize  maximum size of a value log file
*/
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/storage"
)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.
	DefaultVersionsToKeep = 1

	// DefaultSyncWrites is true if all writes are synced to disk.
	DefaultSyncWrites = false

	syncInterval = 30 * time.Second
)

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		bgrid.Errorf("Unable to make semver in badger: %v\n", err)
	}
	storage.RegisterEngine(Engine{"badger", "BadgerDB", ver})
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger. The passed Config must contain "path" string.
func (e Engine) NewStore(config bgrid.StoreConfig) (storage.KeyValueDB, bool, error) {
	return e.newDB(config)
}

// Delete removes the database directory described by config.
func (e Engine) Delete(config bgrid.StoreConfig) error {
	path, err := parseConfig(config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("can't delete old datastore %q: %v", path, err)
		}
	}
	return nil
}

func parseConfig(config bgrid.StoreConfig) (string, error) {
	path, found, err := config.GetString("path")
	if err != nil {
		return "", err
	}
	if !found || path == "" {
		return "", fmt.Errorf("%q must be specified for BadgerDB configuration: %w", "path", bgrid.ErrValue)
	}
	testing, _, err := config.GetBool("testing")
	if err != nil {
		return "", err
	}
	if testing {
		path = filepath.Join(os.TempDir(), path)
	}
	return path, nil
}

func getOptions(path string, config bgrid.StoreConfig) (badger.Options, error) {
	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(DefaultVersionsToKeep).
		WithSyncWrites(DefaultSyncWrites).
		WithLogger(logger{})

	readOnly, found, err := config.GetBool("ReadOnly")
	if err != nil {
		return opts, err
	}
	if found {
		opts = opts.WithReadOnly(readOnly)
	}

	valueSizeThresh, found, err := config.GetInt("ValueThreshold")
	if err != nil {
		return opts, err
	}
	if found {
		opts = opts.WithValueThreshold(int64(valueSizeThresh))
	}

	vlogSize, found, err := config.GetInt("ValueLogFileSize")
	if err != nil {
		return opts, err
	}
	if found {
		opts = opts.WithValueLogFileSize(int64(vlogSize))
	}
	return opts, nil
}

// logger routes badger's own logging into the bgrid log.
type logger struct{}

func (logger) Errorf(format string, args ...interface{}) {
	bgrid.Errorf("badger: "+format, args...)
}

func (logger) Warningf(format string, args ...interface{}) {
	bgrid.Warningf("badger: "+format, args...)
}

func (logger) Infof(format string, args ...interface{}) {
	bgrid.Debugf("badger: "+format, args...)
}

func (logger) Debugf(format string, args ...interface{}) {
	bgrid.Debugf("badger: "+format, args...)
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			bgrid.Infof("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				bgrid.Errorf("Sync of badger @ %s failed: %v\n", db.directory, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config bgrid.StoreConfig) (*BadgerDB, bool, error) {
	path, err := parseConfig(config)
	if err != nil {
		return nil, false, err
	}

	var created bool
	if _, err := os.Stat(path); os.IsNotExist(err) {
		bgrid.Infof("Database not already at path (%s). Creating directory...\n", path)
		created = true
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, true, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}

	opts, err := getOptions(path, config)
	if err != nil {
		return nil, false, err
	}
	tlog := bgrid.NewTimeLog()
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	tlog.Infof("Opened badger @ path %s\n", path)

	db := &BadgerDB{
		directory:  path,
		config:     config,
		bdp:        bdp,
		readOnly:   opts.ReadOnly,
		stopSyncCh: make(chan struct{}),
	}
	if !db.readOnly {
		go syncPeriodically(db)
	}
	return db, created, nil
}

// BadgerDB is a storage.KeyValueDB backed by badger.
type BadgerDB struct {
	directory string
	config    bgrid.StoreConfig
	bdp       *badger.DB
	readOnly  bool

	stopSyncCh chan struct{}
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Equal returns true if the badger matches the given store configuration.
func (db *BadgerDB) Equal(config bgrid.StoreConfig) bool {
	path, err := parseConfig(config)
	if err != nil {
		return false
	}
	return db.directory == path
}

func (db *BadgerDB) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("key %q: %w", key, bgrid.ErrNotFound)
	}
	return value, err
}

func (db *BadgerDB) Put(ctx context.Context, key string, value []byte) error {
	if db.readOnly {
		return fmt.Errorf("can't put %q into read-only %s: %w", key, db, bgrid.ErrValue)
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (db *BadgerDB) Delete(ctx context.Context, key string) error {
	if db.readOnly {
		return fmt.Errorf("can't delete %q from read-only %s: %w", key, db, bgrid.ErrValue)
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (db *BadgerDB) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close stops the sync goroutine and closes the database.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	if !db.readOnly {
		close(db.stopSyncCh)
	}
	err := db.bdp.Close()
	db.bdp = nil
	bgrid.Infof("Closed Badger DB @ %s\n", db.directory)
	return err
}
