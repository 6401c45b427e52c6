package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Engine is a storage backend that can open a KeyValueDB from a store
// configuration.
type Engine interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore opens or creates a database.  The returned bool is true if
	// the database was newly created.
	NewStore(config bgrid.StoreConfig) (KeyValueDB, bool, error)
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine makes an engine available by its name.  Engines register
// from package init functions.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[e.GetName()] = e
	bgrid.Debugf("Registered storage engine %q [%s]\n", e.GetName(), e.GetSemVer())
}

// GetEngine returns a registered engine.
func GetEngine(name string) (Engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := engines[name]
	return e, found
}

// EnginesAvailable returns a description of the registered engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var names []string
	for name, e := range engines {
		names = append(names, fmt.Sprintf("%s [%s]", name, e.GetSemVer()))
	}
	sort.Strings(names)
	return strings.Join(names, "; ")
}

// OpenDB opens a database with the engine named in the configuration.
func OpenDB(config bgrid.StoreConfig) (KeyValueDB, error) {
	e, found := GetEngine(config.Engine)
	if !found {
		return nil, fmt.Errorf("storage engine %q not available (have %s): %w", config.Engine, EnginesAvailable(), bgrid.ErrValue)
	}
	db, created, err := e.NewStore(config)
	if err != nil {
		return nil, err
	}
	if created {
		bgrid.Infof("Created new %s store\n", e.GetName())
	}
	return db, nil
}

// --- memory engine ---

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		bgrid.Errorf("Unable to make semver in memory engine: %v\n", err)
	}
	RegisterEngine(memoryEngine{ver})
}

type memoryEngine struct {
	semver semver.Version
}

func (e memoryEngine) GetName() string           { return "memory" }
func (e memoryEngine) GetDescription() string    { return "In-process map" }
func (e memoryEngine) GetSemVer() semver.Version { return e.semver }

func (e memoryEngine) NewStore(config bgrid.StoreConfig) (KeyValueDB, bool, error) {
	return NewMemoryDB(), true, nil
}

// MemoryDB is a KeyValueDB held in memory.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryDB returns an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (db *MemoryDB) Get(ctx context.Context, key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, found := db.data[key]
	if !found {
		return nil, fmt.Errorf("key %q: %w", key, bgrid.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (db *MemoryDB) Put(ctx context.Context, key string, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[key] = append([]byte(nil), value...)
	return nil
}

func (db *MemoryDB) Delete(ctx context.Context, key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, key)
	return nil
}

func (db *MemoryDB) Keys(ctx context.Context, prefix string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var keys []string
	for k := range db.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (db *MemoryDB) Close() error { return nil }
