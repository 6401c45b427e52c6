/*
	This file implements a monitor of key-value traffic.  Counts accumulate
	for a second and are then published as per-second rates.
*/

package storage

import (
	"context"
	"sync"
	"time"
)

// Rates are the key-value operations and bytes of the last full second.
type Rates struct {
	BytesReadPerSec    int `json:"bytes_read_per_sec"`
	BytesWrittenPerSec int `json:"bytes_written_per_sec"`
	GetsPerSec         int `json:"gets_per_sec"`
	PutsPerSec         int `json:"puts_per_sec"`
}

// MonitoredDB counts traffic through a KeyValueDB.
type MonitoredDB struct {
	KeyValueDB

	mu      sync.Mutex
	current Rates // tallies up to a second
	last    Rates

	done chan struct{}
	once sync.Once
}

// NewMonitoredDB wraps db and starts the once-a-second tally.
func NewMonitoredDB(db KeyValueDB) *MonitoredDB {
	m := &MonitoredDB{KeyValueDB: db, done: make(chan struct{})}
	go m.loadMonitor()
	return m
}

func (m *MonitoredDB) loadMonitor() {
	secondTick := time.NewTicker(time.Second)
	defer secondTick.Stop()
	for {
		select {
		case <-secondTick.C:
			m.tick()
		case <-m.done:
			return
		}
	}
}

func (m *MonitoredDB) tick() {
	m.mu.Lock()
	m.last = m.current
	m.current = Rates{}
	m.mu.Unlock()
}

// Rates returns the counts of the last full second.
func (m *MonitoredDB) Rates() Rates {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *MonitoredDB) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := m.KeyValueDB.Get(ctx, key)
	m.mu.Lock()
	m.current.GetsPerSec++
	m.current.BytesReadPerSec += len(value)
	m.mu.Unlock()
	return value, err
}

func (m *MonitoredDB) Put(ctx context.Context, key string, value []byte) error {
	err := m.KeyValueDB.Put(ctx, key, value)
	if err == nil {
		m.mu.Lock()
		m.current.PutsPerSec++
		m.current.BytesWrittenPerSec += len(value)
		m.mu.Unlock()
	}
	return err
}

// Close stops the monitor and closes the wrapped database.
func (m *MonitoredDB) Close() error {
	m.once.Do(func() { close(m.done) })
	return m.KeyValueDB.Close()
}

// Stats reports activity of a store opened by Open, optionally cached.
type Stats struct {
	Rates
	CacheAttempts uint64 `json:"cache_attempts"`
	CacheHits     uint64 `json:"cache_hits"`
}

// StoreStats returns the monitor rates and cache counts a store exposes.
func StoreStats(s Store) Stats {
	var stats Stats
	if c, ok := s.(*CachedStore); ok {
		stats.CacheAttempts, stats.CacheHits = c.Stats()
		s = c.Store
	}
	if kv, ok := s.(*KVStore); ok {
		if m, ok := kv.db.(*MonitoredDB); ok {
			stats.Rates = m.Rates()
		}
	}
	return stats
}
