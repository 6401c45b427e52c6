package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
)

// KVStore implements Store on top of any KeyValueDB.
type KVStore struct {
	db          KeyValueDB
	compression bgrid.Compression

	// mu serializes existence checks with writes.
	mu sync.Mutex
}

// NewKVStore returns a Store persisting serialized elements in db.
func NewKVStore(db KeyValueDB, compression bgrid.Compression) *KVStore {
	return &KVStore{db: db, compression: compression}
}

// Open opens the engine named by config and wraps it in a KVStore.  The
// "compression" setting selects the value compression.  Traffic is counted
// by a MonitoredDB; see StoreStats.
func Open(config bgrid.StoreConfig) (*KVStore, error) {
	name, _, err := config.GetString("compression")
	if err != nil {
		return nil, err
	}
	compression, err := bgrid.ParseCompression(name)
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(config)
	if err != nil {
		return nil, err
	}
	return NewKVStore(NewMonitoredDB(db), compression), nil
}

func (s *KVStore) encode(el *blockmodel.Element) ([]byte, error) {
	rec, err := marshalElement(el)
	if err != nil {
		return nil, err
	}
	return bgrid.SerializeData(rec, s.compression, bgrid.CRC32)
}

func decodeElement(value []byte) (*blockmodel.Element, error) {
	rec, _, err := bgrid.DeserializeData(value)
	if err != nil {
		return nil, err
	}
	return unmarshalElement(rec)
}

func (s *KVStore) GetElement(ctx context.Context, name string) (*blockmodel.Element, error) {
	value, err := s.db.Get(ctx, elementKey(name))
	if err != nil {
		if errors.Is(err, bgrid.ErrNotFound) {
			return nil, fmt.Errorf("element %q: %w", name, bgrid.ErrNotFound)
		}
		return nil, err
	}
	return decodeElement(value)
}

func (s *KVStore) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.db.Get(ctx, infoKey(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bgrid.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *KVStore) PutElement(ctx context.Context, el *blockmodel.Element, overwrite bool) error {
	if err := el.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !overwrite {
		found, err := s.exists(ctx, el.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("element %q: %w", el.Name, bgrid.ErrAlreadyExists)
		}
	}
	value, err := s.encode(el)
	if err != nil {
		return err
	}
	info, err := json.Marshal(infoOf(el))
	if err != nil {
		return err
	}
	if err := s.db.Put(ctx, elementKey(el.Name), value); err != nil {
		return err
	}
	if err := s.db.Put(ctx, infoKey(el.Name), info); err != nil {
		return err
	}
	bgrid.Debugf("Stored element %q (%s, %s)\n", el.Name, el.Kind(), bgrid.HumanBytes(len(value)))
	return nil
}

func infoOf(el *blockmodel.Element) ElementInfo {
	return ElementInfo{
		Name:        el.Name,
		Kind:        el.Kind(),
		Type:        el.Kind().String(),
		Shape:       el.Geometry.Shape(),
		NumCells:    el.Geometry.NumCells(),
		Attributes:  el.AvailableNames(),
		Description: el.Description,
	}
}

func (s *KVStore) DeleteElement(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("element %q: %w", name, bgrid.ErrNotFound)
	}
	if err := s.db.Delete(ctx, infoKey(name)); err != nil {
		return err
	}
	return s.db.Delete(ctx, elementKey(name))
}

func (s *KVStore) ListElements(ctx context.Context) ([]ElementInfo, error) {
	keys, err := s.db.Keys(ctx, infoPrefix)
	if err != nil {
		return nil, err
	}
	infos := make([]ElementInfo, 0, len(keys))
	for _, key := range keys {
		value, err := s.db.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var info ElementInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("element info %q: %v: %w", strings.TrimPrefix(key, infoPrefix), err, bgrid.ErrData)
		}
		if info.Kind, err = geometry.ParseKind(info.Type); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *KVStore) Project(ctx context.Context) (*ProjectMetadata, error) {
	value, err := s.db.Get(ctx, projectKey)
	if errors.Is(err, bgrid.ErrNotFound) {
		return new(ProjectMetadata), nil
	}
	if err != nil {
		return nil, err
	}
	md := new(ProjectMetadata)
	if err := json.Unmarshal(value, md); err != nil {
		return nil, fmt.Errorf("project metadata: %v: %w", err, bgrid.ErrData)
	}
	return md, nil
}

func (s *KVStore) PutProject(ctx context.Context, md *ProjectMetadata) error {
	value, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, projectKey, value)
}

func (s *KVStore) Close() error {
	return s.db.Close()
}
