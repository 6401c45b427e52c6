/*
Package storage persists grid elements and project metadata.

Engines provide a simple key-value interface (KeyValueDB) and register
themselves by name so a TOML [store] section can select one.  Values are
serialized above the engine: elements are encoded with msgp and wrapped by
bgrid.SerializeData for compression and checksums.

	memory   in-process map, mostly for tests
	badger   embedded BadgerDB (package storage/badger)
	bucket   gocloud blob bucket (package storage/bucket)
*/
package storage

import (
	"context"

	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
)

// ElementInfo is a short description of a stored element.
type ElementInfo struct {
	Name        string        `json:"name"`
	Kind        geometry.Kind `json:"-"`
	Type        string        `json:"type"`
	Shape       [3]int        `json:"shape"`
	NumCells    int           `json:"num_cells"`
	Attributes  []string      `json:"attributes"`
	Description string        `json:"description,omitempty"`
}

// Store persists grid elements by name.
type Store interface {
	// GetElement returns bgrid.ErrNotFound if there is no element with the name.
	GetElement(ctx context.Context, name string) (*blockmodel.Element, error)

	// PutElement returns bgrid.ErrAlreadyExists if the element exists and
	// overwrite is false.
	PutElement(ctx context.Context, el *blockmodel.Element, overwrite bool) error

	// DeleteElement returns bgrid.ErrNotFound if there is no element with the name.
	DeleteElement(ctx context.Context, name string) error

	// ListElements returns elements sorted by name.
	ListElements(ctx context.Context) ([]ElementInfo, error)

	// Project returns the project metadata, empty if none was stored.
	Project(ctx context.Context) (*ProjectMetadata, error)

	// PutProject replaces the project metadata.
	PutProject(ctx context.Context, md *ProjectMetadata) error

	Close() error
}

// KeyValueDB is the interface every engine implements.
type KeyValueDB interface {
	// Get returns bgrid.ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	Put(ctx context.Context, key string, value []byte) error

	// Delete is a no-op if the key is absent.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the prefix in sorted order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

const (
	elementPrefix = "element/"
	infoPrefix    = "info/"
	projectKey    = "project"
)

func elementKey(name string) string { return elementPrefix + name }
func infoKey(name string) string    { return infoPrefix + name }
