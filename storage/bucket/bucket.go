/*
Package bucket registers the "bucket" storage engine which keeps each value as
an object in a gocloud blob bucket.

Settings in the [store] section:

	path    local directory served through fileblob (created if missing)
	url     any gocloud bucket URL, e.g. "mem://", "file:///data", "gs://name"
	prefix  optional key prefix within the bucket

Exactly one of path or url must be given.
*/
package bucket

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/blang/semver"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/storage"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		bgrid.Errorf("Unable to make semver in bucket: %v\n", err)
	}
	storage.RegisterEngine(Engine{"bucket", "gocloud blob bucket", ver})
}

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string           { return e.name }
func (e Engine) GetDescription() string    { return e.desc }
func (e Engine) GetSemVer() semver.Version { return e.semver }

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore opens the configured bucket.  Buckets are never reported as newly
// created except for a new local directory.
func (e Engine) NewStore(config bgrid.StoreConfig) (storage.KeyValueDB, bool, error) {
	path, hasPath, err := config.GetString("path")
	if err != nil {
		return nil, false, err
	}
	ref, hasURL, err := config.GetString("url")
	if err != nil {
		return nil, false, err
	}
	prefix, _, err := config.GetString("prefix")
	if err != nil {
		return nil, false, err
	}

	ctx := context.Background()
	var bucket *blob.Bucket
	var created bool
	switch {
	case hasPath == hasURL:
		return nil, false, fmt.Errorf("bucket engine needs exactly one of %q or %q: %w", "path", "url", bgrid.ErrValue)
	case hasPath:
		if !bgrid.FileExists(path) {
			created = true
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, false, fmt.Errorf("can't make directory at %s: %v", path, err)
			}
		}
		if bucket, err = fileblob.OpenBucket(path, nil); err != nil {
			return nil, false, err
		}
		ref = "file://" + path
	default:
		if bucket, err = blob.OpenBucket(ctx, ref); err != nil {
			bgrid.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, false, err
		}
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix)
	}
	bgrid.Infof("Opened bucket %s (prefix %q)\n", ref, prefix)
	return &DB{bucket: bucket, ref: ref}, created, nil
}

// DB is a storage.KeyValueDB with one object per key.
type DB struct {
	bucket *blob.Bucket
	ref    string
}

// NewDB wraps an open bucket.
func NewDB(bucket *blob.Bucket, ref string) *DB {
	return &DB{bucket: bucket, ref: ref}
}

func (db *DB) String() string {
	return "bucket @ " + db.ref
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := db.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("key %q in %s: %w", key, db, bgrid.ErrNotFound)
	}
	return value, err
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	return db.bucket.WriteAll(ctx, key, value, nil)
}

func (db *DB) Delete(ctx context.Context, key string) error {
	err := db.bucket.Delete(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := db.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (db *DB) Close() error {
	return db.bucket.Close()
}
