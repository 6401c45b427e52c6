package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/storage"
	"github.com/janelia-flyem/bgrid/table"
)

func openTestDB(t *testing.T, path string) storage.KeyValueDB {
	t.Helper()
	db, err := storage.OpenDB(bgrid.NewStoreConfig("badger", map[string]interface{}{"path": path}))
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestKeyValue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, filepath.Join(t.TempDir(), "db"))
	defer db.Close()

	for _, key := range []string{"info/b", "info/a", "element/a", "project"} {
		if err := db.Put(ctx, key, []byte("v-"+key)); err != nil {
			t.Fatal(err)
		}
	}
	v, err := db.Get(ctx, "info/a")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v-info/a" {
		t.Errorf("got %q", v)
	}
	keys, err := db.Keys(ctx, "info/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"info/a", "info/b"}, keys); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if err := db.Delete(ctx, "info/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(ctx, "info/a"); !errors.Is(err, bgrid.ErrNotFound) {
		t.Errorf("get deleted key: got %v, want ErrNotFound", err)
	}
}

func TestMissingPath(t *testing.T) {
	if _, err := storage.OpenDB(bgrid.NewStoreConfig("badger", nil)); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("got %v, want ErrValue", err)
	}
}

func TestElementsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	tbl := table.SyntheticBlockModel([3]int{4, 3, 2}, [3]float64{2, 2, 1}, bgrid.Vector3d{10, 20, 30}, true)
	el, err := blockmodel.TableToGrid(tbl, "bm", geometry.Tensor)
	if err != nil {
		t.Fatal(err)
	}

	s := storage.NewKVStore(openTestDB(t, path), bgrid.Zstd)
	if err := s.PutElement(ctx, el, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = storage.NewKVStore(openTestDB(t, path), bgrid.Zstd)
	defer s.Close()
	got, err := s.GetElement(ctx, "bm")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != geometry.Tensor || !geometry.Congruent(el.Geometry, got.Geometry) {
		t.Errorf("geometry changed after reopen: %v", got.Geometry)
	}
	back, err := blockmodel.GridToTable(got, blockmodel.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(tbl) {
		t.Errorf("table read after reopen differs from the one written")
	}
}
