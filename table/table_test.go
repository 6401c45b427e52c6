package table

import (
	"errors"
	"math"
	"testing"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

func TestSyntheticBlockModel(t *testing.T) {
	for _, tensor := range []bool{false, true} {
		tbl := SyntheticBlockModel([3]int{5, 4, 3}, [3]float64{1, 1, 0.5}, bgrid.Vector3d{100, 200, 300}, tensor)
		if tbl.Len() != 60 || tbl.NumColumns() != 3 {
			t.Fatalf("got %d rows, %d columns; want 60, 3", tbl.Len(), tbl.NumColumns())
		}
		if tbl.Index.IsTensor() != tensor {
			t.Errorf("tensor index = %t, want %t", tbl.Index.IsTensor(), tensor)
		}
		wantX := []float64{100.5, 101.5, 102.5, 103.5, 104.5}
		gotX := index.Unique(tbl.Index.X)
		for i := range wantX {
			if gotX[i] != wantX[i] {
				t.Errorf("x levels = %v, want %v", gotX, wantX)
				break
			}
		}
		wantZ := []float64{300.25, 300.75, 301.25}
		gotZ := index.Unique(tbl.Index.Z)
		for i := range wantZ {
			if gotZ[i] != wantZ[i] {
				t.Errorf("z levels = %v, want %v", gotZ, wantZ)
				break
			}
		}

		// C order reading of c_style_xyz and F order reading of f_style_zyx
		// are both 0..59.
		cSorted, _, err := tbl.Sorted(index.COrder)
		if err != nil {
			t.Fatal(err)
		}
		c, _ := cSorted.Column("c_style_xyz")
		for i, v := range c.(*Float64Series).Values {
			if v != float64(i) {
				t.Fatalf("c_style_xyz[%d] = %g in C order", i, v)
			}
		}
		fSorted, _, err := tbl.Sorted(index.FOrder)
		if err != nil {
			t.Fatal(err)
		}
		f, _ := fSorted.Column("f_style_zyx")
		for i, v := range f.(*Float64Series).Values {
			if v != float64(i) {
				t.Fatalf("f_style_zyx[%d] = %g in F order", i, v)
			}
		}

		d, _ := tbl.Column("depth")
		if got := d.(*Float64Series).Values[0]; got != 1.25 {
			t.Errorf("depth of first cell = %g, want 1.25", got)
		}
	}
}

func TestTableColumns(t *testing.T) {
	tbl := SyntheticBlockModel([3]int{2, 2, 2}, [3]float64{1, 1, 1}, bgrid.Vector3d{}, false)
	if err := tbl.AddColumn(NewFloat64("depth", make([]float64, 8))); !errors.Is(err, bgrid.ErrAlreadyExists) {
		t.Errorf("duplicate column: got %v", err)
	}
	if err := tbl.AddColumn(NewFloat64("short", make([]float64, 3))); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("short column: got %v", err)
	}
	if err := tbl.RenameColumn("depth", "rl_depth"); err != nil {
		t.Fatal(err)
	}
	if got := tbl.ColumnNames(); got[2] != "rl_depth" {
		t.Errorf("rename moved column: %v", got)
	}
	if err := tbl.DropColumn("c_style_xyz"); err != nil {
		t.Fatal(err)
	}
	if err := tbl.DropColumn("c_style_xyz"); !errors.Is(err, bgrid.ErrNotFound) {
		t.Errorf("drop missing: got %v", err)
	}
	_, err := tbl.Select([]string{"rl_depth", "grade", "tonnes"})
	var unknown *bgrid.UnknownNamesError
	if !errors.As(err, &unknown) || len(unknown.Names) != 2 || !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("select unknown: got %v", err)
	}

	filtered, err := tbl.Filter([]bool{true, false, false, false, false, false, false, true})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Len() != 2 || filtered.Index.X[1] != 1.5 {
		t.Errorf("filter kept wrong rows: %v", filtered.Index.X)
	}
}

func TestSortedLeavesReceiver(t *testing.T) {
	tbl := SyntheticBlockModel([3]int{3, 2, 2}, [3]float64{1, 1, 1}, bgrid.Vector3d{}, false)
	shuffled := tbl.Take([]int{5, 3, 11, 0, 1, 2, 4, 6, 7, 8, 9, 10})
	before := shuffled.Clone()
	sorted, perm, err := shuffled.Sorted(index.COrder)
	if err != nil {
		t.Fatal(err)
	}
	if !shuffled.Equal(before) {
		t.Errorf("Sorted modified the receiver")
	}
	if !sorted.Equal(tbl) {
		t.Errorf("sorted table does not match C-ordered original")
	}
	if perm[0] != 3 {
		t.Errorf("perm[0] = %d, want 3", perm[0])
	}
}

func TestCategorical(t *testing.T) {
	s := CategoricalFromLabels("rock", []string{"ore", "waste", "", "ore"}, []bool{true, true, false, true})
	if len(s.Categories) != 2 || s.Categories[0] != "ore" || s.Categories[1] != "waste" {
		t.Fatalf("categories = %v", s.Categories)
	}
	want := []int32{0, 1, MissingCode, 0}
	for i := range want {
		if s.Codes[i] != want[i] {
			t.Errorf("codes = %v, want %v", s.Codes, want)
			break
		}
	}
	if s.NullCount() != 1 {
		t.Errorf("NullCount = %d, want 1", s.NullCount())
	}
	if _, err := NewCategorical("rock", []int32{0, 2}, []string{"ore", "waste"}); !errors.Is(err, bgrid.ErrData) {
		t.Errorf("bad code: got %v", err)
	}
}

func TestFloat64Values(t *testing.T) {
	s := NewNullableInt64("grade", []int64{1, 0, 3}, []bool{true, false, true})
	v, err := Float64Values(s)
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != 1 || !math.IsNaN(v[1]) || v[2] != 3 {
		t.Errorf("got %v", v)
	}
	cat := CategoricalFromLabels("rock", []string{"a"}, nil)
	if _, err := Float64Values(cat); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("categorical as float: got %v", err)
	}
}
