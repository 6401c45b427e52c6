package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestRegularCentroidsAndExtents(t *testing.T) {
	g, err := NewRegular(bgrid.Vector3d{0, 0, 0}, DefaultAxes, [3]float64{10, 10, 10}, [3]int{10, 10, 10})
	if err != nil {
		t.Fatal(err)
	}
	c := g.Centroids(0)
	for i, v := range c {
		if want := 5 + 10*float64(i); v != want {
			t.Errorf("centroid[%d] = %g, want %g", i, v, want)
		}
	}
	ext := g.Extents()
	for a := 0; a < 3; a++ {
		if ext[a] != [2]float64{0, 100} {
			t.Errorf("extent[%d] = %v, want [0 100]", a, ext[a])
		}
	}
	if bb := g.BoundingBox(); bb != [2][2]float64{{0, 100}, {0, 100}} {
		t.Errorf("bounding box = %v", bb)
	}
	if g.NumCells() != 1000 {
		t.Errorf("NumCells = %d, want 1000", g.NumCells())
	}
	if !g.IsRegular() {
		t.Errorf("regular geometry reports non-uniform widths")
	}
}

func TestRegularFromRowIndex(t *testing.T) {
	var x, y, z []float64
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			for k := 0; k < 10; k++ {
				x = append(x, float64(i))
				y = append(y, float64(j))
				z = append(z, float64(k))
			}
		}
	}
	idx, err := index.NewRegular(x, y, z)
	if err != nil {
		t.Fatal(err)
	}
	g, err := RegularFromRowIndex(idx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Corner() != (bgrid.Vector3d{-0.5, -0.5, -0.5}) {
		t.Errorf("corner = %s, want (-0.5,-0.5,-0.5)", g.Corner())
	}
	if g.BlockSize() != [3]float64{1, 1, 1} {
		t.Errorf("block size = %v, want [1 1 1]", g.BlockSize())
	}
	if g.Shape() != [3]int{10, 10, 10} {
		t.Errorf("shape = %v", g.Shape())
	}
	if !g.RowIndex().Equal(idx) {
		t.Errorf("row index from geometry does not match input")
	}
}

func TestTensorRoundTrip(t *testing.T) {
	g, err := NewTensor(bgrid.Vector3d{100, 200, 300}, DefaultAxes,
		[]float64{1, 2, 4}, []float64{5}, []float64{0.5, 0.5, 1.5, 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if g.IsRegular() {
		t.Errorf("non-uniform tensor reports regular")
	}
	idx := g.RowIndex()
	if idx.Len() != 12 || !idx.IsTensor() || !idx.IsSorted(index.COrder) {
		t.Fatalf("bad row index: len %d tensor %t", idx.Len(), idx.IsTensor())
	}
	got, err := FromRowIndex(idx)
	if err != nil {
		t.Fatal(err)
	}
	for a := 0; a < 3; a++ {
		if !cmp.Equal(got.Widths(a), g.Widths(a)) {
			t.Errorf("axis %d widths %v, want %v", a, got.Widths(a), g.Widths(a))
		}
		if !approx(got.Corner()[a], g.Corner()[a]) {
			t.Errorf("axis %d corner %g, want %g", a, got.Corner()[a], g.Corner()[a])
		}
	}
	if n := len(g.CellSizes()); n != 3*1*3 {
		t.Errorf("got %d distinct cell sizes, want 9", n)
	}
}

func TestRegularityGate(t *testing.T) {
	g, err := NewTensor(bgrid.Vector3d{}, DefaultAxes, []float64{1, 2}, []float64{1}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.ToRegular(); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("expected ErrValue converting non-uniform tensor, got %v", err)
	}
	if _, err := RegularFromRowIndex(g.RowIndex()); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("expected ErrValue inferring regular geometry, got %v", err)
	}
	if _, err := FromRowIndex(g.RowIndex()); err != nil {
		t.Errorf("tensor inference failed: %v", err)
	}

	u, err := NewTensor(bgrid.Vector3d{1, 2, 3}, DefaultAxes, []float64{2, 2}, []float64{3}, []float64{0.5, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	r, err := u.ToRegular()
	if err != nil {
		t.Fatal(err)
	}
	if r.BlockSize() != [3]float64{2, 3, 0.5} || r.Shape() != [3]int{2, 1, 2} {
		t.Errorf("got block size %v shape %v", r.BlockSize(), r.Shape())
	}
	if !Congruent(r, u) {
		t.Errorf("regular conversion not congruent to tensor")
	}
}

func TestMalformedIndex(t *testing.T) {
	g, err := NewRegular(bgrid.Vector3d{}, DefaultAxes, [3]float64{1, 1, 1}, [3]int{2, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	full := g.RowIndex()

	missing := full.Take([]int{0, 1, 2, 3, 4, 5, 6})
	if _, err := FromRowIndex(missing); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("missing cell: got %v, want ErrMalformedIndex", err)
	}

	dup := full.Take([]int{0, 1, 2, 3, 4, 5, 6, 6})
	if _, err := FromRowIndex(dup); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("duplicate cell: got %v, want ErrMalformedIndex", err)
	}

	tensor := g.ToTensor().RowIndex()
	tensor.DX[0] = 3
	if _, err := FromRowIndex(tensor); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("inconsistent dx: got %v, want ErrMalformedIndex", err)
	}

	if _, err := FromRowIndex(index.RowIndex{}); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("empty index: got %v, want ErrMalformedIndex", err)
	}

	nan := index.RowIndex{X: []float64{math.NaN()}, Y: []float64{0}, Z: []float64{0}}
	if _, err := FromRowIndex(nan); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("NaN centroid: got %v, want ErrMalformedIndex", err)
	}

	infSize := g.ToTensor().RowIndex()
	infSize.DZ[0] = math.Inf(1)
	if _, err := FromRowIndex(infSize); !errors.Is(err, bgrid.ErrMalformedIndex) {
		t.Errorf("infinite dz: got %v, want ErrMalformedIndex", err)
	}
}

func TestShuffledInference(t *testing.T) {
	g, err := NewTensor(bgrid.Vector3d{0, 0, 0}, DefaultAxes, []float64{1, 3}, []float64{2, 2}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	idx := g.RowIndex()
	shuffled := idx.Take([]int{3, 0, 2, 1})
	got, err := FromRowIndex(shuffled)
	if err != nil {
		t.Fatal(err)
	}
	if !Congruent(got, g) {
		t.Errorf("geometry from shuffled index differs: %s vs %s", got, g)
	}
}

func TestNearestCell(t *testing.T) {
	g, err := NewTensor(bgrid.Vector3d{0, 0, 0}, DefaultAxes,
		[]float64{1, 1, 1}, []float64{1, 1, 1}, []float64{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	testCases := []struct {
		p     bgrid.Vector3d
		ijk   [3]int
		found bool
	}{
		{bgrid.Vector3d{0.3, 0.4, 0.6}, [3]int{0, 0, 0}, true},
		{bgrid.Vector3d{1.0, 2.0, 2.9}, [3]int{0, 1, 2}, true}, // ties go low
		{bgrid.Vector3d{-0.4, 1.6, 3.4}, [3]int{0, 1, 2}, true},
		{bgrid.Vector3d{-0.6, 1, 1}, [3]int{}, false},
		{bgrid.Vector3d{1, 1, 3.51}, [3]int{}, false},
		{bgrid.Vector3d{math.NaN(), 1, 1}, [3]int{}, false},
		{bgrid.Vector3d{1, math.Inf(-1), 1}, [3]int{}, false},
	}
	for _, tc := range testCases {
		cell, found := g.NearestCell(tc.p)
		if found != tc.found {
			t.Errorf("NearestCell(%s) found = %t, want %t", tc.p, found, tc.found)
			continue
		}
		if found && cell.IJK != tc.ijk {
			t.Errorf("NearestCell(%s) = %v, want %v", tc.p, cell.IJK, tc.ijk)
		}
	}
	cell, _ := g.NearestCell(bgrid.Vector3d{0.3, 0.4, 0.6})
	if cell.Key.Centroid() != (bgrid.Vector3d{0.5, 0.5, 0.5}) {
		t.Errorf("nearest centroid = %s, want (0.5,0.5,0.5)", cell.Key.Centroid())
	}
}

func TestNearestCellMatchesRowIndex(t *testing.T) {
	rg, err := NewRegular(bgrid.Vector3d{100, 200, 300}, DefaultAxes, [3]float64{1, 1, 0.5}, [3]int{5, 4, 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range []Geometry{rg, rg.ToTensor()} {
		idx := g.RowIndex()
		for _, i := range []int{0, 17, idx.Len() - 1} {
			want := idx.Key(i)
			cell, found := g.NearestCell(want.Centroid())
			if !found {
				t.Fatalf("%s: no cell at centroid %s", g.Kind(), want.Centroid())
			}
			if cell.Key != want {
				t.Errorf("%s: NearestCell key = %v, want row index key %v", g.Kind(), cell.Key, want)
			}
		}
	}
}

func TestPortableRoundTrip(t *testing.T) {
	r := 1 / math.Sqrt(2)
	axes := Axes{{r, r, 0}, {-r, r, 0}, {0, 0, 1}}
	tg, err := NewTensor(bgrid.Vector3d{0.1 + 0.2, 1e-17, -3}, axes,
		[]float64{0.1, 0.7, 1.0 / 3}, []float64{2}, []float64{math.Pi, math.E})
	if err != nil {
		t.Fatal(err)
	}
	rg, err := NewRegular(bgrid.Vector3d{100, 200, 300}, DefaultAxes, [3]float64{1, 1, 0.5}, [3]int{5, 4, 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range []Geometry{tg, rg} {
		data, err := MarshalGeometry(g)
		if err != nil {
			t.Fatal(err)
		}
		got, err := UnmarshalGeometry(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Kind() != g.Kind() {
			t.Errorf("kind %s, want %s", got.Kind(), g.Kind())
		}
		if diff := cmp.Diff(g.ToPortable(), got.ToPortable(), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("portable round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestFrameConversion(t *testing.T) {
	r := 1 / math.Sqrt(2)
	g, err := NewRegular(bgrid.Vector3d{10, 0, 0}, Axes{{r, r, 0}, {-r, r, 0}, {0, 0, 1}}, [3]float64{1, 1, 1}, [3]int{4, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	p := bgrid.Vector3d{11, 1, 2}
	local := g.WorldToGrid(p)
	if !approx(local[0], 10+math.Sqrt(2)) || !approx(local[1], 0) {
		t.Errorf("WorldToGrid(%s) = %s", p, local)
	}
	if back := g.GridToWorld(local); !back.ApproxEqual(p, 1e-9) {
		t.Errorf("GridToWorld(WorldToGrid(%s)) = %s", p, back)
	}

	if _, err := NewRegular(bgrid.Vector3d{}, Axes{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}, [3]float64{1, 1, 1}, [3]int{1, 1, 1}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("expected ErrValue for degenerate axes, got %v", err)
	}
}

func TestInvalidConstruction(t *testing.T) {
	if _, err := NewRegular(bgrid.Vector3d{}, DefaultAxes, [3]float64{1, 0, 1}, [3]int{1, 1, 1}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("zero block size: got %v", err)
	}
	if _, err := NewRegular(bgrid.Vector3d{}, DefaultAxes, [3]float64{1, 1, 1}, [3]int{1, 0, 1}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("zero shape: got %v", err)
	}
	if _, err := NewTensor(bgrid.Vector3d{}, DefaultAxes, []float64{1}, nil, []float64{1}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("empty axis: got %v", err)
	}
	if _, err := ParseKind("voxel"); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("unknown kind: got %v", err)
	}
}
