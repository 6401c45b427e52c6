package index

import (
	"fmt"
	"sort"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Order is a ravel order for enumerating cells.
type Order uint8

const (
	// COrder has x slowest and z fastest.  It is the persisted order.
	COrder Order = iota

	// FOrder has z slowest and x fastest.  Display only.
	FOrder
)

func (o Order) String() string {
	switch o {
	case COrder:
		return "C"
	case FOrder:
		return "F"
	default:
		return "unknown"
	}
}

// Level names of a row index.
const (
	LevelX  = "x"
	LevelY  = "y"
	LevelZ  = "z"
	LevelDX = "dx"
	LevelDY = "dy"
	LevelDZ = "dz"
)

var (
	regularLevels = []string{LevelX, LevelY, LevelZ}
	tensorLevels  = []string{LevelX, LevelY, LevelZ, LevelDX, LevelDY, LevelDZ}
)

// CellKey is a single row index key.  Sizes are zero for a regular index.
type CellKey struct {
	X, Y, Z    float64
	DX, DY, DZ float64
}

func (k CellKey) String() string {
	if k.DX == 0 && k.DY == 0 && k.DZ == 0 {
		return fmt.Sprintf("(%g, %g, %g)", k.X, k.Y, k.Z)
	}
	return fmt.Sprintf("(%g, %g, %g, %g, %g, %g)", k.X, k.Y, k.Z, k.DX, k.DY, k.DZ)
}

// Centroid returns the key's centroid as a vector.
func (k CellKey) Centroid() bgrid.Vector3d {
	return bgrid.Vector3d{k.X, k.Y, k.Z}
}

// RowIndex is a per-cell key stored as parallel columns.  A regular index has
// nil DX, DY and DZ.
type RowIndex struct {
	X, Y, Z    []float64
	DX, DY, DZ []float64
}

// NewRegular returns a centroid-only row index.
func NewRegular(x, y, z []float64) (RowIndex, error) {
	if len(y) != len(x) || len(z) != len(x) {
		return RowIndex{}, fmt.Errorf("index columns have lengths %d, %d, %d: %w", len(x), len(y), len(z), bgrid.ErrValue)
	}
	return RowIndex{X: x, Y: y, Z: z}, nil
}

// NewTensor returns a row index with per-cell sizes.
func NewTensor(x, y, z, dx, dy, dz []float64) (RowIndex, error) {
	n := len(x)
	for _, col := range [][]float64{y, z, dx, dy, dz} {
		if len(col) != n {
			return RowIndex{}, fmt.Errorf("index columns must share length %d, got %d: %w", n, len(col), bgrid.ErrValue)
		}
	}
	return RowIndex{X: x, Y: y, Z: z, DX: dx, DY: dy, DZ: dz}, nil
}

// FromLevels builds a row index from named level columns, which must be exactly
// x,y,z or x,y,z,dx,dy,dz in that order.
func FromLevels(names []string, cols [][]float64) (RowIndex, error) {
	if len(names) != len(cols) {
		return RowIndex{}, fmt.Errorf("got %d level names for %d columns: %w", len(names), len(cols), bgrid.ErrValue)
	}
	switch {
	case equalNames(names, regularLevels):
		return NewRegular(cols[0], cols[1], cols[2])
	case equalNames(names, tensorLevels):
		return NewTensor(cols[0], cols[1], cols[2], cols[3], cols[4], cols[5])
	default:
		return RowIndex{}, fmt.Errorf("index levels %v must be %v or %v: %w", names, regularLevels, tensorLevels, bgrid.ErrValue)
	}
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Len returns the number of rows.
func (r RowIndex) Len() int {
	return len(r.X)
}

// IsTensor returns true if the index carries per-cell sizes.
func (r RowIndex) IsTensor() bool {
	return r.DX != nil
}

// Names returns the level names.
func (r RowIndex) Names() []string {
	if r.IsTensor() {
		return append([]string(nil), tensorLevels...)
	}
	return append([]string(nil), regularLevels...)
}

// Columns returns the level columns in Names() order.
func (r RowIndex) Columns() [][]float64 {
	if r.IsTensor() {
		return [][]float64{r.X, r.Y, r.Z, r.DX, r.DY, r.DZ}
	}
	return [][]float64{r.X, r.Y, r.Z}
}

// Key returns the i-th key.
func (r RowIndex) Key(i int) CellKey {
	k := CellKey{X: r.X[i], Y: r.Y[i], Z: r.Z[i]}
	if r.IsTensor() {
		k.DX, k.DY, k.DZ = r.DX[i], r.DY[i], r.DZ[i]
	}
	return k
}

// Centroids returns the centroid columns only.
func (r RowIndex) Centroids() RowIndex {
	return RowIndex{X: r.X, Y: r.Y, Z: r.Z}
}

// Take returns a new index with rows at the given positions.
func (r RowIndex) Take(rows []int) RowIndex {
	take := func(col []float64) []float64 {
		if col == nil {
			return nil
		}
		out := make([]float64, len(rows))
		for i, row := range rows {
			out[i] = col[row]
		}
		return out
	}
	return RowIndex{
		X: take(r.X), Y: take(r.Y), Z: take(r.Z),
		DX: take(r.DX), DY: take(r.DY), DZ: take(r.DZ),
	}
}

// Clone returns a deep copy.
func (r RowIndex) Clone() RowIndex {
	rows := make([]int, r.Len())
	for i := range rows {
		rows[i] = i
	}
	return r.Take(rows)
}

// Equal returns true if both indices have identical levels and keys.
func (r RowIndex) Equal(o RowIndex) bool {
	if r.IsTensor() != o.IsTensor() || r.Len() != o.Len() {
		return false
	}
	a, b := r.Columns(), o.Columns()
	for c := range a {
		for i := range a[c] {
			if a[c][i] != b[c][i] {
				return false
			}
		}
	}
	return true
}

func (r RowIndex) less(order Order, i, j int) bool {
	var cols [][]float64
	if order == FOrder {
		cols = [][]float64{r.Z, r.Y, r.X}
	} else {
		cols = [][]float64{r.X, r.Y, r.Z}
	}
	if r.IsTensor() {
		cols = append(cols, r.DX, r.DY, r.DZ)
	}
	for _, col := range cols {
		if col[i] != col[j] {
			return col[i] < col[j]
		}
	}
	return false
}

// SortPermutation returns the row positions that put the index in the given
// ravel order.  The sort is stable so duplicate keys keep their relative order.
func (r RowIndex) SortPermutation(order Order) []int {
	perm := make([]int, r.Len())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return r.less(order, perm[a], perm[b])
	})
	return perm
}

// IsSorted returns true if the index is already in the given ravel order.
func (r RowIndex) IsSorted(order Order) bool {
	for i := 1; i < r.Len(); i++ {
		if r.less(order, i, i-1) {
			return false
		}
	}
	return true
}

// Unique returns the sorted distinct values of a column.
func Unique(col []float64) []float64 {
	if len(col) == 0 {
		return nil
	}
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
