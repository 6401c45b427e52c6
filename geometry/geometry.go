/*
Package geometry describes the placement of a block grid in space.

A RegularGeometry has one block size per axis.  A TensorGeometry has a
sequence of cell widths per axis, which may vary.  Both are immutable: every
accessor returns copies and every transformation returns a new value.

Centroid coordinates are expressed in the grid frame: the corner plus the
distance travelled along each axis direction.  For the default axis-aligned
frame these are world coordinates.
*/
package geometry

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// Tolerance is the absolute and relative tolerance used when comparing widths
// and centroid spacing.
const Tolerance = 1e-9

// Kind is the variant of a grid element.
type Kind uint8

const (
	Regular Kind = iota + 1
	Tensor
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "RegularBlockModel"
	case Tensor:
		return "TensorGridBlockModel"
	default:
		return fmt.Sprintf("unknown kind %d", uint8(k))
	}
}

// ParseKind accepts either the type tag returned by String or a short name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "regular", "regularblockmodel":
		return Regular, nil
	case "tensor", "tensorgridblockmodel":
		return Tensor, nil
	default:
		return 0, fmt.Errorf("unknown block model kind %q: %w", s, bgrid.ErrValue)
	}
}

// Axes are the u, v, w directions of a grid.
type Axes [3]bgrid.Vector3d

// DefaultAxes is the axis-aligned frame.
var DefaultAxes = Axes{bgrid.AxisX, bgrid.AxisY, bgrid.AxisZ}

// Validate checks the axes form an orthonormal triad.
func (a Axes) Validate() error {
	if !bgrid.Orthonormal(a[0], a[1], a[2], 1e-6) {
		return fmt.Errorf("axes %s, %s, %s are not orthonormal: %w", a[0], a[1], a[2], bgrid.ErrValue)
	}
	return nil
}

// Geometry is implemented by *RegularGeometry and *TensorGeometry only.
type Geometry interface {
	Kind() Kind
	Corner() bgrid.Vector3d
	Axes() Axes
	Shape() [3]int
	NumCells() int

	// Widths returns the cell widths along axis 0 (u), 1 (v) or 2 (w).
	Widths(axis int) []float64

	// Centroids returns the cell centroid coordinates along an axis.
	Centroids(axis int) []float64

	// Extents returns the [min, max] coordinate along each axis.
	Extents() [3][2]float64

	// BoundingBox returns the u and v extents.
	BoundingBox() [2][2]float64

	// CellSizes returns the distinct (du, dv, dw) tuples present.
	CellSizes() []bgrid.Vector3d

	// IsRegular returns true if widths are uniform along every axis.
	IsRegular() bool

	// RowIndex enumerates every cell in C order.
	RowIndex() index.RowIndex

	// NearestCell returns the cell whose centroid is nearest to a grid-frame point.
	NearestCell(p bgrid.Vector3d) (Cell, bool)

	ToPortable() Portable

	isGeometry()
}

// Cell identifies one grid cell.
type Cell struct {
	IJK [3]int
	Key index.CellKey
}

// grid holds the state shared by both geometry variants.
type grid struct {
	corner bgrid.Vector3d
	axes   Axes
	widths [3][]float64
}

func newGrid(corner bgrid.Vector3d, axes Axes, widths [3][]float64) (grid, error) {
	if err := axes.Validate(); err != nil {
		return grid{}, err
	}
	g := grid{corner: corner, axes: axes}
	for a := 0; a < 3; a++ {
		if len(widths[a]) == 0 {
			return grid{}, fmt.Errorf("axis %d has no cells: %w", a, bgrid.ErrValue)
		}
		for i, w := range widths[a] {
			if !(w > 0) || math.IsInf(w, 0) {
				return grid{}, fmt.Errorf("axis %d cell %d has width %g, must be positive: %w", a, i, w, bgrid.ErrValue)
			}
		}
		g.widths[a] = append([]float64(nil), widths[a]...)
	}
	return g, nil
}

func (g grid) Corner() bgrid.Vector3d { return g.corner }

func (g grid) Axes() Axes { return g.axes }

func (g grid) Shape() [3]int {
	return [3]int{len(g.widths[0]), len(g.widths[1]), len(g.widths[2])}
}

func (g grid) NumCells() int {
	s := g.Shape()
	return s[0] * s[1] * s[2]
}

func (g grid) Widths(axis int) []float64 {
	return append([]float64(nil), g.widths[axis]...)
}

func (g grid) Centroids(axis int) []float64 {
	w := g.widths[axis]
	c := floats.CumSum(make([]float64, len(w)), w)
	for i := range c {
		c[i] += g.corner[axis] - w[i]/2
	}
	return c
}

func (g grid) Extents() [3][2]float64 {
	var ext [3][2]float64
	for a := 0; a < 3; a++ {
		ext[a] = [2]float64{g.corner[a], g.corner[a] + floats.Sum(g.widths[a])}
	}
	return ext
}

func (g grid) BoundingBox() [2][2]float64 {
	ext := g.Extents()
	return [2][2]float64{ext[0], ext[1]}
}

func (g grid) CellSizes() []bgrid.Vector3d {
	var sizes []bgrid.Vector3d
	for _, du := range index.Unique(g.widths[0]) {
		for _, dv := range index.Unique(g.widths[1]) {
			for _, dw := range index.Unique(g.widths[2]) {
				sizes = append(sizes, bgrid.Vector3d{du, dv, dw})
			}
		}
	}
	return sizes
}

func uniform(w []float64) bool {
	for _, v := range w[1:] {
		if !scalar.EqualWithinAbsOrRel(v, w[0], Tolerance, Tolerance) {
			return false
		}
	}
	return true
}

func (g grid) IsRegular() bool {
	return uniform(g.widths[0]) && uniform(g.widths[1]) && uniform(g.widths[2])
}

// rowIndex enumerates the cells with x slowest and z fastest.
func (g grid) rowIndex(withSizes bool) index.RowIndex {
	cx, cy, cz := g.Centroids(0), g.Centroids(1), g.Centroids(2)
	n := g.NumCells()
	idx := index.RowIndex{X: make([]float64, 0, n), Y: make([]float64, 0, n), Z: make([]float64, 0, n)}
	if withSizes {
		idx.DX = make([]float64, 0, n)
		idx.DY = make([]float64, 0, n)
		idx.DZ = make([]float64, 0, n)
	}
	for i := range cx {
		for j := range cy {
			for k := range cz {
				idx.X = append(idx.X, cx[i])
				idx.Y = append(idx.Y, cy[j])
				idx.Z = append(idx.Z, cz[k])
				if withSizes {
					idx.DX = append(idx.DX, g.widths[0][i])
					idx.DY = append(idx.DY, g.widths[1][j])
					idx.DZ = append(idx.DZ, g.widths[2][k])
				}
			}
		}
	}
	return idx
}

// nearest returns the index of the centroid closest to p, preferring the lower
// index on ties, or false if p is more than half an edge cell outside the axis
// or not finite.
func nearest(centroids, widths []float64, lo, hi, p float64) (int, bool) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	n := len(centroids)
	if p < lo-widths[0]/2 || p > hi+widths[n-1]/2 {
		return 0, false
	}
	j := sort.SearchFloat64s(centroids, p)
	switch {
	case j == 0:
		return 0, true
	case j == n:
		return n - 1, true
	}
	if p-centroids[j-1] <= centroids[j]-p {
		return j - 1, true
	}
	return j, true
}

func (g grid) NearestCell(p bgrid.Vector3d) (Cell, bool) {
	ext := g.Extents()
	var cell Cell
	var centroid [3]float64
	for a := 0; a < 3; a++ {
		c := g.Centroids(a)
		i, ok := nearest(c, g.widths[a], ext[a][0], ext[a][1], p[a])
		if !ok {
			return Cell{}, false
		}
		cell.IJK[a] = i
		centroid[a] = c[i]
	}
	cell.Key = index.CellKey{
		X: centroid[0], Y: centroid[1], Z: centroid[2],
		DX: g.widths[0][cell.IJK[0]], DY: g.widths[1][cell.IJK[1]], DZ: g.widths[2][cell.IJK[2]],
	}
	return cell, true
}

// WorldToGrid maps a world point into grid-frame coordinates.
func (g grid) WorldToGrid(p bgrid.Vector3d) bgrid.Vector3d {
	d := p.Subtract(g.corner)
	return bgrid.Vector3d{
		g.corner[0] + d.Dot(g.axes[0]),
		g.corner[1] + d.Dot(g.axes[1]),
		g.corner[2] + d.Dot(g.axes[2]),
	}
}

// GridToWorld is the inverse of WorldToGrid.
func (g grid) GridToWorld(p bgrid.Vector3d) bgrid.Vector3d {
	d := p.Subtract(g.corner)
	return g.corner.Add(g.axes[0].Scale(d[0])).Add(g.axes[1].Scale(d[1])).Add(g.axes[2].Scale(d[2]))
}

// Congruent returns true if two geometries describe exactly the same cells.
func Congruent(a, b Geometry) bool {
	if a.Corner() != b.Corner() || a.Axes() != b.Axes() {
		return false
	}
	for axis := 0; axis < 3; axis++ {
		if !floats.Equal(a.Widths(axis), b.Widths(axis)) {
			return false
		}
	}
	return true
}
