package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

var axisNames = [3]string{"x", "y", "z"}

// FromRowIndex infers an axis-aligned tensor geometry from a row index in any
// order.  The index must hold exactly one row per combination of its distinct
// x, y and z values.  Cell widths come from the dx, dy, dz levels when present
// and otherwise from the constant centroid spacing along each axis.
func FromRowIndex(idx index.RowIndex) (*TensorGeometry, error) {
	if idx.Len() == 0 {
		return nil, fmt.Errorf("empty row index: %w", bgrid.ErrMalformedIndex)
	}
	if err := checkFinite(idx); err != nil {
		return nil, err
	}
	centroids := [3][]float64{idx.X, idx.Y, idx.Z}
	var levels [3][]float64
	for a := 0; a < 3; a++ {
		levels[a] = index.Unique(centroids[a])
	}
	if err := checkCartesian(idx, levels); err != nil {
		return nil, err
	}

	var widths [3][]float64
	for a := 0; a < 3; a++ {
		var err error
		if idx.IsTensor() {
			sizes := [3][]float64{idx.DX, idx.DY, idx.DZ}
			widths[a], err = widthsFromSizes(axisNames[a], centroids[a], sizes[a], levels[a])
		} else {
			widths[a], err = widthsFromSpacing(axisNames[a], levels[a])
		}
		if err != nil {
			return nil, err
		}
	}

	var corner bgrid.Vector3d
	for a := 0; a < 3; a++ {
		corner[a] = levels[a][0] - widths[a][0]/2
	}
	return NewTensor(corner, DefaultAxes, widths[0], widths[1], widths[2])
}

// RegularFromRowIndex infers a regular geometry, failing with ErrValue if any
// axis has non-uniform widths.
func RegularFromRowIndex(idx index.RowIndex) (*RegularGeometry, error) {
	t, err := FromRowIndex(idx)
	if err != nil {
		return nil, err
	}
	return t.ToRegular()
}

// New infers a geometry of the requested kind.
func New(kind Kind, idx index.RowIndex) (Geometry, error) {
	switch kind {
	case Regular:
		return RegularFromRowIndex(idx)
	case Tensor:
		return FromRowIndex(idx)
	default:
		return nil, fmt.Errorf("can't infer geometry of %s: %w", kind, bgrid.ErrValue)
	}
}

type centroidKey [3]float64

func checkFinite(idx index.RowIndex) error {
	cols := [6][]float64{idx.X, idx.Y, idx.Z, idx.DX, idx.DY, idx.DZ}
	names := [6]string{"x", "y", "z", "dx", "dy", "dz"}
	for c, col := range cols {
		for row, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s is %g at row %d: %w", names[c], v, row, bgrid.ErrMalformedIndex)
			}
		}
	}
	return nil
}

func checkCartesian(idx index.RowIndex, levels [3][]float64) error {
	n := idx.Len()
	want := len(levels[0]) * len(levels[1]) * len(levels[2])
	if n != want {
		return fmt.Errorf("%d rows but %d x %d x %d distinct centroids: %w",
			n, len(levels[0]), len(levels[1]), len(levels[2]), bgrid.ErrMalformedIndex)
	}
	seen := make(map[centroidKey]struct{}, n)
	for i := 0; i < n; i++ {
		k := centroidKey{idx.X[i], idx.Y[i], idx.Z[i]}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("duplicate centroid %v at row %d: %w", k, i, bgrid.ErrMalformedIndex)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// widthsFromSizes reshapes per-cell sizes into one width per centroid level.
func widthsFromSizes(name string, centroids, sizes, levels []float64) ([]float64, error) {
	widths := make([]float64, len(levels))
	set := make([]bool, len(levels))
	pos := make(map[float64]int, len(levels))
	for i, v := range levels {
		pos[v] = i
	}
	for row, c := range centroids {
		l := pos[c]
		if !set[l] {
			widths[l], set[l] = sizes[row], true
		} else if sizes[row] != widths[l] {
			return nil, fmt.Errorf("d%s varies (%g vs %g) at %s=%g: %w", name, widths[l], sizes[row], name, c, bgrid.ErrMalformedIndex)
		}
	}
	for l := 1; l < len(levels); l++ {
		gap := levels[l] - levels[l-1]
		want := (widths[l] + widths[l-1]) / 2
		if !scalar.EqualWithinAbsOrRel(gap, want, Tolerance, Tolerance) {
			return nil, fmt.Errorf("%s centroids %g and %g are %g apart but widths imply %g: %w",
				name, levels[l-1], levels[l], gap, want, bgrid.ErrMalformedIndex)
		}
	}
	return widths, nil
}

// widthsFromSpacing requires constant spacing.  A single level gets width 1.
func widthsFromSpacing(name string, levels []float64) ([]float64, error) {
	widths := make([]float64, len(levels))
	if len(levels) == 1 {
		widths[0] = 1
		return widths, nil
	}
	step := levels[1] - levels[0]
	for l := 1; l < len(levels); l++ {
		gap := levels[l] - levels[l-1]
		if !scalar.EqualWithinAbsOrRel(gap, step, Tolerance, Tolerance) {
			return nil, fmt.Errorf("%s centroid spacing is not uniform (%g vs %g): %w", name, gap, step, bgrid.ErrValue)
		}
	}
	for l := range widths {
		widths[l] = step
	}
	return widths, nil
}
