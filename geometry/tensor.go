package geometry

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// TensorGeometry is a grid with per-axis cell widths that may vary.
type TensorGeometry struct {
	grid
}

// NewTensor returns a tensor geometry.  Every width must be positive.
func NewTensor(corner bgrid.Vector3d, axes Axes, tensorU, tensorV, tensorW []float64) (*TensorGeometry, error) {
	g, err := newGrid(corner, axes, [3][]float64{tensorU, tensorV, tensorW})
	if err != nil {
		return nil, err
	}
	return &TensorGeometry{grid: g}, nil
}

func (t *TensorGeometry) Kind() Kind { return Tensor }

func (t *TensorGeometry) isGeometry() {}

// RowIndex enumerates centroids and cell sizes.
func (t *TensorGeometry) RowIndex() index.RowIndex {
	return t.rowIndex(true)
}

// ToRegular returns the equivalent regular geometry, or ErrValue if any axis
// has non-uniform widths.
func (t *TensorGeometry) ToRegular() (*RegularGeometry, error) {
	if !t.IsRegular() {
		return nil, fmt.Errorf("tensor geometry has non-uniform cell widths, can't be regular: %w", bgrid.ErrValue)
	}
	var blockSize [3]float64
	for a := 0; a < 3; a++ {
		blockSize[a] = t.widths[a][0]
	}
	return NewRegular(t.corner, t.axes, blockSize, t.Shape())
}

func (t *TensorGeometry) String() string {
	return fmt.Sprintf("tensor grid corner %s, shape %v, %d distinct cell sizes", t.corner, t.Shape(), len(t.CellSizes()))
}
