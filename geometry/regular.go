package geometry

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// RegularGeometry is a grid with a single block size per axis.
type RegularGeometry struct {
	grid
	blockSize [3]float64
}

// NewRegular returns a regular geometry.  Block sizes and shape must be positive.
func NewRegular(corner bgrid.Vector3d, axes Axes, blockSize [3]float64, shape [3]int) (*RegularGeometry, error) {
	var widths [3][]float64
	for a := 0; a < 3; a++ {
		if shape[a] <= 0 {
			return nil, fmt.Errorf("shape %v must be positive: %w", shape, bgrid.ErrValue)
		}
		widths[a] = make([]float64, shape[a])
		for i := range widths[a] {
			widths[a][i] = blockSize[a]
		}
	}
	g, err := newGrid(corner, axes, widths)
	if err != nil {
		return nil, err
	}
	return &RegularGeometry{grid: g, blockSize: blockSize}, nil
}

func (r *RegularGeometry) Kind() Kind { return Regular }

func (r *RegularGeometry) isGeometry() {}

// BlockSize returns the size of every block.
func (r *RegularGeometry) BlockSize() [3]float64 { return r.blockSize }

// RowIndex enumerates centroids only since block size is implicit.
func (r *RegularGeometry) RowIndex() index.RowIndex {
	return r.rowIndex(false)
}

// NearestCell returns the cell closest to p.  Its key carries no block size,
// matching the keys of RowIndex.
func (r *RegularGeometry) NearestCell(p bgrid.Vector3d) (Cell, bool) {
	cell, ok := r.grid.NearestCell(p)
	cell.Key.DX, cell.Key.DY, cell.Key.DZ = 0, 0, 0
	return cell, ok
}

// ToTensor returns the equivalent tensor geometry.
func (r *RegularGeometry) ToTensor() *TensorGeometry {
	return &TensorGeometry{grid: r.grid}
}

func (r *RegularGeometry) String() string {
	return fmt.Sprintf("regular grid corner %s, block size %v, shape %v", r.corner, r.blockSize, r.Shape())
}
