package table

import (
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// SyntheticBlockModel returns a C-ordered test model with three columns:
// c_style_xyz counts cells with x slowest, f_style_zyx counts cells with z
// slowest, and depth is the distance of each centroid below the top surface.
// A tensor model carries dx, dy, dz index levels.
func SyntheticBlockModel(shape [3]int, blockSize [3]float64, corner bgrid.Vector3d, tensor bool) *Table {
	nx, ny, nz := shape[0], shape[1], shape[2]
	n := nx * ny * nz
	idx := index.RowIndex{X: make([]float64, n), Y: make([]float64, n), Z: make([]float64, n)}
	if tensor {
		idx.DX = make([]float64, n)
		idx.DY = make([]float64, n)
		idx.DZ = make([]float64, n)
	}
	cStyle := make([]float64, n)
	fStyle := make([]float64, n)
	depth := make([]float64, n)
	surface := corner[2] + float64(nz)*blockSize[2]

	row := 0
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				idx.X[row] = corner[0] + (float64(i)+0.5)*blockSize[0]
				idx.Y[row] = corner[1] + (float64(j)+0.5)*blockSize[1]
				idx.Z[row] = corner[2] + (float64(k)+0.5)*blockSize[2]
				if tensor {
					idx.DX[row], idx.DY[row], idx.DZ[row] = blockSize[0], blockSize[1], blockSize[2]
				}
				cStyle[row] = float64(row)
				fStyle[row] = float64(i + j*nx + k*nx*ny)
				depth[row] = surface - idx.Z[row]
				row++
			}
		}
	}
	t, _ := New(idx,
		NewFloat64("c_style_xyz", cStyle),
		NewFloat64("f_style_zyx", fStyle),
		NewFloat64("depth", depth),
	)
	return t
}
