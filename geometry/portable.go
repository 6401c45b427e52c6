package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Portable is a language-neutral record of a geometry that reconstructs it
// exactly.
type Portable struct {
	Type      string      `json:"type"`
	Corner    [3]float64  `json:"corner"`
	AxisU     [3]float64  `json:"axis_u"`
	AxisV     [3]float64  `json:"axis_v"`
	AxisW     [3]float64  `json:"axis_w"`
	BlockSize *[3]float64 `json:"block_size,omitempty"`
	Shape     *[3]int     `json:"shape,omitempty"`
	TensorU   []float64   `json:"tensor_u,omitempty"`
	TensorV   []float64   `json:"tensor_v,omitempty"`
	TensorW   []float64   `json:"tensor_w,omitempty"`
}

func (g grid) portableFrame(kind Kind) Portable {
	return Portable{
		Type:   kind.String(),
		Corner: g.corner,
		AxisU:  g.axes[0],
		AxisV:  g.axes[1],
		AxisW:  g.axes[2],
	}
}

func (r *RegularGeometry) ToPortable() Portable {
	p := r.portableFrame(Regular)
	bs := r.blockSize
	shape := r.Shape()
	p.BlockSize = &bs
	p.Shape = &shape
	return p
}

func (t *TensorGeometry) ToPortable() Portable {
	p := t.portableFrame(Tensor)
	p.TensorU = t.Widths(0)
	p.TensorV = t.Widths(1)
	p.TensorW = t.Widths(2)
	return p
}

// FromPortable reconstructs a geometry.
func FromPortable(p Portable) (Geometry, error) {
	kind, err := ParseKind(p.Type)
	if err != nil {
		return nil, err
	}
	axes := Axes{p.AxisU, p.AxisV, p.AxisW}
	switch kind {
	case Regular:
		if p.BlockSize == nil || p.Shape == nil {
			return nil, fmt.Errorf("regular geometry record needs block_size and shape: %w", bgrid.ErrValue)
		}
		return NewRegular(p.Corner, axes, *p.BlockSize, *p.Shape)
	default:
		return NewTensor(p.Corner, axes, p.TensorU, p.TensorV, p.TensorW)
	}
}

// MarshalGeometry returns the JSON form of a geometry's portable record.
func MarshalGeometry(g Geometry) ([]byte, error) {
	return json.Marshal(g.ToPortable())
}

// UnmarshalGeometry parses the JSON form written by MarshalGeometry.
func UnmarshalGeometry(data []byte) (Geometry, error) {
	var p Portable
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad geometry record: %v: %w", err, bgrid.ErrValue)
	}
	return FromPortable(p)
}
