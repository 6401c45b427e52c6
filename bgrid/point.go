package bgrid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vector3d is a 3D vector of 64-bit floats used for grid corners, axis
// directions and query points.
type Vector3d [3]float64

// Unit axis directions.
var (
	AxisX = Vector3d{1, 0, 0}
	AxisY = Vector3d{0, 1, 0}
	AxisZ = Vector3d{0, 0, 1}
)

func StringToVector3d(str, separator string) (Vector3d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return Vector3d{}, fmt.Errorf("can't convert string '%s' (length %d) to Vector3d", str, len(elems))
	}
	var v Vector3d
	for i, elem := range elems {
		f, err := strconv.ParseFloat(strings.TrimSpace(elem), 64)
		if err != nil {
			return Vector3d{}, err
		}
		v[i] = f
	}
	return v, nil
}

// Distance returns the distance between two points a and b.
func (v Vector3d) Distance(x Vector3d) float64 {
	return x.Subtract(v).Norm()
}

func (v Vector3d) Subtract(x Vector3d) Vector3d {
	return Vector3d{v[0] - x[0], v[1] - x[1], v[2] - x[2]}
}

func (v Vector3d) Add(x Vector3d) Vector3d {
	return Vector3d{v[0] + x[0], v[1] + x[1], v[2] + x[2]}
}

func (v Vector3d) Scale(s float64) Vector3d {
	return Vector3d{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vector3d) Dot(x Vector3d) float64 {
	return v[0]*x[0] + v[1]*x[1] + v[2]*x[2]
}

func (v Vector3d) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// ApproxEqual returns true if every component differs by no more than tol.
func (v Vector3d) ApproxEqual(x Vector3d, tol float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(v[i]-x[i]) > tol {
			return false
		}
	}
	return true
}

func (v Vector3d) String() string {
	return fmt.Sprintf("(%g,%g,%g)", v[0], v[1], v[2])
}

// Orthonormal returns true if u, v, w are mutually orthogonal unit vectors
// within the given tolerance.
func Orthonormal(u, v, w Vector3d, tol float64) bool {
	for _, a := range []Vector3d{u, v, w} {
		if math.Abs(a.Norm()-1) > tol {
			return false
		}
	}
	return math.Abs(u.Dot(v)) <= tol && math.Abs(u.Dot(w)) <= tol && math.Abs(v.Dot(w)) <= tol
}
