package bgrid

import (
	"math"
	"testing"
)

func TestVector3d(t *testing.T) {
	a := Vector3d{1, 1, 1}
	b := Vector3d{4, 5, 1}
	if d := a.Distance(b); d != 5 {
		t.Errorf("Distance(%s, %s) = %f, want 5", a, b, d)
	}
	if s := a.Add(b); s != (Vector3d{5, 6, 2}) {
		t.Errorf("Add gave %s", s)
	}
	if s := b.Subtract(a); s != (Vector3d{3, 4, 0}) {
		t.Errorf("Subtract gave %s", s)
	}
	if s := a.Scale(2); s != (Vector3d{2, 2, 2}) {
		t.Errorf("Scale gave %s", s)
	}
	if a.String() != "(1,1,1)" {
		t.Errorf("String gave %q", a.String())
	}
}

func TestStringToVector3d(t *testing.T) {
	v, err := StringToVector3d("100, 200.5,-3", ",")
	if err != nil {
		t.Fatal(err)
	}
	if v != (Vector3d{100, 200.5, -3}) {
		t.Errorf("got %s", v)
	}
	if _, err := StringToVector3d("1,2", ","); err == nil {
		t.Errorf("expected error on two components")
	}
}

func TestOrthonormal(t *testing.T) {
	if !Orthonormal(AxisX, AxisY, AxisZ, 1e-9) {
		t.Errorf("unit axes should be orthonormal")
	}
	r := 1 / math.Sqrt(2)
	u := Vector3d{r, r, 0}
	v := Vector3d{-r, r, 0}
	if !Orthonormal(u, v, AxisZ, 1e-9) {
		t.Errorf("rotated axes should be orthonormal")
	}
	if Orthonormal(u, AxisY, AxisZ, 1e-9) {
		t.Errorf("skewed axes reported orthonormal")
	}
}
