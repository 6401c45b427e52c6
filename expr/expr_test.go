package expr

import (
	"errors"
	"math"
	"testing"

	"github.com/janelia-flyem/bgrid/bgrid"
)

func testEnv() MapEnv {
	return MapEnv{
		"attr1":    Numbers([]float64{1, 2, 3, 4}),
		"attr2":    Numbers([]float64{10, 20, math.NaN(), 40}),
		"rock":     Texts([]string{"ore", "waste", "", "ore"}, []bool{true, true, false, true}),
		"Fe pct":   Numbers([]float64{50, 60, 70, 80}),
		"dry_mass": Numbers([]float64{2, 2, 2, 2}),
	}
}

func TestArithmetic(t *testing.T) {
	testCases := []struct {
		src  string
		want []float64
	}{
		{"attr1 + attr2", []float64{11, 22, math.NaN(), 44}},
		{"attr1 * 2", []float64{2, 4, 6, 8}},
		{"attr1", []float64{1, 2, 3, 4}},
		{"-attr1 + 10 / dry_mass", []float64{4, 3, 2, 1}},
		{"(attr1 + 1) * (attr1 - 1)", []float64{0, 3, 8, 15}},
		{"`Fe pct` / 100", []float64{0.5, 0.6, 0.7, 0.8}},
		{"1.5e1", []float64{15, 15, 15, 15}},
	}
	for _, tc := range testCases {
		e, err := Parse(tc.src)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.src, err)
			continue
		}
		got, err := e.EvalNumbers(testEnv(), 4)
		if err != nil {
			t.Errorf("Eval(%q): %v", tc.src, err)
			continue
		}
		for i := range tc.want {
			same := got[i] == tc.want[i] || (math.IsNaN(got[i]) && math.IsNaN(tc.want[i]))
			if !same {
				t.Errorf("Eval(%q) = %v, want %v", tc.src, got, tc.want)
				break
			}
		}
	}
}

func TestQueries(t *testing.T) {
	testCases := []struct {
		src  string
		want []bool
	}{
		{"attr1 > 2", []bool{false, false, true, true}},
		{"attr2 >= 20 and attr1 < 4", []bool{false, true, false, false}},
		{"attr1 == 1 or attr1 == 4", []bool{true, false, false, true}},
		{"not attr1 <= 2", []bool{false, false, true, true}},
		{"rock == 'ore'", []bool{true, false, false, true}},
		{"rock != \"ore\"", []bool{false, true, true, false}},
		{"attr2 != attr2", []bool{false, false, true, false}},
		{"(attr1 > 1) & ~(rock == 'waste') | attr1 == 1", []bool{true, false, true, true}},
	}
	for _, tc := range testCases {
		e, err := Parse(tc.src)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.src, err)
			continue
		}
		got, err := e.EvalMask(testEnv(), 4)
		if err != nil {
			t.Errorf("Eval(%q): %v", tc.src, err)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("Eval(%q) = %v, want %v", tc.src, got, tc.want)
				break
			}
		}
	}
}

func TestNames(t *testing.T) {
	e, err := Parse("attr1 + attr2 * attr1 > `Fe pct`")
	if err != nil {
		t.Fatal(err)
	}
	got := e.Names()
	want := []string{"attr1", "attr2", "Fe pct"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names = %v, want %v", got, want)
		}
	}
}

func TestErrors(t *testing.T) {
	for _, src := range []string{"attr1 +", "(attr1", "attr1 $ 2", "'open", "attr1 attr2", ""} {
		if _, err := Parse(src); !errors.Is(err, bgrid.ErrValue) {
			t.Errorf("Parse(%q) error = %v, want ErrValue", src, err)
		}
	}

	for _, src := range []string{"rock + 1", "attr1 and attr2", "rock > 1", "not attr1"} {
		e, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if _, err := e.Eval(testEnv(), 4); !errors.Is(err, bgrid.ErrValue) {
			t.Errorf("Eval(%q) error = %v, want ErrValue", src, err)
		}
	}

	e, _ := Parse("grade > 1")
	_, err := e.EvalMask(testEnv(), 4)
	var unknown *bgrid.UnknownNamesError
	if !errors.As(err, &unknown) || unknown.Names[0] != "grade" {
		t.Errorf("unknown name error = %v", err)
	}

	e, _ = Parse("attr1 + 1")
	if _, err := e.EvalMask(testEnv(), 4); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("numeric expression as query: got %v", err)
	}
}
