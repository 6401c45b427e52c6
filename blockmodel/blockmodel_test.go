package blockmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/index"
	"github.com/janelia-flyem/bgrid/table"
)

func syntheticTable(tensor bool) *table.Table {
	return table.SyntheticBlockModel([3]int{5, 4, 3}, [3]float64{1, 1, 0.5}, bgrid.Vector3d{100, 200, 300}, tensor)
}

func reversed(t *table.Table) *table.Table {
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = len(rows) - 1 - i
	}
	return t.Take(rows)
}

func floatColumn(t *testing.T, tbl *table.Table, name string) []float64 {
	t.Helper()
	s, found := tbl.Column(name)
	if !found {
		t.Fatalf("column %q not in %v", name, tbl.ColumnNames())
	}
	values, err := table.Float64Values(s)
	if err != nil {
		t.Fatal(err)
	}
	return values
}

func TestTableToGridRoundTrip(t *testing.T) {
	tests := []struct {
		kind   geometry.Kind
		tensor bool
	}{
		{geometry.Regular, false},
		{geometry.Regular, true},
		{geometry.Tensor, true},
	}
	for _, tc := range tests {
		want := syntheticTable(tc.tensor)
		shuffled := reversed(want)
		before := shuffled.Clone()

		el, err := TableToGrid(shuffled, "bm", tc.kind)
		if err != nil {
			t.Fatalf("%s tensor=%t: %v", tc.kind, tc.tensor, err)
		}
		if el.Kind() != tc.kind {
			t.Errorf("got kind %s, want %s", el.Kind(), tc.kind)
		}
		if !shuffled.Equal(before) {
			t.Errorf("%s: caller table was reordered", tc.kind)
		}
		if el.Geometry.Shape() != [3]int{5, 4, 3} {
			t.Errorf("got shape %v", el.Geometry.Shape())
		}
		if el.Geometry.Corner() != (bgrid.Vector3d{100, 200, 300}) {
			t.Errorf("got corner %v", el.Geometry.Corner())
		}

		got, err := GridToTable(el, ReadOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if tc.kind == geometry.Regular {
			// A regular element reads back with x, y, z levels only.
			want, _ = table.New(index.RowIndex{X: want.Index.X, Y: want.Index.Y, Z: want.Index.Z}, want.Columns()...)
		}
		if !got.Equal(want) {
			t.Errorf("%s tensor=%t: round trip differs", tc.kind, tc.tensor)
		}
		for i, v := range floatColumn(t, got, "c_style_xyz") {
			if v != float64(i) {
				t.Fatalf("c_style_xyz[%d] = %g; rows are not in C order", i, v)
			}
		}
	}
}

func irregularTable(t *testing.T) *table.Table {
	idx, err := index.NewTensor(
		[]float64{0.5, 2, 0.5, 2},
		[]float64{0.5, 0.5, 1.5, 1.5},
		[]float64{0.5, 0.5, 0.5, 0.5},
		[]float64{1, 2, 1, 2},
		[]float64{1, 1, 1, 1},
		[]float64{1, 1, 1, 1},
	)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := table.New(idx, table.NewFloat64("grade", []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestRegularGate(t *testing.T) {
	tbl := irregularTable(t)
	if _, err := TableToGrid(tbl, "bm", geometry.Regular); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("regular from non-uniform widths: got %v, want ErrValue", err)
	}
	el, err := TableToGrid(tbl, "bm", geometry.Tensor)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2}, el.Geometry.Widths(0)); diff != "" {
		t.Errorf("x widths (-want +got):\n%s", diff)
	}
	// C order puts y fastest here since z has one level.
	got, err := GridToTable(el, ReadOptions{Attributes: []string{"grade"}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 3, 2, 4}, floatColumn(t, got, "grade")); diff != "" {
		t.Errorf("grade (-want +got):\n%s", diff)
	}

	regular := syntheticTable(false)
	if _, err := TableToGrid(regular, "bm", geometry.Tensor); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("tensor from x,y,z index: got %v, want ErrValue", err)
	}
	enc, err := index.Encode(regular.Index)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := table.NewEncoded(enc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TableToGrid(encoded, "bm", geometry.Regular); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("encoded table: got %v, want ErrValue", err)
	}
}

// flagSeries is a column type the attribute codec does not support.
type flagSeries struct {
	name  string
	flags []bool
}

func (s flagSeries) Name() string       { return s.name }
func (s flagSeries) DType() table.DType { return table.DType(99) }
func (s flagSeries) Len() int           { return len(s.flags) }
func (s flagSeries) IsNull(int) bool    { return false }
func (s flagSeries) NullCount() int     { return 0 }
func (s flagSeries) Rename(name string) table.Series {
	return flagSeries{name: name, flags: s.flags}
}
func (s flagSeries) Take(rows []int) table.Series {
	out := flagSeries{name: s.name, flags: make([]bool, len(rows))}
	for i, r := range rows {
		out.flags[i] = s.flags[r]
	}
	return out
}

func TestUnsupportedColumn(t *testing.T) {
	tbl := reversed(syntheticTable(false))
	if err := tbl.AddColumn(flagSeries{name: "flag", flags: make([]bool, tbl.Len())}); err != nil {
		t.Fatal(err)
	}
	first := tbl.Index.Key(0)
	if _, err := TableToGrid(tbl, "bm", geometry.Regular); !errors.Is(err, bgrid.ErrData) {
		t.Fatalf("got %v, want ErrData", err)
	}
	if tbl.Index.Key(0) != first {
		t.Errorf("caller table was reordered after a failed conversion")
	}
}

func testElement(t *testing.T) *Element {
	t.Helper()
	el, err := TableToGrid(syntheticTable(false), "bm", geometry.Regular)
	if err != nil {
		t.Fatal(err)
	}
	return el
}

func TestQueryAndIndexFilter(t *testing.T) {
	el := testElement(t)

	if _, err := GridToTable(el, ReadOptions{Query: "depth > 1", IndexFilter: []int{0}}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("query with index filter: got %v, want ErrValue", err)
	}

	got, err := GridToTable(el, ReadOptions{Attributes: []string{"c_style_xyz"}, Query: "depth > 1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 20 {
		t.Fatalf("got %d rows, want 20", got.Len())
	}
	if got.NumColumns() != 1 {
		t.Errorf("query column leaked into output: %v", got.ColumnNames())
	}
	for i, z := range got.Index.Z {
		if z != 300.25 {
			t.Fatalf("row %d has z %g, want the deepest layer", i, z)
		}
	}

	got, err = GridToTable(el, ReadOptions{Attributes: []string{"c_style_xyz"}, IndexFilter: []int{0, 59, 7}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 59, 7}, floatColumn(t, got, "c_style_xyz")); diff != "" {
		t.Errorf("filtered rows (-want +got):\n%s", diff)
	}

	if _, err := GridToTable(el, ReadOptions{IndexFilter: []int{60}}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("out of range filter: got %v, want ErrValue", err)
	}
	if _, err := GridToTable(el, ReadOptions{Query: "missing > 1"}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("query on unknown name: got %v, want ErrValue", err)
	}
}

func TestEncodeIndex(t *testing.T) {
	el := testElement(t)
	got, err := GridToTable(el, ReadOptions{EncodeIndex: true, IndexFilter: []int{3, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Encoded == nil || got.Encoded.Name != index.EncodedName {
		t.Fatalf("expected an encoded index, got %+v", got.Encoded)
	}
	decoded, err := got.Encoded.Decode()
	if err != nil {
		t.Fatal(err)
	}
	want := el.Geometry.RowIndex().Take([]int{3, 1})
	if !decoded.Equal(want) {
		t.Errorf("decoded index %+v, want %+v", decoded, want)
	}
	if got.Encoded.Codes[0] <= got.Encoded.Codes[1] {
		t.Errorf("codes %v should follow C order positions", got.Encoded.Codes)
	}
}

func TestUnknownAttributes(t *testing.T) {
	el := testElement(t)
	_, err := GridToTable(el, ReadOptions{Attributes: []string{"depth", "au", "cu"}})
	var unknown *bgrid.UnknownNamesError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownNamesError", err)
	}
	if diff := cmp.Diff([]string{"au", "cu"}, unknown.Names); diff != "" {
		t.Errorf("unknown names (-want +got):\n%s", diff)
	}
	if !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("UnknownNamesError should match ErrValue")
	}
}

func TestCalculatedAttributes(t *testing.T) {
	el := testElement(t)
	err := el.AddCalculated(
		Calculated{Name: "calc", Expression: "c_style_xyz + depth"},
		Calculated{Name: "double", Expression: "calc * 2"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c_style_xyz", "f_style_zyx", "depth", "calc", "double"}, el.AvailableNames()); diff != "" {
		t.Errorf("available names (-want +got):\n%s", diff)
	}

	got, err := GridToTable(el, ReadOptions{Attributes: []string{"double", "c_style_xyz"}})
	if err != nil {
		t.Fatal(err)
	}
	double := floatColumn(t, got, "double")
	cStyle := floatColumn(t, got, "c_style_xyz")
	depth := floatColumn(t, syntheticTable(false), "depth")
	for i := range double {
		if want := 2 * (cStyle[i] + depth[i]); double[i] != want {
			t.Fatalf("double[%d] = %g, want %g", i, double[i], want)
		}
	}

	got, err = GridToTable(el, ReadOptions{Attributes: []string{"c_style_xyz"}, Query: "double > 100"})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range floatColumn(t, got, "c_style_xyz") {
		if v < 48 {
			t.Errorf("row with c_style_xyz %g should not pass double > 100", v)
		}
	}
}

func TestCalculatedErrors(t *testing.T) {
	el := testElement(t)
	if err := el.AddCalculated(Calculated{Name: "ok", Expression: "depth"}); err != nil {
		t.Fatal(err)
	}
	before := append(CalculatedAttributes(nil), el.Metadata.CalculatedAttributes...)

	err := el.AddCalculated(
		Calculated{Name: "a", Expression: "b + 1"},
		Calculated{Name: "b", Expression: "a * 2"},
	)
	var cycle *bgrid.CycleError
	if !errors.As(err, &cycle) {
		t.Errorf("cyclic definitions: got %v, want CycleError", err)
	} else if diff := cmp.Diff([]string{"a", "b", "a"}, cycle.Path); diff != "" {
		t.Errorf("cycle path (-want +got):\n%s", diff)
	}

	err = el.AddCalculated(Calculated{Name: "c", Expression: "nope + other"})
	var unknown *bgrid.UnknownNamesError
	if !errors.As(err, &unknown) {
		t.Errorf("unknown reference: got %v, want UnknownNamesError", err)
	} else if diff := cmp.Diff([]string{"nope", "other"}, unknown.Names); diff != "" {
		t.Errorf("unknown names (-want +got):\n%s", diff)
	}

	if err := el.AddCalculated(Calculated{Name: "depth", Expression: "1"}); !errors.Is(err, bgrid.ErrAlreadyExists) {
		t.Errorf("shadowing a stored attribute: got %v, want ErrAlreadyExists", err)
	}
	if err := el.AddCalculated(Calculated{Name: "bad", Expression: "depth +"}); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("syntax error: got %v, want ErrValue", err)
	}
	if diff := cmp.Diff(before, el.Metadata.CalculatedAttributes); diff != "" {
		t.Errorf("failed additions changed the element (-want +got):\n%s", diff)
	}
}

func TestAttributeEdits(t *testing.T) {
	el := testElement(t)
	depth, _ := el.Attribute("depth")
	if err := el.SetAttribute(depth, false); !errors.Is(err, bgrid.ErrAlreadyExists) {
		t.Errorf("set existing without overwrite: got %v", err)
	}
	if err := el.SetAttribute(depth, true); err != nil {
		t.Errorf("set existing with overwrite: %v", err)
	}
	if err := el.SetAttribute(depth.Take([]int{0, 1}), true); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("set short attribute: got %v, want ErrValue", err)
	}
	if err := el.AddCalculated(Calculated{Name: "half", Expression: "depth / 2"}); err != nil {
		t.Fatal(err)
	}
	if err := el.RemoveAttribute("half"); err != nil {
		t.Error(err)
	}
	if err := el.RemoveAttribute("f_style_zyx"); err != nil {
		t.Error(err)
	}
	if err := el.RemoveAttribute("f_style_zyx"); !errors.Is(err, bgrid.ErrNotFound) {
		t.Errorf("remove twice: got %v, want ErrNotFound", err)
	}
	if diff := cmp.Diff([]string{"c_style_xyz", "depth"}, el.AvailableNames()); diff != "" {
		t.Errorf("names after edits (-want +got):\n%s", diff)
	}
	if err := el.Validate(); err != nil {
		t.Error(err)
	}
}

func TestMetadataJSON(t *testing.T) {
	md := Metadata{
		CalculatedAttributes: CalculatedAttributes{
			{Name: "z_first", Expression: "a + 1"},
			{Name: "a_second", Expression: "z_first * 2"},
		},
		Schema: json.RawMessage(`{"type":"object"}`),
		Extra:  map[string]json.RawMessage{"owner": json.RawMessage(`"geology"`)},
	}
	data, err := json.Marshal(md)
	if err != nil {
		t.Fatal(err)
	}
	var got Metadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"z_first", "a_second"}, got.CalculatedAttributes.Names()); diff != "" {
		t.Errorf("calculated order (-want +got):\n%s", diff)
	}
	if string(got.Schema) != `{"type":"object"}` {
		t.Errorf("schema = %s", got.Schema)
	}
	if string(got.Extra["owner"]) != `"geology"` {
		t.Errorf("extra = %v", got.Extra)
	}
	if err := json.Unmarshal([]byte(`{"calculated_attributes": ["a"]}`), &got); !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("array of calculated attributes: got %v, want ErrValue", err)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, composite, member string
	}{
		{"bm", "", "bm"},
		{"pit.bm", "pit", "bm"},
		{"site.pit.bm", "site.pit", "bm"},
	}
	for _, tc := range tests {
		c, m := SplitName(tc.name)
		if c != tc.composite || m != tc.member {
			t.Errorf("SplitName(%q) = %q, %q; want %q, %q", tc.name, c, m, tc.composite, tc.member)
		}
	}
}

type mapGetter map[string]*Element

func (g mapGetter) GetElement(ctx context.Context, name string) (*Element, error) {
	el, found := g[name]
	if !found {
		return nil, fmt.Errorf("element %q: %w", name, bgrid.ErrNotFound)
	}
	return el, nil
}

func TestReadMany(t *testing.T) {
	first := testElement(t)
	second, err := TableToGrid(syntheticTable(false), "other", geometry.Regular)
	if err != nil {
		t.Fatal(err)
	}
	second.Attributes[0].Name = "grade"
	offset := table.SyntheticBlockModel([3]int{5, 4, 3}, [3]float64{1, 1, 0.5}, bgrid.Vector3d{0, 0, 0}, false)
	third, err := TableToGrid(offset, "offset", geometry.Regular)
	if err != nil {
		t.Fatal(err)
	}
	g := mapGetter{"bm": first, "other": second, "offset": third}
	ctx := context.Background()

	got, err := ReadMany(ctx, g, []Request{
		{Name: "bm", Attributes: []string{"depth"}},
		{Name: "other", Attributes: []string{"grade"}},
	}, "grade < 10")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"depth", "grade"}, got.ColumnNames()); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if got.Len() != 10 {
		t.Errorf("got %d rows, want 10", got.Len())
	}

	_, err = ReadMany(ctx, g, []Request{{Name: "bm"}, {Name: "offset"}}, "")
	if !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("non-congruent read: got %v, want ErrValue", err)
	}
	_, err = ReadMany(ctx, g, []Request{{Name: "bm"}, {Name: "other", Attributes: []string{"depth"}}}, "")
	if !errors.Is(err, bgrid.ErrValue) {
		t.Errorf("duplicate column: got %v, want ErrValue", err)
	}
	_, err = ReadMany(ctx, g, []Request{{Name: "bm"}, {Name: "missing"}}, "")
	if !errors.Is(err, bgrid.ErrNotFound) {
		t.Errorf("missing element: got %v, want ErrNotFound", err)
	}
}
