package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// EncodedName is the name of an integer-encoded row index.
const EncodedName = "encoded_xyz"

// Codec maps row index keys to mixed-radix integers.  Each level (x, y, z and,
// for tensor indices, dx, dy, dz) is quantized to its position among the
// distinct values observed when the codec was built.
type Codec struct {
	Names  []string    `json:"names"`
	Levels [][]float64 `json:"levels"`
}

// NewCodec records the distinct values of every level in the index.
func NewCodec(idx RowIndex) (*Codec, error) {
	c := &Codec{Names: idx.Names()}
	total := uint64(1)
	for _, col := range idx.Columns() {
		levels := Unique(col)
		if len(levels) == 0 {
			levels = []float64{}
		}
		c.Levels = append(c.Levels, levels)
		if n := uint64(len(levels)); n > 0 {
			if total > math.MaxInt64/n {
				return nil, fmt.Errorf("index cardinality overflows int64: %w", bgrid.ErrCodec)
			}
			total *= n
		}
	}
	return c, nil
}

// IsTensor returns true if the codec packs cell sizes.
func (c *Codec) IsTensor() bool {
	return len(c.Levels) == len(tensorLevels)
}

// Radices returns the per-level cardinalities.
func (c *Codec) Radices() []int {
	r := make([]int, len(c.Levels))
	for i, l := range c.Levels {
		r[i] = len(l)
	}
	return r
}

// Size returns one past the largest valid code.
func (c *Codec) Size() int64 {
	if len(c.Levels) == 0 {
		return 0
	}
	size := int64(1)
	for _, l := range c.Levels {
		size *= int64(len(l))
	}
	return size
}

func levelOf(levels []float64, v float64) (int, bool) {
	i := sort.SearchFloat64s(levels, v)
	if i < len(levels) && levels[i] == v {
		return i, true
	}
	return 0, false
}

// Encode packs each key into an int64 with x as the most significant digit.
// Codes are strictly increasing for a unique index in C order.
func (c *Codec) Encode(idx RowIndex) ([]int64, error) {
	cols := idx.Columns()
	if len(cols) != len(c.Levels) {
		return nil, fmt.Errorf("index has %d levels, codec expects %d: %w", len(cols), len(c.Levels), bgrid.ErrValue)
	}
	codes := make([]int64, idx.Len())
	for row := range codes {
		var code int64
		for d, col := range cols {
			lvl, found := levelOf(c.Levels[d], col[row])
			if !found {
				return nil, fmt.Errorf("%s value %g at row %d not in codec levels: %w", c.Names[d], col[row], row, bgrid.ErrCodec)
			}
			code = code*int64(len(c.Levels[d])) + int64(lvl)
		}
		codes[row] = code
	}
	return codes, nil
}

// Decode is the exact inverse of Encode.
func (c *Codec) Decode(codes []int64) (RowIndex, error) {
	size := c.Size()
	cols := make([][]float64, len(c.Levels))
	for d := range cols {
		cols[d] = make([]float64, len(codes))
	}
	for row, code := range codes {
		if code < 0 || code >= size {
			return RowIndex{}, fmt.Errorf("code %d at row %d outside [0, %d): %w", code, row, size, bgrid.ErrCodec)
		}
		for d := len(c.Levels) - 1; d >= 0; d-- {
			n := int64(len(c.Levels[d]))
			cols[d][row] = c.Levels[d][code%n]
			code /= n
		}
	}
	return FromLevels(c.Names, cols)
}

// EncodedIndex is a self-describing integer row index.
type EncodedIndex struct {
	Name  string  `json:"name"`
	Codes []int64 `json:"codes"`
	Codec *Codec  `json:"codec"`
}

// Encode builds a codec for the index and encodes it.
func Encode(idx RowIndex) (EncodedIndex, error) {
	c, err := NewCodec(idx)
	if err != nil {
		return EncodedIndex{}, err
	}
	codes, err := c.Encode(idx)
	if err != nil {
		return EncodedIndex{}, err
	}
	return EncodedIndex{Name: EncodedName, Codes: codes, Codec: c}, nil
}

// Decode recovers the row index.
func (e EncodedIndex) Decode() (RowIndex, error) {
	if e.Codec == nil {
		return RowIndex{}, fmt.Errorf("encoded index %q has no codec: %w", e.Name, bgrid.ErrCodec)
	}
	return e.Codec.Decode(e.Codes)
}

// Len returns the number of rows.
func (e EncodedIndex) Len() int {
	return len(e.Codes)
}

// Take returns the encoded index restricted to the given rows.
func (e EncodedIndex) Take(rows []int) EncodedIndex {
	codes := make([]int64, len(rows))
	for i, row := range rows {
		codes[i] = e.Codes[row]
	}
	return EncodedIndex{Name: e.Name, Codes: codes, Codec: e.Codec}
}
