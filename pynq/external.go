package pynq

import (
	"fmt"
	"math"
	"slices"

	"github.com/sarchlab/dataflowgen/dtype"
	"gonum.org/v1/gonum/mat"
)

// ToExternal packs a parameter matrix for a wrap-mode DMA. Each row is
// packed into roundup(cols*bits, 4) bits, its bytes are reversed so the
// least significant byte comes first, and the rows are concatenated.
func ToExternal(init mat.Matrix, t dtype.NumericType) ([]uint8, error) {
	rows, cols := init.Dims()
	width := dtype.RoundUp(cols*t.BitWidth(), 4)

	out := make([]uint8, 0, rows*dtype.RoundUp(width, 8)/8)
	vals := make([]int64, cols)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			f := init.At(r, c)
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("external parameter %v at (%d, %d) is not an integer", f, r, c)
			}

			vals[c] = int64(f)
		}

		packed, err := dtype.PackRow(vals, t, width, false)
		if err != nil {
			return nil, err
		}

		slices.Reverse(packed)
		out = append(out, packed...)
	}

	return out, nil
}
