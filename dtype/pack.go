package dtype

import (
	"encoding/hex"
	"fmt"
)

// RoundUp rounds x up to the next multiple of m.
func RoundUp(x, m int) int {
	if m <= 0 {
		panic("multiple must be positive")
	}

	return (x + m - 1) / m * m
}

// PackRow packs vals into a big-endian byte slice holding padBits bits.
// The first value lands in the most significant used bits and the unused
// leading bits are zero. If reverse is set, the values are packed in
// reverse order.
func PackRow(vals []int64, t NumericType, padBits int, reverse bool) ([]byte, error) {
	used := len(vals) * t.bits
	if padBits < used {
		return nil, fmt.Errorf("%d values of %s need %d bits, only %d available",
			len(vals), t.name, used, padBits)
	}

	out := make([]byte, (padBits+7)/8)

	for i := range vals {
		v := vals[i]
		if reverse {
			v = vals[len(vals)-1-i]
		}

		pattern, err := t.Bits(v)
		if err != nil {
			return nil, err
		}

		base := (len(vals) - 1 - i) * t.bits
		for b := 0; b < t.bits; b++ {
			if pattern>>b&1 == 0 {
				continue
			}

			pos := base + b
			out[len(out)-1-pos/8] |= 1 << (pos % 8)
		}
	}

	return out, nil
}

// HexRow renders the packed row as lowercase hex digits, one digit per four
// bits of padBits. padBits must be a multiple of four.
func HexRow(vals []int64, t NumericType, padBits int) (string, error) {
	if padBits%4 != 0 {
		return "", fmt.Errorf("hex padding of %d bits is not a multiple of 4", padBits)
	}

	packed, err := PackRow(vals, t, padBits, false)
	if err != nil {
		return "", err
	}

	s := hex.EncodeToString(packed)

	return s[len(s)-padBits/4:], nil
}

// PackedShape returns the shape of a tensor once its innermost dimension is
// bit-packed into bytes.
func PackedShape(shape []int, t NumericType) []int {
	if len(shape) == 0 {
		return nil
	}

	out := append([]int(nil), shape[:len(shape)-1]...)
	inner := RoundUp(shape[len(shape)-1]*t.bits, 8) / 8

	return append(out, inner)
}
