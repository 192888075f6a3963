// Package dtype defines the fixed-point integer datatypes that flow through
// the dataflow hardware.
package dtype

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxBitWidth is the widest integer type that can be described. Values are
// carried in int64, so one bit is kept as headroom for unsigned types.
const MaxBitWidth = 63

// ErrUnknownName is returned when a datatype name cannot be resolved.
var ErrUnknownName = errors.New("unknown datatype")

// ErrNotAllowed is returned when a value is outside the range of a datatype.
var ErrNotAllowed = errors.New("value not allowed by datatype")

type kind int

const (
	kindInteger kind = iota
	kindBipolar
)

// NumericType describes an integer datatype by its bit width and signedness.
// The zero value is not a valid type; obtain one through Lookup.
type NumericType struct {
	name   string
	bits   int
	signed bool
	kind   kind
}

// Lookup resolves a symbolic datatype name such as "UINT8", "INT4",
// "BINARY" or "BIPOLAR".
func Lookup(name string) (NumericType, error) {
	switch name {
	case "BINARY":
		return NumericType{name: name, bits: 1}, nil
	case "BIPOLAR":
		return NumericType{name: name, bits: 1, signed: true, kind: kindBipolar}, nil
	}

	var (
		prefix string
		signed bool
	)

	switch {
	case strings.HasPrefix(name, "UINT"):
		prefix = "UINT"
	case strings.HasPrefix(name, "INT"):
		prefix = "INT"
		signed = true
	default:
		return NumericType{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	width := strings.TrimPrefix(name, prefix)

	bits, err := strconv.Atoi(width)
	if err != nil || bits < 1 || bits > MaxBitWidth || strconv.Itoa(bits) != width {
		return NumericType{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	return NumericType{name: name, bits: bits, signed: signed}, nil
}

// MustLookup is like Lookup but panics on unknown names.
func MustLookup(name string) NumericType {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}

	return t
}

// Int returns the signed integer type with the given width.
func Int(bits int) NumericType {
	return MustLookup("INT" + strconv.Itoa(bits))
}

// Uint returns the unsigned integer type with the given width.
func Uint(bits int) NumericType {
	return MustLookup("UINT" + strconv.Itoa(bits))
}

// Name returns the symbolic name of the type.
func (t NumericType) Name() string {
	return t.name
}

// BitWidth returns the number of bits used to store one value.
func (t NumericType) BitWidth() int {
	return t.bits
}

// Signed reports whether the type can hold negative values.
func (t NumericType) Signed() bool {
	return t.signed
}

// IsZero reports whether t is the zero NumericType.
func (t NumericType) IsZero() bool {
	return t.bits == 0
}

// Min returns the smallest representable value.
func (t NumericType) Min() int64 {
	if t.kind == kindBipolar {
		return -1
	}

	if !t.signed {
		return 0
	}

	return -(int64(1) << (t.bits - 1))
}

// Max returns the largest representable value.
func (t NumericType) Max() int64 {
	if t.kind == kindBipolar {
		return 1
	}

	if !t.signed {
		return int64(1)<<t.bits - 1
	}

	return int64(1)<<(t.bits-1) - 1
}

// Allowed reports whether v can be represented by the type.
func (t NumericType) Allowed(v int64) bool {
	if t.kind == kindBipolar {
		return v == -1 || v == 1
	}

	return v >= t.Min() && v <= t.Max()
}

// Bits returns the bit pattern used to store v, right-aligned in a uint64.
func (t NumericType) Bits(v int64) (uint64, error) {
	if !t.Allowed(v) {
		return 0, fmt.Errorf("%w: %d for %s", ErrNotAllowed, v, t.name)
	}

	if t.kind == kindBipolar {
		return uint64((v + 1) / 2), nil
	}

	return uint64(v) & (uint64(1)<<t.bits - 1), nil
}

// String renders the type the way the host driver refers to it.
func (t NumericType) String() string {
	return fmt.Sprintf("DataType['%s']", t.name)
}

// SmallestFor returns the narrowest type able to hold v. Unsigned types are
// preferred over signed ones of the same width.
func SmallestFor(v int64) NumericType {
	if v == 0 || v == 1 {
		return MustLookup("BINARY")
	}

	if v > 0 {
		for bits := 1; bits <= MaxBitWidth; bits++ {
			t := Uint(bits)
			if v <= t.Max() {
				return t
			}
		}
	}

	for bits := 1; bits <= MaxBitWidth; bits++ {
		t := Int(bits)
		if t.Allowed(v) {
			return t
		}
	}

	return Int(MaxBitWidth)
}
