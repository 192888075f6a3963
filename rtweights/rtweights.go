// Package rtweights lays out runtime-writable parameters in the register
// address space of a node.
//
// Each channel owns a block of NextPowerOfTwo(steps) slots so the address
// decoder can split an address into channel and element bits. Values are
// stored as two's-complement bit patterns of the parameter datatype.
package rtweights

import (
	"bufio"
	"fmt"
	"math"
	"os"

	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/node"
	"gonum.org/v1/gonum/mat"
)

// DefaultStride is the address distance between consecutive elements.
const DefaultStride = 1

// NextPowerOfTwo returns the channel block size for n elements. It is 0 for
// n <= 0 and 2 for n == 1; decoders expect at least one element address bit.
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}

	if n == 1 {
		return 2
	}

	n--
	for n&(n-1) != 0 {
		n &= n - 1
	}

	return n << 1
}

// Encode returns the w-bit two's-complement pattern of v.
func Encode(v int64, w int) uint64 {
	return uint64(v) & (uint64(1)<<w - 1)
}

// Decode interprets a w-bit pattern as a signed value. Widths below one
// bit decode to 0.
func Decode(u uint64, w int) int64 {
	if w < 1 {
		return 0
	}

	u &= uint64(1)<<w - 1
	if u>>(w-1)&1 == 1 {
		return int64(u) - int64(1)<<w
	}

	return int64(u)
}

// Key names the register of one parameter element.
func Key(channel, element int) string {
	return fmt.Sprintf("axilite_ch%d_w%d", channel, element)
}

// Entry is one register write.
type Entry struct {
	Key     string
	Channel int
	Element int
	Offset  uint64
	Value   uint64
}

// AddressMap is the register layout of one parameter block.
type AddressMap struct {
	dt       dtype.NumericType
	stride   int
	boundary int
	channels int
	steps    int
	entries  []Entry
	index    map[string]int
}

// Build lays out block, a channels x steps matrix of integral values, using
// the given element stride. A stride of 0 selects DefaultStride.
func Build(block mat.Matrix, dt dtype.NumericType, stride int) (*AddressMap, error) {
	if stride < 0 {
		return nil, &node.ConfigError{Node: "", Attr: "address_stride",
			Reason: fmt.Sprintf("must not be negative, got %d", stride)}
	}

	if stride == 0 {
		stride = DefaultStride
	}

	channels, steps := block.Dims()
	boundary := NextPowerOfTwo(steps)

	m := &AddressMap{
		dt:       dt,
		stride:   stride,
		boundary: boundary,
		channels: channels,
		steps:    steps,
		entries:  make([]Entry, 0, channels*steps),
		index:    make(map[string]int, channels*steps),
	}

	for c := 0; c < channels; c++ {
		base := uint64(c * boundary * stride)

		for e := 0; e < steps; e++ {
			v, err := integral(block.At(c, e))
			if err != nil {
				return nil, valueError(dt, c, e, err)
			}

			if !dt.Allowed(v) {
				return nil, valueError(dt, c, e,
					fmt.Errorf("%d is outside [%d, %d]", v, dt.Min(), dt.Max()))
			}

			entry := Entry{
				Key:     Key(c, e),
				Channel: c,
				Element: e,
				Offset:  base + uint64(e*stride),
				Value:   Encode(v, dt.BitWidth()),
			}
			m.index[entry.Key] = len(m.entries)
			m.entries = append(m.entries, entry)
		}
	}

	return m, nil
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}

	return int64(f), nil
}

func valueError(dt dtype.NumericType, c, e int, err error) error {
	return &node.ConfigError{Node: "", Attr: "weightDataType",
		Reason: fmt.Sprintf("%s element (%d, %d): %v", dt.Name(), c, e, err)}
}

// Datatype returns the parameter datatype.
func (m *AddressMap) Datatype() dtype.NumericType { return m.dt }

// Stride returns the address distance between consecutive elements.
func (m *AddressMap) Stride() int { return m.stride }

// Boundary returns the number of element slots reserved per channel.
func (m *AddressMap) Boundary() int { return m.boundary }

// Channels returns the number of channels.
func (m *AddressMap) Channels() int { return m.channels }

// Steps returns the number of elements per channel.
func (m *AddressMap) Steps() int { return m.steps }

// Len returns the number of entries.
func (m *AddressMap) Len() int { return len(m.entries) }

// Entries returns the register writes in channel-major order.
func (m *AddressMap) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Lookup finds an entry by key.
func (m *AddressMap) Lookup(key string) (Entry, bool) {
	i, ok := m.index[key]
	if !ok {
		return Entry{}, false
	}

	return m.entries[i], true
}

// WordBits is the width of one memory word holding a parameter.
func (m *AddressMap) WordBits() int {
	return dtype.RoundUp(m.dt.BitWidth(), 32)
}

// Image returns the dense memory content, one word per element slot.
// Padding slots between channel blocks are zero.
func (m *AddressMap) Image() []uint64 {
	img := make([]uint64, m.channels*m.boundary)
	for _, e := range m.entries {
		img[e.Channel*m.boundary+e.Element] = e.Value
	}

	return img
}

// WriteDat writes the memory image as one hex word per line, replacing any
// existing file.
func (m *AddressMap) WriteDat(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &node.ResourceError{Path: path, Err: err}
	}

	w := bufio.NewWriter(f)
	digits := m.WordBits() / 4

	for _, word := range m.Image() {
		fmt.Fprintf(w, "%0*x\n", digits, word)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return &node.ResourceError{Path: path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &node.ResourceError{Path: path, Err: err}
	}

	return nil
}
