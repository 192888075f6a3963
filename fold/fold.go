// Package fold derives the hardware-cycle view of a node: folded tensor
// shapes and the bit widths of its stream interfaces.
package fold

import (
	"fmt"

	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/node"
)

// Factor returns how many cycles it takes to process all channels of one
// input vector.
func Factor(c *node.Config) (int, error) {
	if c.PE <= 0 || c.NumChannels%c.PE != 0 {
		return 0, &node.ConfigError{Node: c.Name, Attr: "PE",
			Reason: fmt.Sprintf("NumChannels %d is not divisible by PE %d", c.NumChannels, c.PE)}
	}

	return c.NumChannels / c.PE, nil
}

// NormalInputShape is numInputVectors followed by the channel count.
func NormalInputShape(c *node.Config) []int {
	return appendDims(c.NumInputVectors, c.NumChannels)
}

// NormalOutputShape equals the input shape; thresholding is element-wise.
func NormalOutputShape(c *node.Config) []int {
	return NormalInputShape(c)
}

// FoldedInputShape is numInputVectors followed by [NumChannels/PE, PE].
func FoldedInputShape(c *node.Config) ([]int, error) {
	f, err := Factor(c)
	if err != nil {
		return nil, err
	}

	return appendDims(c.NumInputVectors, f, c.PE), nil
}

// FoldedOutputShape equals the folded input shape.
func FoldedOutputShape(c *node.Config) ([]int, error) {
	return FoldedInputShape(c)
}

// StreamWidth is the number of bits one cycle moves for datatype t.
func StreamWidth(t dtype.NumericType, pe int) int {
	return t.BitWidth() * pe
}

// InStreamWidth returns the input stream width in bits.
func InStreamWidth(c *node.Config) int {
	return StreamWidth(c.InputType, c.PE)
}

// OutStreamWidth returns the output stream width in bits.
func OutStreamWidth(c *node.Config) int {
	return StreamWidth(c.OutputType, c.PE)
}

// WeightStreamWidth returns the parameter stream width. Only streamed nodes
// have a parameter stream.
func WeightStreamWidth(c *node.Config) (int, error) {
	if c.MemMode != node.MemStreamed {
		return 0, &node.ConfigError{Node: c.Name, Attr: "mem_mode",
			Reason: fmt.Sprintf("parameter stream requires %q mode, node uses %q",
				node.MemStreamed, c.MemMode)}
	}

	return c.PE * c.WeightType.BitWidth() * c.NumSteps, nil
}

// Padded rounds a stream width up to whole bytes, as required by AXI
// stream interfaces.
func Padded(width int) int {
	return dtype.RoundUp(width, 8)
}

// ExpCycles is the expected number of cycles to process one input.
func ExpCycles(c *node.Config) (int, error) {
	shape, err := FoldedOutputShape(c)
	if err != nil {
		return 0, err
	}

	return Product(shape[:len(shape)-1]), nil
}

// NumberOutputValues is the number of output words one input produces.
func NumberOutputValues(c *node.Config) (int, error) {
	return ExpCycles(c)
}

// Product multiplies all dimensions of a shape. The empty shape has product 1.
func Product(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}

	return p
}

func appendDims(prefix []int, dims ...int) []int {
	out := make([]int, 0, len(prefix)+len(dims))
	out = append(out, prefix...)

	return append(out, dims...)
}
