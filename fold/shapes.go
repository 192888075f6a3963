package fold

import (
	"fmt"

	"github.com/sarchlab/dataflowgen/node"
)

// Shapes collects the interface view of a compute node.
type Shapes struct {
	NormalIn, NormalOut []int
	FoldedIn, FoldedOut []int

	InWidth, OutWidth int
}

type capability struct {
	shapes func(d node.Descriptor) (Shapes, error)
}

var capabilities = map[node.Kind]capability{
	node.KindThresholding:      {shapes: thresholdShapes},
	node.KindThresholdingBatch: {shapes: thresholdShapes},
	node.KindMVAU:              {shapes: matrixShapes},
}

// Of returns the shapes of a compute node, dispatching on its kind. Nodes
// that do not process tensors, such as DMAs and partitions, have no shapes.
func Of(d node.Descriptor) (Shapes, error) {
	capa, ok := capabilities[d.Kind]
	if !ok {
		return Shapes{}, &node.ConfigError{Node: d.Name, Attr: "op_type",
			Reason: fmt.Sprintf("%s has no folded shapes", d.Kind)}
	}

	return capa.shapes(d)
}

func thresholdShapes(d node.Descriptor) (Shapes, error) {
	c := d.Threshold

	folded, err := FoldedInputShape(c)
	if err != nil {
		return Shapes{}, err
	}

	return Shapes{
		NormalIn:  NormalInputShape(c),
		NormalOut: NormalOutputShape(c),
		FoldedIn:  folded,
		FoldedOut: append([]int(nil), folded...),
		InWidth:   InStreamWidth(c),
		OutWidth:  OutStreamWidth(c),
	}, nil
}

func matrixShapes(d node.Descriptor) (Shapes, error) {
	c := d.Matrix

	if c.MW%c.SIMD != 0 {
		return Shapes{}, &node.ConfigError{Node: c.Name, Attr: "SIMD",
			Reason: fmt.Sprintf("MW %d is not divisible by SIMD %d", c.MW, c.SIMD)}
	}

	if c.MH%c.PE != 0 {
		return Shapes{}, &node.ConfigError{Node: c.Name, Attr: "PE",
			Reason: fmt.Sprintf("MH %d is not divisible by PE %d", c.MH, c.PE)}
	}

	return Shapes{
		NormalIn:  appendDims(c.NumInputVectors, c.MW),
		NormalOut: appendDims(c.NumInputVectors, c.MH),
		FoldedIn:  appendDims(c.NumInputVectors, c.MW/c.SIMD, c.SIMD),
		FoldedOut: appendDims(c.NumInputVectors, c.MH/c.PE, c.PE),
		InWidth:   StreamWidth(c.InputType, c.SIMD),
		OutWidth:  StreamWidth(c.OutputType, c.PE),
	}, nil
}
