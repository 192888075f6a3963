// Package graph is a small in-memory dataflow graph. It provides the
// read-only queries the driver generator needs: producers, consumers,
// neighbours, tensor annotations and initializers.
package graph

import (
	"fmt"

	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/node"
	"gonum.org/v1/gonum/mat"
)

// TensorInfo annotates a tensor with its datatype name and logical shape.
type TensorInfo struct {
	Datatype string
	Shape    []int
}

// Initializer is a constant tensor stored in row-major order.
type Initializer struct {
	Shape []int
	Data  []float64
}

// Matrix views the initializer as a matrix. The last dimension becomes the
// columns and all leading dimensions are flattened into rows.
func (i Initializer) Matrix() (*mat.Dense, error) {
	rows, cols := 1, len(i.Data)

	if len(i.Shape) > 0 {
		cols = i.Shape[len(i.Shape)-1]
		rows = 1
		for _, d := range i.Shape[:len(i.Shape)-1] {
			rows *= d
		}
	}

	if rows*cols != len(i.Data) || cols == 0 {
		return nil, fmt.Errorf("initializer shape %v does not match %d values",
			i.Shape, len(i.Data))
	}

	return mat.NewDense(rows, cols, append([]float64(nil), i.Data...)), nil
}

// Node is one operation of a graph. Partition nodes carry their sub-graph.
type Node struct {
	Name     string
	OpType   string
	Inputs   []string
	Outputs  []string
	Attrs    map[string]any
	Subgraph *Model
}

// Descriptor validates the attributes of the node.
func (n *Node) Descriptor() (node.Descriptor, error) {
	return node.Parse(node.Kind(n.OpType), n.Name, n.Attrs)
}

// Model is a graph with named inputs and outputs.
type Model struct {
	Name    string
	Inputs  []string
	Outputs []string
	Nodes   []*Node

	Tensors      map[string]TensorInfo
	Initializers map[string]Initializer
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{
		Name:         name,
		Tensors:      make(map[string]TensorInfo),
		Initializers: make(map[string]Initializer),
	}
}

// AddNode appends a node and returns it.
func (m *Model) AddNode(n *Node) *Node {
	m.Nodes = append(m.Nodes, n)
	return n
}

// SetTensorInfo annotates a tensor.
func (m *Model) SetTensorInfo(name, datatype string, shape ...int) {
	m.Tensors[name] = TensorInfo{Datatype: datatype, Shape: shape}
}

// SetInitializer binds constant data to a tensor.
func (m *Model) SetInitializer(name string, data []float64, shape ...int) {
	m.Initializers[name] = Initializer{Shape: shape, Data: data}
}

// FindProducer returns the node writing tensor, or nil.
func (m *Model) FindProducer(tensor string) *Node {
	for _, n := range m.Nodes {
		for _, out := range n.Outputs {
			if out == tensor {
				return n
			}
		}
	}

	return nil
}

// FindConsumers returns all nodes reading tensor in graph order.
func (m *Model) FindConsumers(tensor string) []*Node {
	var consumers []*Node

	for _, n := range m.Nodes {
		for _, in := range n.Inputs {
			if in == tensor {
				consumers = append(consumers, n)
				break
			}
		}
	}

	return consumers
}

// FindConsumer returns the first node reading tensor, or nil.
func (m *Model) FindConsumer(tensor string) *Node {
	consumers := m.FindConsumers(tensor)
	if len(consumers) == 0 {
		return nil
	}

	return consumers[0]
}

// FindDirectSuccessors returns the nodes consuming any output of n, without
// duplicates, in output order.
func (m *Model) FindDirectSuccessors(n *Node) []*Node {
	var succ []*Node

	seen := make(map[*Node]bool)
	for _, out := range n.Outputs {
		for _, c := range m.FindConsumers(out) {
			if !seen[c] {
				seen[c] = true
				succ = append(succ, c)
			}
		}
	}

	return succ
}

// FindDirectPredecessors returns the producers of the inputs of n, without
// duplicates, in input order.
func (m *Model) FindDirectPredecessors(n *Node) []*Node {
	var pred []*Node

	seen := make(map[*Node]bool)
	for _, in := range n.Inputs {
		p := m.FindProducer(in)
		if p != nil && !seen[p] {
			seen[p] = true
			pred = append(pred, p)
		}
	}

	return pred
}

// Initializer returns the constant bound to tensor as a matrix.
func (m *Model) Initializer(tensor string) (*mat.Dense, bool, error) {
	init, ok := m.Initializers[tensor]
	if !ok {
		return nil, false, nil
	}

	mx, err := init.Matrix()
	if err != nil {
		return nil, true, &node.StructuralError{Graph: m.Name,
			Reason: fmt.Sprintf("tensor %s: %v", tensor, err)}
	}

	return mx, true, nil
}

// TensorDatatype returns the annotated datatype of tensor.
func (m *Model) TensorDatatype(tensor string) (dtype.NumericType, error) {
	info, ok := m.Tensors[tensor]
	if !ok || info.Datatype == "" {
		return dtype.NumericType{}, &node.StructuralError{Graph: m.Name,
			Reason: fmt.Sprintf("tensor %s has no datatype annotation", tensor)}
	}

	t, err := dtype.Lookup(info.Datatype)
	if err != nil {
		return dtype.NumericType{}, &node.ConfigError{Node: tensor, Attr: "datatype",
			Reason: err.Error()}
	}

	return t, nil
}

// TensorShape returns the annotated shape of tensor.
func (m *Model) TensorShape(tensor string) ([]int, bool) {
	info, ok := m.Tensors[tensor]
	if !ok || info.Shape == nil {
		return nil, false
	}

	return append([]int(nil), info.Shape...), true
}
