// Package pynq generates the Python host driver of a partitioned dataflow
// accelerator. Resolve walks the top-level graph through its DMA partitions
// and collects everything the driver needs; Emit writes the driver and the
// weight files.
package pynq

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/sarchlab/dataflowgen/config"
	"github.com/sarchlab/dataflowgen/dtype"
	"github.com/sarchlab/dataflowgen/fold"
	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/hdl"
	"github.com/sarchlab/dataflowgen/node"
	"github.com/sarchlab/dataflowgen/rtweights"
	"github.com/sarchlab/dataflowgen/tmpl"
)

// DMAChain is one top-level input or output together with the DMA that
// moves it and the compute node that consumes or produces it.
type DMAChain struct {
	Tensor   string
	DMAName  string
	Datatype dtype.NumericType

	Normal []int
	Folded []int
	Packed []int

	Partition string
	Compute   string
}

// ExternalWeight is a parameter tensor streamed in by a wrap-mode DMA.
type ExternalWeight struct {
	DMAName string
	Tensor  string
	Data    []uint8
}

// FileName is the name of the .npy file holding the weights.
func (w ExternalWeight) FileName() string {
	return w.DMAName + ".npy"
}

// RuntimeWeight is the parameter image of a runtime-writable node.
type RuntimeWeight struct {
	Partition int
	Rank      int
	Node      string
	Map       *rtweights.AddressMap
}

// FileName is the name of the .dat file holding the image.
func (w RuntimeWeight) FileName() string {
	return fmt.Sprintf("%d_%d_%s.dat", w.Partition, w.Rank, w.Node)
}

// Plan is everything known about the driver before any file is written.
type Plan struct {
	Graph    string
	Platform config.Platform

	Inputs  []DMAChain
	Outputs []DMAChain

	External []ExternalWeight
	Runtime  []RuntimeWeight
}

// Chains returns the input chains followed by the output chains.
func (p *Plan) Chains() []DMAChain {
	return append(slices.Clone(p.Inputs), p.Outputs...)
}

// Values returns the placeholder values of the driver template.
func (p *Plan) Values() tmpl.Values {
	v := tmpl.Values{}
	v.Set("$PLATFORM$", p.Platform.Name())

	setChains(v, "INPUT", p.Inputs)
	setChains(v, "OUTPUT", p.Outputs)

	v.Set("$NUM_INPUTS$", fmt.Sprint(len(p.Inputs)))
	v.Set("$NUM_OUTPUTS$", fmt.Sprint(len(p.Outputs)))
	v.Set("$EXT_WEIGHT_NUM$", fmt.Sprint(len(p.External)))

	return v
}

func setChains(v tmpl.Values, side string, chains []DMAChain) {
	var (
		types                  []dtype.NumericType
		names                  []string
		normal, folded, packed [][]int
	)

	for _, c := range chains {
		types = append(types, c.Datatype)
		names = append(names, c.DMAName)
		normal = append(normal, c.Normal)
		folded = append(folded, c.Folded)
		packed = append(packed, c.Packed)
	}

	v.Set("$"+side+"_FINN_DATATYPE$", PyDatatypes(types))
	v.Set("$"+side+"_SHAPE_NORMAL$", PyTuples(normal))
	v.Set("$"+side+"_SHAPE_FOLDED$", PyTuples(folded))
	v.Set("$"+side+"_SHAPE_PACKED$", PyTuples(packed))
	v.Set("$"+side+"_DMA_NAME$", PyStrings(names))
}

// Resolver builds host drivers for one configuration.
type Resolver struct {
	cfg config.Config
}

// NewResolver creates a resolver.
func NewResolver(cfg config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve walks the graph and returns the driver plan. It does not touch
// the file system.
func (r *Resolver) Resolve(m *graph.Model) (*Plan, error) {
	if err := checkPartitioned(m); err != nil {
		return nil, err
	}

	p := &Plan{Graph: m.Name, Platform: r.cfg.Platform}

	for _, t := range m.Inputs {
		c, err := resolveInput(m, t)
		if err != nil {
			return nil, err
		}

		p.Inputs = append(p.Inputs, c)
	}

	for _, t := range m.Outputs {
		c, err := resolveOutput(m, t)
		if err != nil {
			return nil, err
		}

		p.Outputs = append(p.Outputs, c)
	}

	ext, err := externalWeights(m)
	if err != nil {
		return nil, err
	}

	p.External = ext

	rt, err := r.runtimeWeights(m)
	if err != nil {
		return nil, err
	}

	p.Runtime = rt

	return p, nil
}

func structural(m *graph.Model, n *graph.Node, format string, args ...any) error {
	e := &node.StructuralError{Graph: m.Name, Reason: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Node = n.Name
	}

	return e
}

func checkPartitioned(m *graph.Model) error {
	for _, n := range m.Nodes {
		if node.Kind(n.OpType) != node.KindPartition {
			return structural(m, n,
				"%s found at top level, partition the graph before building a driver", n.OpType)
		}

		if n.Subgraph == nil {
			return structural(m, n, "partition has no sub-graph")
		}
	}

	return nil
}

func instanceName(n *graph.Node) (string, error) {
	d, err := n.Descriptor()
	if err != nil {
		return "", err
	}

	if d.Partition.InstanceName != "" {
		return d.Partition.InstanceName, nil
	}

	return n.Name, nil
}

func tensorInfo(m *graph.Model, tensor string) (dtype.NumericType, []int, error) {
	dt, err := m.TensorDatatype(tensor)
	if err != nil {
		return dtype.NumericType{}, nil, err
	}

	shape, ok := m.TensorShape(tensor)
	if !ok {
		return dtype.NumericType{}, nil,
			structural(m, nil, "tensor %s has no shape annotation", tensor)
	}

	return dt, shape, nil
}

func computeShapes(n *graph.Node) (fold.Shapes, error) {
	d, err := n.Descriptor()
	if err != nil {
		return fold.Shapes{}, err
	}

	s, err := fold.Of(d)
	if err != nil {
		return fold.Shapes{}, node.WithNode(err, n.Name)
	}

	return s, nil
}

func resolveInput(m *graph.Model, tensor string) (DMAChain, error) {
	dt, normal, err := tensorInfo(m, tensor)
	if err != nil {
		return DMAChain{}, err
	}

	dma := m.FindConsumer(tensor)
	if dma == nil {
		return DMAChain{}, structural(m, nil, "input %s has no consumer", tensor)
	}

	sub := dma.Subgraph
	if len(sub.Nodes) == 0 || node.Kind(sub.Nodes[0].OpType) != node.KindIODMA {
		return DMAChain{}, structural(m, dma, "first node of the partition must be an input IODMA")
	}

	succs := m.FindDirectSuccessors(dma)
	if len(succs) == 0 || len(dma.Outputs) == 0 {
		return DMAChain{}, structural(m, dma, "input DMA partition feeds no partition")
	}

	next := succs[0]

	idx := slices.Index(next.Inputs, dma.Outputs[0])
	if idx < 0 || idx >= len(next.Subgraph.Inputs) {
		return DMAChain{}, structural(m, next, "partition has no input %d", idx)
	}

	first := next.Subgraph.FindConsumer(next.Subgraph.Inputs[idx])
	if first == nil {
		return DMAChain{}, structural(m, next, "partition input %s has no consumer",
			next.Subgraph.Inputs[idx])
	}

	shapes, err := computeShapes(first)
	if err != nil {
		return DMAChain{}, err
	}

	name, err := instanceName(dma)
	if err != nil {
		return DMAChain{}, err
	}

	return DMAChain{
		Tensor:    tensor,
		DMAName:   name,
		Datatype:  dt,
		Normal:    normal,
		Folded:    shapes.FoldedIn,
		Packed:    dtype.PackedShape(shapes.FoldedIn, dt),
		Partition: dma.Name,
		Compute:   first.Name,
	}, nil
}

func resolveOutput(m *graph.Model, tensor string) (DMAChain, error) {
	dt, normal, err := tensorInfo(m, tensor)
	if err != nil {
		return DMAChain{}, err
	}

	dma := m.FindProducer(tensor)
	if dma == nil {
		return DMAChain{}, structural(m, nil, "output %s has no producer", tensor)
	}

	sub := dma.Subgraph
	if len(sub.Nodes) == 0 || node.Kind(sub.Nodes[len(sub.Nodes)-1].OpType) != node.KindIODMA {
		return DMAChain{}, structural(m, dma, "last node of the partition must be an output IODMA")
	}

	preds := m.FindDirectPredecessors(dma)
	if len(preds) == 0 || len(dma.Inputs) == 0 {
		return DMAChain{}, structural(m, dma, "output DMA partition is fed by no partition")
	}

	prev := preds[0]

	idx := slices.Index(prev.Outputs, dma.Inputs[0])
	if idx < 0 || idx >= len(prev.Subgraph.Outputs) {
		return DMAChain{}, structural(m, prev, "partition has no output %d", idx)
	}

	last := prev.Subgraph.FindProducer(prev.Subgraph.Outputs[idx])
	if last == nil {
		return DMAChain{}, structural(m, prev, "partition output %s has no producer",
			prev.Subgraph.Outputs[idx])
	}

	shapes, err := computeShapes(last)
	if err != nil {
		return DMAChain{}, err
	}

	name, err := instanceName(dma)
	if err != nil {
		return DMAChain{}, err
	}

	return DMAChain{
		Tensor:    tensor,
		DMAName:   name,
		Datatype:  dt,
		Normal:    normal,
		Folded:    shapes.FoldedOut,
		Packed:    dtype.PackedShape(shapes.FoldedOut, dt),
		Partition: dma.Name,
		Compute:   last.Name,
	}, nil
}

// externalWeights collects the parameters of wrap-mode DMAs. Those sit at
// the head of partitions whose first input is not produced by another
// partition.
func externalWeights(m *graph.Model) ([]ExternalWeight, error) {
	var out []ExternalWeight

	for _, n := range m.Nodes {
		if len(n.Inputs) > 0 && m.FindProducer(n.Inputs[0]) != nil {
			continue
		}

		sub := n.Subgraph
		if len(sub.Nodes) == 0 || node.Kind(sub.Nodes[0].OpType) != node.KindIODMA {
			return nil, structural(m, n, "first node of the partition must be an input IODMA")
		}

		head := sub.Nodes[0]

		d, err := head.Descriptor()
		if err != nil {
			return nil, err
		}

		if d.DMA.BurstMode != node.BurstWrap {
			continue
		}

		if len(head.Inputs) == 0 {
			return nil, structural(sub, head, "wrap-mode DMA has no input")
		}

		w := head.Inputs[0]

		init, ok, err := sub.Initializer(w)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, structural(sub, head, "wrap-mode DMA input %s has no initializer", w)
		}

		wdt, err := sub.TensorDatatype(w)
		if err != nil {
			return nil, err
		}

		data, err := ToExternal(init, wdt)
		if err != nil {
			return nil, &node.ConfigError{Node: head.Name, Attr: "burstMode", Reason: err.Error()}
		}

		name, err := instanceName(n)
		if err != nil {
			return nil, err
		}

		out = append(out, ExternalWeight{DMAName: name, Tensor: w, Data: data})
	}

	return out, nil
}

func (r *Resolver) runtimeWeights(m *graph.Model) ([]RuntimeWeight, error) {
	var out []RuntimeWeight

	for sdpInd, sdp := range m.Nodes {
		sub := sdp.Subgraph
		rank := 0

		for _, n := range sub.Nodes {
			kind := node.Kind(n.OpType)

			if kind == node.KindPartition {
				slog.Warn("nested partition skipped", "partition", sdpInd, "node", n.Name)
				continue
			}

			if !kind.RuntimeWeightsCapable() {
				continue
			}

			d, err := n.Descriptor()
			if err != nil {
				return nil, err
			}

			if !d.RuntimeWritable() {
				continue
			}

			addrMap, err := r.addressMap(sub, n, d)
			if err != nil {
				return nil, err
			}

			out = append(out, RuntimeWeight{
				Partition: sdpInd,
				Rank:      rank,
				Node:      n.Name,
				Map:       addrMap,
			})
			rank++
		}
	}

	return out, nil
}

func (r *Resolver) addressMap(
	sub *graph.Model,
	n *graph.Node,
	d node.Descriptor,
) (*rtweights.AddressMap, error) {
	if len(n.Inputs) < 2 {
		return nil, structural(sub, n, "runtime-writable node has no parameter input")
	}

	init, ok, err := sub.Initializer(n.Inputs[1])
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, structural(sub, n, "parameter %s has no initializer", n.Inputs[1])
	}

	if d.Kind == node.KindThresholding {
		return hdl.DynamicConfig(d.Threshold, init, r.cfg.AddressStride)
	}

	wt, _ := d.WeightType()

	addrMap, err := rtweights.Build(init, wt, r.cfg.AddressStride)
	if err != nil {
		return nil, node.WithNode(err, n.Name)
	}

	return addrMap, nil
}
