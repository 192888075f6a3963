// Package node turns the raw attributes of a graph node into a typed,
// validated and immutable operation descriptor.
//
// Every supported operation kind declares a static Schema. Parse validates a
// node's attributes against the schema of its kind exactly once; everything
// downstream reads the resulting Descriptor and dispatches on its Kind.
package node

import (
	"errors"
	"fmt"

	"github.com/sarchlab/dataflowgen/dtype"
)

// Kind tags the operation a node performs.
type Kind string

const (
	KindThresholding      Kind = "Thresholding_Binary_Search"
	KindThresholdingBatch Kind = "Thresholding_Batch"
	KindMVAU              Kind = "MatrixVectorActivation"
	KindIODMA             Kind = "IODMA"
	KindPartition         Kind = "StreamingDataflowPartition"
)

// RuntimeWeightsCapable reports whether nodes of this kind may expose their
// parameters through a runtime-writable register interface.
func (k Kind) RuntimeWeightsCapable() bool {
	switch k {
	case KindThresholding, KindThresholdingBatch, KindMVAU:
		return true
	default:
		return false
	}
}

// MemMode selects where the parameters of a node live.
type MemMode string

const (
	MemEmbedded MemMode = "embedded"
	MemStreamed MemMode = "streamed"
)

// RAMStyle selects the memory primitive used for embedded parameters.
type RAMStyle string

const (
	RAMDistributed RAMStyle = "distributed"
	RAMBlock       RAMStyle = "block"
)

// BurstMode is the addressing pattern of a DMA engine.
type BurstMode string

const (
	BurstIncrement BurstMode = "increment"
	BurstWrap      BurstMode = "wrap"
)

var thresholdingSchema = Schema{
	{Name: "PE", Type: AttrInt, Required: true},
	{Name: "NumChannels", Type: AttrInt, Required: true},
	{Name: "numSteps", Type: AttrInt, Required: true},
	{Name: "inputDataType", Type: AttrString, Required: true},
	{Name: "weightDataType", Type: AttrString, Required: true},
	{Name: "outputDataType", Type: AttrString, Required: true},
	{Name: "numInputVectors", Type: AttrInts, Default: []int64{1}},
	{Name: "mem_mode", Type: AttrString, Default: string(MemEmbedded),
		Allowed: []any{string(MemEmbedded), string(MemStreamed)}},
	{Name: "ram_style", Type: AttrString, Default: string(RAMDistributed),
		Allowed: []any{string(RAMDistributed), string(RAMBlock)}},
	{Name: "runtime_writeable_weights", Type: AttrInt, Default: int64(0),
		Allowed: []any{0, 1}},
	{Name: "activation_bias", Type: AttrInt},
	{Name: "gen_top_module", Type: AttrString},
}

var mvauSchema = Schema{
	{Name: "PE", Type: AttrInt, Required: true},
	{Name: "SIMD", Type: AttrInt, Required: true},
	{Name: "MW", Type: AttrInt, Required: true},
	{Name: "MH", Type: AttrInt, Required: true},
	{Name: "inputDataType", Type: AttrString, Required: true},
	{Name: "weightDataType", Type: AttrString, Required: true},
	{Name: "outputDataType", Type: AttrString, Required: true},
	{Name: "numInputVectors", Type: AttrInts, Default: []int64{1}},
	{Name: "runtime_writeable_weights", Type: AttrInt, Default: int64(0),
		Allowed: []any{0, 1}},
}

var iodmaSchema = Schema{
	{Name: "burstMode", Type: AttrString, Default: string(BurstIncrement),
		Allowed: []any{string(BurstIncrement), string(BurstWrap)}},
}

var partitionSchema = Schema{
	{Name: "instance_name", Type: AttrString},
	{Name: "model", Type: AttrString},
}

var schemas = map[Kind]Schema{
	KindThresholding:      thresholdingSchema,
	KindThresholdingBatch: thresholdingSchema,
	KindMVAU:              mvauSchema,
	KindIODMA:             iodmaSchema,
	KindPartition:         partitionSchema,
}

// SchemaOf returns the attribute schema of a kind.
func SchemaOf(k Kind) (Schema, bool) {
	s, ok := schemas[k]
	return s, ok
}

// Config is the typed configuration of a thresholding node. Treat it as
// read-only; use the With methods to derive modified copies.
type Config struct {
	Name string
	Kind Kind

	PE              int
	NumChannels     int
	NumSteps        int
	NumInputVectors []int

	InputType  dtype.NumericType
	WeightType dtype.NumericType
	OutputType dtype.NumericType

	MemMode         MemMode
	RAMStyle        RAMStyle
	RuntimeWritable bool
	ActivationBias  int
	GenTopModule    string
}

// WithWeightType returns a copy of c using a different parameter datatype.
func (c Config) WithWeightType(t dtype.NumericType) Config {
	c.NumInputVectors = append([]int(nil), c.NumInputVectors...)
	c.WeightType = t

	return c
}

// MatrixConfig is the typed configuration of a matrix-vector unit.
type MatrixConfig struct {
	Name string

	PE, SIMD        int
	MW, MH          int
	NumInputVectors []int

	InputType  dtype.NumericType
	WeightType dtype.NumericType
	OutputType dtype.NumericType

	RuntimeWritable bool
}

// DMAConfig is the typed configuration of a boundary-transfer node.
type DMAConfig struct {
	Name      string
	BurstMode BurstMode
}

// PartitionConfig is the typed configuration of a dataflow partition.
type PartitionConfig struct {
	Name         string
	InstanceName string
	Model        string
}

// Descriptor is a validated node. Exactly one of the config pointers is set,
// selected by Kind.
type Descriptor struct {
	Kind Kind
	Name string

	Threshold *Config
	Matrix    *MatrixConfig
	DMA       *DMAConfig
	Partition *PartitionConfig
}

// RuntimeWritable reports whether the node's parameters are exposed through
// a runtime-writable register interface.
func (d Descriptor) RuntimeWritable() bool {
	switch {
	case d.Threshold != nil:
		return d.Threshold.RuntimeWritable
	case d.Matrix != nil:
		return d.Matrix.RuntimeWritable
	default:
		return false
	}
}

// WeightType returns the parameter datatype of compute nodes.
func (d Descriptor) WeightType() (dtype.NumericType, bool) {
	switch {
	case d.Threshold != nil:
		return d.Threshold.WeightType, true
	case d.Matrix != nil:
		return d.Matrix.WeightType, true
	default:
		return dtype.NumericType{}, false
	}
}

// Parse validates attrs against the schema of kind and builds a Descriptor.
func Parse(kind Kind, name string, attrs map[string]any) (Descriptor, error) {
	schema, ok := schemas[kind]
	if !ok {
		return Descriptor{}, &ConfigError{Node: name, Attr: "op_type",
			Reason: fmt.Sprintf("unsupported operation %q", kind)}
	}

	v, err := schema.validate(name, attrs)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{Kind: kind, Name: name}

	switch kind {
	case KindThresholding, KindThresholdingBatch:
		d.Threshold, err = buildThreshold(kind, name, v)
	case KindMVAU:
		d.Matrix, err = buildMatrix(name, v)
	case KindIODMA:
		d.DMA = &DMAConfig{Name: name, BurstMode: BurstMode(v.str("burstMode"))}
	case KindPartition:
		d.Partition = &PartitionConfig{
			Name:         name,
			InstanceName: v.str("instance_name"),
			Model:        v.str("model"),
		}
	}

	if err != nil {
		return Descriptor{}, err
	}

	return d, nil
}

func buildThreshold(kind Kind, name string, v values) (*Config, error) {
	c := &Config{
		Name:            name,
		Kind:            kind,
		PE:              v.int("PE"),
		NumChannels:     v.int("NumChannels"),
		NumSteps:        v.int("numSteps"),
		NumInputVectors: v.ints("numInputVectors"),
		MemMode:         MemMode(v.str("mem_mode")),
		RAMStyle:        RAMStyle(v.str("ram_style")),
		RuntimeWritable: v.int("runtime_writeable_weights") == 1,
		ActivationBias:  v.int("activation_bias"),
		GenTopModule:    v.str("gen_top_module"),
	}

	var err error
	if c.InputType, err = lookupType(name, "inputDataType", v); err != nil {
		return nil, err
	}

	if c.WeightType, err = lookupType(name, "weightDataType", v); err != nil {
		return nil, err
	}

	if c.OutputType, err = lookupType(name, "outputDataType", v); err != nil {
		return nil, err
	}

	if err := positive(name, "PE", c.PE); err != nil {
		return nil, err
	}

	if err := positive(name, "NumChannels", c.NumChannels); err != nil {
		return nil, err
	}

	if err := positive(name, "numSteps", c.NumSteps); err != nil {
		return nil, err
	}

	if c.NumChannels%c.PE != 0 {
		return nil, &ConfigError{Node: name, Attr: "PE",
			Reason: fmt.Sprintf("NumChannels %d is not divisible by PE %d", c.NumChannels, c.PE)}
	}

	if err := positiveVectors(name, c.NumInputVectors); err != nil {
		return nil, err
	}

	return c, nil
}

func buildMatrix(name string, v values) (*MatrixConfig, error) {
	c := &MatrixConfig{
		Name:            name,
		PE:              v.int("PE"),
		SIMD:            v.int("SIMD"),
		MW:              v.int("MW"),
		MH:              v.int("MH"),
		NumInputVectors: v.ints("numInputVectors"),
		RuntimeWritable: v.int("runtime_writeable_weights") == 1,
	}

	var err error
	if c.InputType, err = lookupType(name, "inputDataType", v); err != nil {
		return nil, err
	}

	if c.WeightType, err = lookupType(name, "weightDataType", v); err != nil {
		return nil, err
	}

	if c.OutputType, err = lookupType(name, "outputDataType", v); err != nil {
		return nil, err
	}

	for _, attr := range []string{"PE", "SIMD", "MW", "MH"} {
		if err := positive(name, attr, v.int(attr)); err != nil {
			return nil, err
		}
	}

	if err := positiveVectors(name, c.NumInputVectors); err != nil {
		return nil, err
	}

	return c, nil
}

func lookupType(name, attr string, v values) (dtype.NumericType, error) {
	t, err := dtype.Lookup(v.str(attr))
	if err != nil {
		reason := err.Error()
		if errors.Is(err, dtype.ErrUnknownName) {
			reason = fmt.Sprintf("invalid datatype %q", v.str(attr))
		}

		return dtype.NumericType{}, &ConfigError{Node: name, Attr: attr, Reason: reason}
	}

	return t, nil
}

func positive(name, attr string, x int) error {
	if x <= 0 {
		return &ConfigError{Node: name, Attr: attr, Reason: fmt.Sprintf("must be > 0, got %d", x)}
	}

	return nil
}

func positiveVectors(name string, vecs []int) error {
	for _, n := range vecs {
		if n <= 0 {
			return &ConfigError{Node: name, Attr: "numInputVectors",
				Reason: fmt.Sprintf("dimensions must be > 0, got %v", vecs)}
		}
	}

	return nil
}
