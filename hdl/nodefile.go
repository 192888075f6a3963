package hdl

import (
	"fmt"
	"os"

	"github.com/sarchlab/dataflowgen/graph"
	"github.com/sarchlab/dataflowgen/node"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

type nodeDoc struct {
	Name       string         `yaml:"name"`
	OpType     string         `yaml:"op_type"`
	Attrs      map[string]any `yaml:"attrs"`
	Thresholds struct {
		Shape []int     `yaml:"shape"`
		Data  []float64 `yaml:"data"`
	} `yaml:"thresholds"`
}

// LoadNodeYAML reads a thresholding node and its thresholds from a file.
func LoadNodeYAML(path string) (*node.Config, *mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &node.ResourceError{Path: path, Err: err}
	}

	return ParseNodeYAML(data)
}

// ParseNodeYAML decodes a thresholding node description. The op_type
// defaults to Thresholding_Binary_Search.
func ParseNodeYAML(data []byte) (*node.Config, *mat.Dense, error) {
	var doc nodeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding node: %w", err)
	}

	if doc.OpType == "" {
		doc.OpType = string(node.KindThresholding)
	}

	d, err := node.Parse(node.Kind(doc.OpType), doc.Name, doc.Attrs)
	if err != nil {
		return nil, nil, err
	}

	if d.Threshold == nil {
		return nil, nil, &node.ConfigError{Node: doc.Name, Attr: "op_type",
			Reason: fmt.Sprintf("%s is not a thresholding operation", doc.OpType)}
	}

	init := graph.Initializer{Shape: doc.Thresholds.Shape, Data: doc.Thresholds.Data}

	t, err := init.Matrix()
	if err != nil {
		return nil, nil, &node.ConfigError{Node: doc.Name, Attr: "thresholds", Reason: err.Error()}
	}

	return d.Threshold, t, nil
}
