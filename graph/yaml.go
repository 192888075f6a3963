package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sarchlab/dataflowgen/node"
	"gopkg.in/yaml.v3"
)

type modelDoc struct {
	Name         string               `yaml:"name"`
	Inputs       []string             `yaml:"inputs"`
	Outputs      []string             `yaml:"outputs"`
	Tensors      map[string]tensorDoc `yaml:"tensors"`
	Initializers map[string]initDoc   `yaml:"initializers"`
	Nodes        []nodeDoc            `yaml:"nodes"`
}

type tensorDoc struct {
	Datatype string `yaml:"datatype"`
	Shape    []int  `yaml:"shape"`
}

type initDoc struct {
	Shape []int     `yaml:"shape"`
	Data  []float64 `yaml:"data"`
}

type nodeDoc struct {
	Name    string         `yaml:"name"`
	OpType  string         `yaml:"op_type"`
	Inputs  []string       `yaml:"inputs"`
	Outputs []string       `yaml:"outputs"`
	Attrs   map[string]any `yaml:"attrs"`
	Model   *modelDoc      `yaml:"model"`
}

// LoadYAML reads a model from a YAML file. Partition sub-graphs are either
// written inline under "model" or referenced by a "model" attribute holding
// a path relative to the file.
func LoadYAML(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &node.ResourceError{Path: path, Err: err}
	}

	return parse(data, filepath.Dir(path), map[string]bool{path: true})
}

// ParseYAML decodes a model document. Sub-graphs must be written inline.
func ParseYAML(data []byte) (*Model, error) {
	return parse(data, "", nil)
}

func parse(data []byte, dir string, open map[string]bool) (*Model, error) {
	var doc modelDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}

	return doc.build(dir, open)
}

func (d *modelDoc) build(dir string, open map[string]bool) (*Model, error) {
	m := NewModel(d.Name)
	m.Inputs = d.Inputs
	m.Outputs = d.Outputs

	for name, t := range d.Tensors {
		m.SetTensorInfo(name, t.Datatype, t.Shape...)
	}

	for name, i := range d.Initializers {
		m.SetInitializer(name, i.Data, i.Shape...)
	}

	for _, nd := range d.Nodes {
		n := &Node{
			Name:    nd.Name,
			OpType:  nd.OpType,
			Inputs:  nd.Inputs,
			Outputs: nd.Outputs,
			Attrs:   nd.Attrs,
		}

		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}

		sub, err := nd.subgraph(dir, open)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}

		n.Subgraph = sub
		m.AddNode(n)
	}

	return m, nil
}

func (nd *nodeDoc) subgraph(dir string, open map[string]bool) (*Model, error) {
	if nd.Model != nil {
		return nd.Model.build(dir, open)
	}

	ref, ok := nd.Attrs["model"].(string)
	if !ok || ref == "" {
		return nil, nil
	}

	if open == nil {
		return nil, fmt.Errorf("sub-graph %q must be inline", ref)
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, ref)
	}

	if open[path] {
		return nil, fmt.Errorf("sub-graph %s includes itself", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &node.ResourceError{Path: path, Err: err}
	}

	open[path] = true
	defer delete(open, path)

	return parse(data, filepath.Dir(path), open)
}
