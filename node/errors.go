package node

import (
	"errors"
	"fmt"
)

// ConfigError reports an attribute value that violates an invariant of the
// node it belongs to.
type ConfigError struct {
	Node   string
	Attr   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %s: attribute %s: %s", e.Node, e.Attr, e.Reason)
}

// StructuralError reports a graph topology that breaks an assumption of the
// driver generation pass.
type StructuralError struct {
	Graph  string
	Node   string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph %s: %s", e.Graph, e.Reason)
	}

	return fmt.Sprintf("graph %s, node %s: %s", e.Graph, e.Node, e.Reason)
}

// ResourceError reports a file that could not be read or written.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// WithNode fills in the node name of a ConfigError raised by code that does
// not know which node it is working for.
func WithNode(err error, name string) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Node == "" {
		cfgErr.Node = name
	}

	return err
}
