package pynq

import (
	"strconv"
	"strings"

	"github.com/sarchlab/dataflowgen/dtype"
)

// PyTuple renders a shape the way Python prints a tuple of ints.
func PyTuple(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}

	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

// PyTuples renders a list of shapes.
func PyTuples(shapes [][]int) string {
	parts := make([]string, len(shapes))
	for i, s := range shapes {
		parts[i] = PyTuple(s)
	}

	return pyList(parts)
}

// PyStrings renders a list of Python string literals.
func PyStrings(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}

	return pyList(parts)
}

// PyDatatypes renders a list of datatype constructors.
func PyDatatypes(types []dtype.NumericType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}

	return pyList(parts)
}

func pyList(parts []string) string {
	return "[" + strings.Join(parts, ", ") + "]"
}
