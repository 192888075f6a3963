package node

import (
	"fmt"
	"sort"
	"strings"
)

// AttrType is the value type of a node attribute.
type AttrType int

const (
	AttrInt AttrType = iota
	AttrInts
	AttrString
)

// Name returns the name of the attribute type.
func (t AttrType) Name() string {
	switch t {
	case AttrInt:
		return "int"
	case AttrInts:
		return "ints"
	case AttrString:
		return "string"
	default:
		panic("invalid attribute type")
	}
}

// AttrSpec declares one attribute of a node kind. A nil Default on an
// optional attribute means the zero value of its type. An empty Allowed set
// accepts any value.
type AttrSpec struct {
	Name     string
	Type     AttrType
	Required bool
	Default  any
	Allowed  []any
}

// Schema is the full attribute declaration of a node kind.
type Schema []AttrSpec

// values holds attributes after normalization: int64, []int64 or string.
type values map[string]any

func (v values) int(name string) int {
	return int(v[name].(int64))
}

func (v values) ints(name string) []int {
	raw := v[name].([]int64)
	out := make([]int, len(raw))
	for i, x := range raw {
		out[i] = int(x)
	}

	return out
}

func (v values) str(name string) string {
	return v[name].(string)
}

// validate checks attrs against the schema once and returns normalized
// values with defaults filled in. Attributes not declared in the schema are
// ignored.
func (s Schema) validate(nodeName string, attrs map[string]any) (values, error) {
	out := make(values, len(s))

	for _, attr := range s {
		raw, ok := attrs[attr.Name]
		if !ok {
			if attr.Required {
				return nil, &ConfigError{Node: nodeName, Attr: attr.Name,
					Reason: "required attribute is missing"}
			}

			raw = attr.Default
			if raw == nil {
				raw = zeroOf(attr.Type)
			}
		}

		v, err := normalize(attr.Type, raw)
		if err != nil {
			return nil, &ConfigError{Node: nodeName, Attr: attr.Name, Reason: err.Error()}
		}

		if !attr.allows(v) {
			return nil, &ConfigError{Node: nodeName, Attr: attr.Name,
				Reason: fmt.Sprintf("value %v is not one of %s", v, attr.allowedString())}
		}

		out[attr.Name] = v
	}

	return out, nil
}

func (attr AttrSpec) allows(v any) bool {
	if len(attr.Allowed) == 0 {
		return true
	}

	for _, a := range attr.Allowed {
		norm, err := normalize(attr.Type, a)
		if err == nil && fmt.Sprint(norm) == fmt.Sprint(v) {
			return true
		}
	}

	return false
}

func (attr AttrSpec) allowedString() string {
	parts := make([]string, 0, len(attr.Allowed))
	for _, a := range attr.Allowed {
		parts = append(parts, fmt.Sprint(a))
	}

	sort.Strings(parts)

	return "{" + strings.Join(parts, ", ") + "}"
}

func zeroOf(t AttrType) any {
	switch t {
	case AttrInt:
		return int64(0)
	case AttrInts:
		return []int64{}
	default:
		return ""
	}
}

func normalize(t AttrType, raw any) (any, error) {
	switch t {
	case AttrInt:
		return toInt(raw)
	case AttrInts:
		return toInts(raw)
	case AttrString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}

		return s, nil
	default:
		panic("invalid attribute type")
	}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}

		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, fmt.Errorf("expected int, got %T", raw)
	}
}

func toInts(raw any) ([]int64, error) {
	switch v := raw.(type) {
	case []int64:
		return append([]int64(nil), v...), nil
	case []int:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}

		return out, nil
	case []any:
		out := make([]int64, len(v))
		for i, x := range v {
			n, err := toInt(x)
			if err != nil {
				return nil, err
			}

			out[i] = n
		}

		return out, nil
	default:
		return nil, fmt.Errorf("expected list of ints, got %T", raw)
	}
}
