package space

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// opTypeKey names the operation type inside a definition mapping; every
// other key becomes a constructor attribute.
const opTypeKey = "type"

// ParseSpace builds a ModelSpace from a YAML or JSON definition. The
// document is either a sequence of layers or a mapping from layer index to
// layer, interchangeable as long as the indices cover 0..N-1. Each layer is
// a sequence of operation definitions, each a mapping carrying "type" plus
// attributes.
func ParseSpace(data []byte) (*ModelSpace, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse model space: %w", err)
	}
	layers, err := layerDefs(root)
	if err != nil {
		return nil, err
	}
	s := NewModelSpace()
	for i, defs := range layers {
		ops := make([]Operation, 0, len(defs))
		for j, def := range defs {
			op, err := ParseOperation(def)
			if err != nil {
				return nil, fmt.Errorf("layer %d candidate %d: %w", i, j, err)
			}
			ops = append(ops, op)
		}
		if err := s.AddLayer(i, ops); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadSpace reads and parses a model-space definition file.
func LoadSpace(path string) (*ModelSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model space: %w", err)
	}
	s, err := ParseSpace(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseOperation builds an Operation from a decoded definition mapping.
func ParseOperation(def any) (Operation, error) {
	m, err := asStringMap(def)
	if err != nil {
		return Operation{}, err
	}
	raw, ok := m[opTypeKey]
	if !ok {
		return Operation{}, fmt.Errorf("%w: missing %q", ErrBadOperationDef, opTypeKey)
	}
	typeName, ok := raw.(string)
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q must be a string, got %T", ErrBadOperationDef, opTypeKey, raw)
	}
	attrs := make(Attrs, len(m)-1)
	for k, v := range m {
		if k == opTypeKey {
			continue
		}
		attrs[k] = v
	}
	return NewOperation(typeName, attrs)
}

func layerDefs(root any) ([][]any, error) {
	switch v := root.(type) {
	case []any:
		out := make([][]any, 0, len(v))
		for i, layer := range v {
			defs, ok := layer.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: layer %d must be a sequence, got %T", ErrBadOperationDef, i, layer)
			}
			out = append(out, defs)
		}
		return out, nil
	case map[string]any:
		return layersFromMap(v)
	default:
		return nil, fmt.Errorf("%w: document must be a sequence or mapping of layers, got %T", ErrBadOperationDef, root)
	}
}

func layersFromMap(m map[string]any) ([][]any, error) {
	type entry struct {
		id   int
		defs []any
	}
	entries := make([]entry, 0, len(m))
	for key, layer := range m {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: layer key %q is not an integer", ErrBadOperationDef, key)
		}
		defs, ok := layer.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: layer %q must be a sequence, got %T", ErrBadOperationDef, key, layer)
		}
		entries = append(entries, entry{id: id, defs: defs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	out := make([][]any, 0, len(entries))
	for i, e := range entries {
		if e.id != i {
			return nil, fmt.Errorf("%w: layer keys must cover 0..%d, found %d", ErrIntegrity, len(entries)-1, e.id)
		}
		out = append(out, e.defs)
	}
	return out, nil
}

func asStringMap(def any) (map[string]any, error) {
	switch m := def.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute key %v is not a string", ErrBadOperationDef, k)
			}
			out[ks] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: operation definition must be a mapping, got %T", ErrBadOperationDef, def)
	}
}
