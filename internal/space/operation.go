package space

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var (
	ErrEmptyOperationType = errors.New("operation type name is required")
	ErrBadOperationDef    = errors.New("invalid operation definition")
)

// Attrs carries constructor attributes for an operation, keyed by name.
type Attrs map[string]any

// Operation is one candidate layer in a model space: a type name plus the
// attributes needed to instantiate it. Operations are immutable after
// construction; accessors return copies.
type Operation struct {
	typeName string
	keys     []string
	attrs    map[string]any
}

// NewOperation builds an operation. Numeric attribute values are
// canonicalized to float64 so structural equality is independent of the
// source type (code literal, JSON, YAML).
func NewOperation(typeName string, attrs Attrs) (Operation, error) {
	if strings.TrimSpace(typeName) == "" {
		return Operation{}, ErrEmptyOperationType
	}
	op := Operation{
		typeName: typeName,
		attrs:    make(map[string]any, len(attrs)),
	}
	for k, v := range attrs {
		op.keys = append(op.keys, k)
		op.attrs[k] = canonicalAttr(v)
	}
	sort.Strings(op.keys)
	return op, nil
}

func MustOperation(typeName string, attrs Attrs) Operation {
	op, err := NewOperation(typeName, attrs)
	if err != nil {
		panic(err)
	}
	return op
}

func (o Operation) Type() string { return o.typeName }

// AttrKeys returns the attribute names in sorted order.
func (o Operation) AttrKeys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o Operation) Attr(key string) (any, bool) {
	v, ok := o.attrs[key]
	if !ok {
		return nil, false
	}
	if s, isSlice := v.([]any); isSlice {
		cp := make([]any, len(s))
		copy(cp, s)
		return cp, true
	}
	return v, true
}

func (o Operation) StringAttr(key string) (string, bool) {
	v, ok := o.attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (o Operation) IntAttr(key string) (int, bool) {
	v, ok := o.attrs[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (o Operation) FloatAttr(key string) (float64, bool) {
	v, ok := o.attrs[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (o Operation) BoolAttr(key string) (bool, bool) {
	v, ok := o.attrs[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Equal reports structural equality: same type name and the same attribute
// set. Attribute order is irrelevant.
func (o Operation) Equal(other Operation) bool {
	if o.typeName != other.typeName || len(o.attrs) != len(other.attrs) {
		return false
	}
	for k, v := range o.attrs {
		w, ok := other.attrs[k]
		if !ok || !attrEqual(v, w) {
			return false
		}
	}
	return true
}

// String renders a short form such as "conv1d(filters=64, kernel_size=8)".
func (o Operation) String() string {
	if len(o.keys) == 0 {
		return o.typeName
	}
	parts := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, o.attrs[k]))
	}
	return fmt.Sprintf("%s(%s)", o.typeName, strings.Join(parts, ", "))
}

func canonicalAttr(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		cp := make([]any, len(x))
		for i, e := range x {
			cp[i] = canonicalAttr(e)
		}
		return cp
	default:
		return v
	}
}

func attrEqual(a, b any) bool {
	as, aok := a.([]any)
	bs, bok := b.([]any)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !attrEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	switch a.(type) {
	case nil, bool, string, float64:
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
