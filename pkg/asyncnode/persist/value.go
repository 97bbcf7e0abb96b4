// Package persist keeps the last successfully produced output of each
// output parameter alive across document save/reload and canvas
// copy/paste, independent of the host's volatile data cache.
//
// Output values are a closed tagged-variant set, serialized explicitly.
// There is deliberately no runtime type lookup by name: a value either is
// one of the known kinds or it cannot be persisted.
package persist

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/halverson/asyncnode/pkg/asyncnode/host"
)

// Kind identifies the variant stored in a Value.
type Kind string

// The closed set of persistable value kinds.
const (
	KindBool  Kind = "bool"
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindText  Kind = "text"
	KindBytes Kind = "bytes"
	KindTree  Kind = "tree"
)

// Value is one persisted output value.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Text  string
	Bytes []byte
	Tree  host.Tree
}

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// TextValue wraps a string.
func TextValue(v string) Value { return Value{Kind: KindText, Text: v} }

// BytesValue wraps a byte slice.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// TreeValue wraps a full data tree.
func TreeValue(t host.Tree) Value { return Value{Kind: KindTree, Tree: t} }

// FromItem converts a host item into a persistable Value.
// Returns an error for kinds outside the closed set.
func FromItem(v host.Item) (Value, error) {
	switch x := v.(type) {
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return TextValue(x), nil
	case []byte:
		return BytesValue(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported output value type %T", v)
	}
}

// Item returns the value as a host item. Tree values return the tree's
// first item, or nil for an empty tree.
func (v Value) Item() host.Item {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindText:
		return v.Text
	case KindBytes:
		return v.Bytes
	case KindTree:
		for _, b := range v.Tree.Branches {
			if len(b.Items) > 0 {
				return b.Items[0]
			}
		}
		return nil
	default:
		return nil
	}
}

// AsTree returns the value as a host data tree. Scalar kinds become a
// single-item flat tree.
func (v Value) AsTree() host.Tree {
	if v.Kind == KindTree {
		return v.Tree
	}
	return host.FlatTree(v.Item())
}

// jsonValue is the wire shape of a Value.
type jsonValue struct {
	Kind  Kind         `json:"kind"`
	Bool  *bool        `json:"bool,omitempty"`
	Int   *int64       `json:"int,omitempty"`
	Float *float64     `json:"float,omitempty"`
	Text  *string      `json:"text,omitempty"`
	Bytes []byte       `json:"bytes,omitempty"`
	Tree  []jsonBranch `json:"tree,omitempty"`
}

type jsonBranch struct {
	Path  string      `json:"path"`
	Items []jsonValue `json:"items"`
}

// MarshalJSON implements json.Marshaler with an explicit kind tag.
func (v Value) MarshalJSON() ([]byte, error) {
	jv, err := toJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jv)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	out, err := fromJSON(jv)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func toJSON(v Value) (jsonValue, error) {
	jv := jsonValue{Kind: v.Kind}
	switch v.Kind {
	case KindBool:
		jv.Bool = &v.Bool
	case KindInt:
		jv.Int = &v.Int
	case KindFloat:
		jv.Float = &v.Float
	case KindText:
		jv.Text = &v.Text
	case KindBytes:
		jv.Bytes = v.Bytes
	case KindTree:
		for _, b := range v.Tree.Branches {
			jb := jsonBranch{Path: b.Path, Items: make([]jsonValue, 0, len(b.Items))}
			for _, item := range b.Items {
				iv, err := FromItem(item)
				if err != nil {
					return jsonValue{}, err
				}
				ijv, err := toJSON(iv)
				if err != nil {
					return jsonValue{}, err
				}
				jb.Items = append(jb.Items, ijv)
			}
			jv.Tree = append(jv.Tree, jb)
		}
	default:
		return jsonValue{}, fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return jv, nil
}

func fromJSON(jv jsonValue) (Value, error) {
	switch jv.Kind {
	case KindBool:
		if jv.Bool == nil {
			return Value{}, fmt.Errorf("bool value missing payload")
		}
		return BoolValue(*jv.Bool), nil
	case KindInt:
		if jv.Int == nil {
			return Value{}, fmt.Errorf("int value missing payload")
		}
		return IntValue(*jv.Int), nil
	case KindFloat:
		if jv.Float == nil {
			return Value{}, fmt.Errorf("float value missing payload")
		}
		return FloatValue(*jv.Float), nil
	case KindText:
		if jv.Text == nil {
			return Value{}, fmt.Errorf("text value missing payload")
		}
		return TextValue(*jv.Text), nil
	case KindBytes:
		return BytesValue(jv.Bytes), nil
	case KindTree:
		t := host.Tree{}
		for _, jb := range jv.Tree {
			b := host.Branch{Path: jb.Path}
			for _, ijv := range jb.Items {
				iv, err := fromJSON(ijv)
				if err != nil {
					return Value{}, err
				}
				b.Items = append(b.Items, iv.Item())
			}
			t.Branches = append(t.Branches, b)
		}
		return TreeValue(t), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", jv.Kind)
	}
}

// OutputSet maps output parameter GUIDs to their last produced value.
type OutputSet map[uuid.UUID]Value

// envelopeVersion is the current OutputSet wire format version.
const envelopeVersion = 1

type envelope struct {
	Version int                 `json:"version"`
	Outputs map[uuid.UUID]Value `json:"outputs"`
}

// Encode serializes an OutputSet to its versioned JSON envelope.
func Encode(set OutputSet) ([]byte, error) {
	return json.Marshal(envelope{Version: envelopeVersion, Outputs: set})
}

// Decode parses a versioned envelope back into an OutputSet.
func Decode(data []byte) (OutputSet, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse output envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("output envelope version %d not supported", env.Version)
	}
	if env.Outputs == nil {
		return OutputSet{}, nil
	}
	return env.Outputs, nil
}
