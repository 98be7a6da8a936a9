package cypher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the runtime variant of a Value.
type Kind int

// Value variants. The set is closed: every cell and parameter is exactly
// one of these, mirroring a JSON document.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged union over the types a parameter or result cell can
// hold: null, boolean, integer, float, string, list and map. A Value tree
// is finite and acyclic; it mirrors a JSON document.
//
// Conversion into a Value (ValueOf) is total. Conversion out is fallible:
// the As* accessors fail with ErrTypeMismatch when the runtime variant
// does not match the requested type, and with ErrUnexpectedNull when a
// null is read into a non-optional target. They never coerce silently.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

// Null is the null Value.
var Null = Value{}

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int builds an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float builds a float Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String builds a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List builds a list Value from its elements.
func List(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindList, l: elems}
}

// Map builds a map Value.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// ValueOf converts a native Go value into a Value. The conversion is
// total for scalars, common []T slices and map[string]T maps. Any other
// type (structs included) is converted through its JSON encoding,
// matching how parameters travel on the wire; a value that cannot be
// JSON-encoded becomes Null.
func ValueOf(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case Value:
		return val
	case *Value:
		if val == nil {
			return Null
		}
		return *val
	case bool:
		return Bool(val)
	case int:
		return Int(int64(val))
	case int8:
		return Int(int64(val))
	case int16:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint:
		return Int(int64(val))
	case uint8:
		return Int(int64(val))
	case uint16:
		return Int(int64(val))
	case uint32:
		return Int(int64(val))
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val))
		}
		return Int(int64(val))
	case float32:
		return Float(float64(val))
	case float64:
		return Float(val)
	case string:
		return String(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i)
		}
		if f, err := val.Float64(); err == nil {
			return Float(f)
		}
		return String(val.String())
	case []Value:
		return List(val...)
	case []any:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = ValueOf(e)
		}
		return List(elems...)
	case []string:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = String(e)
		}
		return List(elems...)
	case []int:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = Int(int64(e))
		}
		return List(elems...)
	case []int64:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = Int(e)
		}
		return List(elems...)
	case []float64:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = Float(e)
		}
		return List(elems...)
	case []bool:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = Bool(e)
		}
		return List(elems...)
	case map[string]Value:
		return Map(val)
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			m[k] = ValueOf(e)
		}
		return Map(m)
	case map[string]string:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			m[k] = String(e)
		}
		return Map(m)
	default:
		// Structs and exotic types go through their JSON form, the same
		// representation they would have on the wire.
		raw, err := json.Marshal(v)
		if err != nil {
			return Null
		}
		var tree any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return Null
		}
		return ValueOf(tree)
	}
}

// Kind returns the runtime variant of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean value. A string "true", an integer 1 and
// null are all errors, never false.
func (v Value) AsBool() (bool, error) {
	if v.kind == KindNull {
		return false, fmt.Errorf("%w: boolean requested", ErrUnexpectedNull)
	}
	if v.kind != KindBool {
		return false, mismatch("boolean", v.kind)
	}
	return v.b, nil
}

// AsInt64 returns the integer value. Float cells are rejected, even when
// they hold a whole number.
func (v Value) AsInt64() (int64, error) {
	if v.kind == KindNull {
		return 0, fmt.Errorf("%w: integer requested", ErrUnexpectedNull)
	}
	if v.kind != KindInt {
		return 0, mismatch("integer", v.kind)
	}
	return v.i, nil
}

// AsInt returns the integer value narrowed to int, failing on overflow.
func (v Value) AsInt() (int, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt || i > math.MaxInt {
		return 0, narrowError("int", i)
	}
	return int(i), nil
}

// AsInt32 returns the integer value narrowed to int32, failing on
// overflow rather than truncating.
func (v Value) AsInt32() (int32, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, narrowError("int32", i)
	}
	return int32(i), nil
}

// AsInt16 returns the integer value narrowed to int16, failing on
// overflow rather than truncating.
func (v Value) AsInt16() (int16, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt16 || i > math.MaxInt16 {
		return 0, narrowError("int16", i)
	}
	return int16(i), nil
}

// AsInt8 returns the integer value narrowed to int8, failing on overflow
// rather than truncating.
func (v Value) AsInt8() (int8, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt8 || i > math.MaxInt8 {
		return 0, narrowError("int8", i)
	}
	return int8(i), nil
}

// AsFloat64 returns the float value. Integer cells widen losslessly;
// every other variant is a mismatch.
func (v Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindNull:
		return 0, fmt.Errorf("%w: float requested", ErrUnexpectedNull)
	case KindFloat:
		return v.f, nil
	case KindInt:
		return float64(v.i), nil
	default:
		return 0, mismatch("float", v.kind)
	}
}

// AsFloat32 returns the float value narrowed to float32, failing when the
// magnitude exceeds the float32 range.
func (v Value) AsFloat32() (float32, error) {
	f, err := v.AsFloat64()
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && math.IsInf(float64(float32(f)), 0) {
		return 0, fmt.Errorf("%w: %g overflows float32", ErrTypeMismatch, f)
	}
	return float32(f), nil
}

// AsString returns the string value. Numbers and booleans are not
// stringified; they are a mismatch.
func (v Value) AsString() (string, error) {
	if v.kind == KindNull {
		return "", fmt.Errorf("%w: string requested", ErrUnexpectedNull)
	}
	if v.kind != KindString {
		return "", mismatch("string", v.kind)
	}
	return v.s, nil
}

// AsList returns the list elements.
func (v Value) AsList() ([]Value, error) {
	if v.kind == KindNull {
		return nil, fmt.Errorf("%w: list requested", ErrUnexpectedNull)
	}
	if v.kind != KindList {
		return nil, mismatch("list", v.kind)
	}
	return v.l, nil
}

// AsMap returns the map entries.
func (v Value) AsMap() (map[string]Value, error) {
	if v.kind == KindNull {
		return nil, fmt.Errorf("%w: map requested", ErrUnexpectedNull)
	}
	if v.kind != KindMap {
		return nil, mismatch("map", v.kind)
	}
	return v.m, nil
}

// AsBoolPtr is the optional-target form of AsBool: null decodes to nil.
func (v Value) AsBoolPtr() (*bool, error) {
	if v.kind == KindNull {
		return nil, nil
	}
	b, err := v.AsBool()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AsInt64Ptr is the optional-target form of AsInt64: null decodes to nil.
func (v Value) AsInt64Ptr() (*int64, error) {
	if v.kind == KindNull {
		return nil, nil
	}
	i, err := v.AsInt64()
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// AsFloat64Ptr is the optional-target form of AsFloat64: null decodes to
// nil.
func (v Value) AsFloat64Ptr() (*float64, error) {
	if v.kind == KindNull {
		return nil, nil
	}
	f, err := v.AsFloat64()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// AsStringPtr is the optional-target form of AsString: null decodes to
// nil.
func (v Value) AsStringPtr() (*string, error) {
	if v.kind == KindNull {
		return nil, nil
	}
	s, err := v.AsString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Any returns the value as plain Go data: nil, bool, int64, float64,
// string, []any or map[string]any. Useful for callers that want to
// inspect a cell without committing to a type.
func (v Value) Any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// String renders the value for logs and CLI output. It is not the wire
// format; use MarshalJSON for that.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.l))
		for i, e := range v.l {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// Equal reports deep equality of two value trees.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.l) != len(other.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(other.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := other.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON writes the value in its wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("cannot marshal %s", v.kind)
	}
}

// UnmarshalJSON reads a value from its wire form. Whole numbers decode as
// integers, everything with a fraction or exponent as floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return err
	}
	*v = ValueOf(tree)
	return nil
}

func mismatch(want string, got Kind) error {
	return fmt.Errorf("%w: %s requested, cell holds %s", ErrTypeMismatch, want, got)
}

func narrowError(target string, val int64) error {
	return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, val, target)
}
