// Package value provides the dynamic value type of the template engine.
//
// Every expression in a template evaluates to exactly one Value. A Value is
// one of six kinds:
//   - None: the absent value (undefined variables resolve to None)
//   - Bool: true or false
//   - Number: a float64
//   - String: UTF-8 text
//   - List: an ordered sequence of values
//   - Map: string keys to values
//
// Values are immutable once built; lists and maps handed to FromSlice and
// FromMap must not be modified by the caller afterwards.
//
// # Example Usage
//
//	data := value.FromMap(map[string]value.Value{
//	    "name":  value.FromString("Andrey"),
//	    "items": value.FromSlice([]value.Value{value.FromInt(1), value.FromInt(2)}),
//	})
//
//	if name, ok := data.GetAttr("name").AsString(); ok {
//	    fmt.Println(name)
//	}
package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ValueKind describes the type of a Value.
type ValueKind int

const (
	// KindNone is the absent value.
	KindNone ValueKind = iota
	// KindBool is a boolean.
	KindBool
	// KindNumber is a float64. Integers are numbers with no fractional part.
	KindNumber
	// KindString is a text string.
	KindString
	// KindList is an ordered sequence.
	KindList
	// KindMap is a string-keyed mapping.
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed template value.
//
// The zero Value is None.
type Value struct {
	data interface{}
}

// None returns the None value.
func None() Value {
	return Value{}
}

// FromBool creates a boolean value.
func FromBool(b bool) Value {
	return Value{data: b}
}

// FromInt creates a number from an integer.
func FromInt(i int64) Value {
	return Value{data: float64(i)}
}

// FromFloat creates a number.
func FromFloat(f float64) Value {
	return Value{data: f}
}

// FromString creates a string value.
func FromString(s string) Value {
	return Value{data: s}
}

// FromSlice creates a list value. The slice is not copied.
func FromSlice(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{data: items}
}

// FromMap creates a map value. The map is not copied.
func FromMap(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{data: m}
}

// FromAny converts a Go value into a Value.
//
// Supported inputs are nil, Value, booleans, all integer and float kinds,
// strings, slices and arrays, maps with string keys, structs (exported
// fields become map keys) and pointers to any of these. Anything else is
// converted with fmt.Sprint.
func FromAny(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return None()
	case Value:
		return x
	case bool:
		return FromBool(x)
	case int:
		return FromInt(int64(x))
	case int8:
		return FromInt(int64(x))
	case int16:
		return FromInt(int64(x))
	case int32:
		return FromInt(int64(x))
	case int64:
		return FromInt(x)
	case uint:
		return FromFloat(float64(x))
	case uint8:
		return FromInt(int64(x))
	case uint16:
		return FromInt(int64(x))
	case uint32:
		return FromInt(int64(x))
	case uint64:
		return FromFloat(float64(x))
	case float32:
		return FromFloat(float64(x))
	case float64:
		return FromFloat(x)
	case string:
		return FromString(x)
	case []Value:
		return FromSlice(x)
	case map[string]Value:
		return FromMap(x)
	case []interface{}:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return FromSlice(items)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromAny(item)
		}
		return FromMap(m)
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return None()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return None()
		}
		return fromReflect(rv.Elem())
	case reflect.Bool:
		return FromBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return FromFloat(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return FromFloat(rv.Float())
	case reflect.String:
		return FromString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return FromSlice(nil)
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return FromSlice(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = FromAny(iter.Value().Interface())
		}
		return FromMap(m)
	case reflect.Struct:
		t := rv.Type()
		m := make(map[string]Value, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			m[field.Name] = FromAny(rv.Field(i).Interface())
		}
		return FromMap(m)
	}
	return FromString(fmt.Sprint(rv.Interface()))
}

// Kind returns the kind of the value.
func (v Value) Kind() ValueKind {
	switch v.data.(type) {
	case nil:
		return KindNone
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []Value:
		return KindList
	case map[string]Value:
		return KindMap
	default:
		return KindNone
	}
}

// IsNone returns true for the None value.
func (v Value) IsNone() bool {
	return v.data == nil
}

// AsBool returns the boolean if the value is a Bool.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok
}

// AsFloat returns the number if the value is a Number.
func (v Value) AsFloat() (float64, bool) {
	f, ok := v.data.(float64)
	return f, ok
}

// AsInt returns the number as an int64 if it is a Number without a
// fractional part.
func (v Value) AsInt() (int64, bool) {
	f, ok := v.data.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// AsString returns the string if the value is a String.
func (v Value) AsString() (string, bool) {
	s, ok := v.data.(string)
	return s, ok
}

// AsSlice returns the items if the value is a List.
func (v Value) AsSlice() ([]Value, bool) {
	items, ok := v.data.([]Value)
	return items, ok
}

// AsMap returns the entries if the value is a Map.
func (v Value) AsMap() (map[string]Value, bool) {
	m, ok := v.data.(map[string]Value)
	return m, ok
}

// Len returns the length of a list, map or string (in runes).
func (v Value) Len() (int, bool) {
	switch d := v.data.(type) {
	case []Value:
		return len(d), true
	case map[string]Value:
		return len(d), true
	case string:
		return len([]rune(d)), true
	}
	return 0, false
}

// Keys returns the sorted keys of a map value.
func (v Value) Keys() []string {
	m, ok := v.AsMap()
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsTrue reports the truthiness of the value.
//
// None, false, the empty string, 0 and NaN are falsy; everything else,
// including empty lists and maps, is truthy.
func (v Value) IsTrue() bool {
	switch d := v.data.(type) {
	case nil:
		return false
	case bool:
		return d
	case float64:
		return d != 0 && !math.IsNaN(d)
	case string:
		return d != ""
	default:
		return true
	}
}

// GetAttr looks up a map key. A numeric name indexes into a list. Any miss
// yields None.
func (v Value) GetAttr(name string) Value {
	switch d := v.data.(type) {
	case map[string]Value:
		if item, ok := d[name]; ok {
			return item
		}
	case []Value:
		if idx, err := strconv.Atoi(name); err == nil && idx >= 0 && idx < len(d) {
			return d[idx]
		}
	}
	return None()
}

// GetItem implements bracket access.
//
// Lists require an integral in-range index and fail with an error wrapping
// ErrIndexOutOfRange otherwise. Maps look up the key's string form and yield
// None on a miss, as does indexing None.
func (v Value) GetItem(key Value) (Value, error) {
	switch d := v.data.(type) {
	case nil:
		return None(), nil
	case []Value:
		idx, ok := key.AsInt()
		if !ok {
			return None(), opError(ErrIndexOutOfRange, "list index must be an integer, got %s", key.Repr())
		}
		if idx < 0 || idx >= int64(len(d)) {
			return None(), opError(ErrIndexOutOfRange, "index %d out of range for list of length %d", idx, len(d))
		}
		return d[idx], nil
	case map[string]Value:
		if item, ok := d[key.String()]; ok {
			return item, nil
		}
		return None(), nil
	}
	return None(), opError(ErrInvalidOperand, "cannot index %s", v.Kind())
}

// String returns the output form of the value.
func (v Value) String() string {
	switch d := v.data.(type) {
	case nil:
		return ""
	case bool:
		if d {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(d)
	case string:
		return d
	case []Value:
		parts := make([]string, len(d))
		for i, item := range d {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]Value:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + d[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// Repr returns a debug representation that keeps strings quoted.
func (v Value) Repr() string {
	switch d := v.data.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(d, "'", "\\'") + "'"
	case []Value:
		parts := make([]string, len(d))
		for i, item := range d {
			parts[i] = item.Repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]Value:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "'" + k + "': " + d[k].Repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return v.String()
}

// Equal reports structural equality. Values of different kinds are never
// equal.
func (v Value) Equal(other Value) bool {
	switch a := v.data.(type) {
	case nil:
		return other.data == nil
	case bool:
		b, ok := other.data.(bool)
		return ok && a == b
	case float64:
		b, ok := other.data.(float64)
		return ok && a == b
	case string:
		b, ok := other.data.(string)
		return ok && a == b
	case []Value:
		b, ok := other.data.([]Value)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case map[string]Value:
		b, ok := other.data.(map[string]Value)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, item := range a {
			otherItem, ok := b[k]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	}
	return false
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
