package jsonval

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value. The zero Value is null.
// Object keys keep their first-seen order.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  *object
}

type object struct {
	keys []string
	vals map[string]Value
}

type Member struct {
	Key   string
	Value Value
}

func NullValue() Value { return Value{} }

func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

func NumberValue(f float64) Value { return Value{kind: Number, num: f} }

func StringValue(s string) Value { return Value{kind: String, str: s} }

func ArrayValue(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: Array, arr: cp}
}

func StringsValue(items ...string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = StringValue(s)
	}
	return Value{kind: Array, arr: vals}
}

// ObjectOf builds an object; a repeated key overwrites the earlier value
// but keeps its original position.
func ObjectOf(members ...Member) Value {
	obj := &object{keys: make([]string, 0, len(members)), vals: make(map[string]Value, len(members))}
	for _, m := range members {
		obj.set(m.Key, m.Value)
	}
	return Value{kind: Object, obj: obj}
}

func (o *object) set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) IsObject() bool { return v.kind == Object }

func (v Value) IsArray() bool { return v.kind == Array }

func (v Value) Bool() bool { return v.kind == Bool && v.b }

func (v Value) Float() float64 {
	if v.kind != Number {
		return 0
	}
	return v.num
}

func (v Value) Str() string {
	if v.kind != String {
		return ""
	}
	return v.str
}

func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj.keys)
	case String:
		return len(v.str)
	default:
		return 0
	}
}

func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp
}

func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return append([]string(nil), v.obj.keys...)
}

func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	out := make([]Member, 0, len(v.obj.keys))
	for _, k := range v.obj.keys {
		out = append(out, Member{Key: k, Value: v.obj.vals[k]})
	}
	return out
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	val, ok := v.obj.vals[key]
	return val, ok
}

func (v Value) Index(i int) (Value, bool) {
	if v.kind != Array || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Child steps one segment into an object key or a decimal array index.
func (v Value) Child(segment string) (Value, bool) {
	switch v.kind {
	case Object:
		return v.Get(segment)
	case Array:
		i, err := strconv.Atoi(segment)
		if err != nil || strconv.Itoa(i) != segment {
			return Value{}, false
		}
		return v.Index(i)
	default:
		return Value{}, false
	}
}

// String renders scalars as plain text (numbers in shortest form, null as
// "null"); containers render as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.num)
	case String:
		return v.str
	default:
		return v.JSON()
	}
}

func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.num == b.num
	case String:
		return a.str == b.str
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj.keys) != len(b.obj.keys) {
			return false
		}
		for k, av := range a.obj.vals {
			bv, ok := b.obj.vals[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToAny converts into plain Go values (map[string]any, []any, float64,
// string, bool, nil) for consumers that work on untyped data.
func (v Value) ToAny() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num
	case String:
		return v.str
	case Array:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj.keys))
		for _, k := range v.obj.keys {
			out[k] = v.obj.vals[k].ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts decoded Go data back into a Value. Map keys are sorted
// since Go maps carry no order.
func FromAny(in any) Value {
	switch x := in.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case bool:
		return BoolValue(x)
	case string:
		return StringValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Value{kind: Array, arr: items}
	case []string:
		return StringsValue(x...)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(keys))
		for _, k := range keys {
			members = append(members, Member{Key: k, Value: FromAny(x[k])})
		}
		return ObjectOf(members...)
	default:
		return StringValue(fmt.Sprint(x))
	}
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
	abs := math.Abs(f)
	if abs < 1e21 && abs >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}
