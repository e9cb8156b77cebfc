package jsonval

import (
	"strings"

	"github.com/tidwall/gjson"
)

// MaxDepth bounds deep-parse recursion. Deeper values are returned as-is.
const MaxDepth = 64

const stackMarker = "\n    at "

// Parse decodes a complete JSON document. Surrounding whitespace is allowed,
// trailing garbage is not.
func Parse(text string) (Value, bool) {
	if !gjson.Valid(text) {
		return Value{}, false
	}
	return fromResult(gjson.Parse(text)), true
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return BoolValue(false)
	case gjson.True:
		return BoolValue(true)
	case gjson.Number:
		return NumberValue(r.Num)
	case gjson.String:
		return StringValue(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			var items []Value
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromResult(item))
				return true
			})
			return Value{kind: Array, arr: items}
		}
		obj := &object{vals: make(map[string]Value)}
		r.ForEach(func(key, item gjson.Result) bool {
			obj.set(key.Str, fromResult(item))
			return true
		})
		return Value{kind: Object, obj: obj}
	default:
		return Value{}
	}
}

// DeepParse recovers structure from response text. Every string met on the
// way is parsed again, so JSON encoded inside JSON strings collapses. Text of
// the form `Label: {...}\n    at frame` becomes
// {errorType, errorDetails, stackTrace}. Anything unparsable stays a string.
func DeepParse(text string) Value {
	return deepString(text, 0)
}

// Deep applies DeepParse to every string inside v.
func Deep(v Value) Value {
	return deep(v, 0)
}

func deep(v Value, depth int) Value {
	if depth >= MaxDepth {
		return v
	}
	switch v.kind {
	case String:
		return deepString(v.str, depth)
	case Array:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = deep(item, depth+1)
		}
		return Value{kind: Array, arr: items}
	case Object:
		obj := &object{keys: make([]string, 0, len(v.obj.keys)), vals: make(map[string]Value, len(v.obj.keys))}
		for _, k := range v.obj.keys {
			obj.set(k, deep(v.obj.vals[k], depth+1))
		}
		return Value{kind: Object, obj: obj}
	default:
		return v
	}
}

func deepString(s string, depth int) Value {
	if depth >= MaxDepth {
		return StringValue(s)
	}
	if parsed, ok := Parse(s); ok {
		return deep(parsed, depth+1)
	}

	brace := strings.IndexAny(s, "{[")
	if brace < 0 {
		return StringValue(s)
	}

	candidate := s[brace:]
	var (
		stack    []string
		hasStack bool
	)
	if idx := strings.Index(candidate, stackMarker); idx >= 0 {
		stack = splitStack(candidate[idx:])
		candidate = candidate[:idx]
		hasStack = true
	}

	details, ok := Parse(candidate)
	if !ok {
		return StringValue(s)
	}

	label := strings.TrimSpace(s[:brace])
	label = strings.TrimSpace(strings.TrimSuffix(label, ":"))

	members := []Member{
		{Key: "errorType", Value: StringValue(label)},
		{Key: "errorDetails", Value: deep(details, depth+1)},
	}
	if hasStack {
		members = append(members, Member{Key: "stackTrace", Value: StringsValue(stack...)})
	}
	return ObjectOf(members...)
}

func splitStack(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
