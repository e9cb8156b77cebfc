package jsonval

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

// JSON renders v compactly, keeping object key order and without HTML
// escaping.
func (v Value) JSON() string {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.String()
}

// Indent renders v with two-space indentation.
func (v Value) Indent() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(v.JSON()), "", "  "); err != nil {
		return v.JSON()
	}
	return buf.String()
}

func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.JSON()), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, ok := Parse(string(data))
	if !ok {
		return errdef.New(errdef.CodeParse, "invalid json value")
	}
	*v = parsed
	return nil
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		s := formatNumber(v.num)
		if s == "NaN" || strings.HasSuffix(s, "Infinity") {
			s = "null"
		}
		buf.WriteString(s)
	case String:
		writeString(buf, v.str)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeValue(buf, item)
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			writeValue(buf, v.obj.vals[k])
		}
		buf.WriteByte('}')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}
