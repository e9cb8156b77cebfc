package httpclient

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
)

// Payload is one of *RawPayload, *FormPayload or *JSONPayload.
type Payload interface {
	payload()
}

type RawPayload struct {
	Text string
}

type FormPart struct {
	Key      string
	Value    string
	File     bool
	FileName string
	Content  []byte
}

type FormPayload struct {
	Parts []FormPart
}

type JSONPayload struct {
	Value jsonval.Value
}

func (*RawPayload) payload()  {}
func (*FormPayload) payload() {}
func (*JSONPayload) payload() {}

// encodePayload renders p for the wire. contentType is non-empty only when
// the encoding dictates it (multipart boundaries).
func encodePayload(p Payload) (body io.Reader, contentType string, err error) {
	switch v := p.(type) {
	case nil:
		return nil, "", nil
	case *RawPayload:
		return strings.NewReader(v.Text), "", nil
	case *JSONPayload:
		return strings.NewReader(v.Value.JSON()), "", nil
	case *FormPayload:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, part := range v.Parts {
			if !part.File {
				if err := w.WriteField(part.Key, part.Value); err != nil {
					return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "write form field %s", part.Key)
				}
				continue
			}
			name := part.FileName
			if name == "" {
				name = part.Key
			}
			fw, err := w.CreateFormFile(part.Key, filepath.Base(name))
			if err != nil {
				return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "create form file %s", part.Key)
			}
			if _, err := fw.Write(part.Content); err != nil {
				return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "write form file %s", part.Key)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "close multipart body")
		}
		return &buf, w.FormDataContentType(), nil
	default:
		return nil, "", errdef.New(errdef.CodeHTTP, "unsupported payload %T", p)
	}
}

// PayloadText returns the textual form of p for display and history.
// Multipart payloads list their parts instead of the encoded body.
func PayloadText(p Payload) string {
	switch v := p.(type) {
	case *RawPayload:
		return v.Text
	case *JSONPayload:
		return v.Value.JSON()
	case *FormPayload:
		var b strings.Builder
		for i, part := range v.Parts {
			if i > 0 {
				b.WriteByte('\n')
			}
			if part.File {
				b.WriteString(part.Key + "=@" + part.FileName)
			} else {
				b.WriteString(part.Key + "=" + part.Value)
			}
		}
		return b.String()
	default:
		return ""
	}
}
