package httpclient

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

// decodeBody undoes Content-Encoding and converts a declared non UTF-8
// charset. The transport only unwraps gzip it asked for itself, so bodies
// requested with an explicit Accept-Encoding arrive here still encoded.
func decodeBody(h http.Header, body []byte) ([]byte, error) {
	out := body
	for _, enc := range contentEncodings(h) {
		decoded, err := decompress(out, enc)
		if err != nil {
			return body, err
		}
		out = decoded
	}
	return toUTF8(out, h.Get(contentTypeHeader)), nil
}

// contentEncodings lists the codings to remove, last applied first.
func contentEncodings(h http.Header) []string {
	var codings []string
	for _, raw := range h.Values("Content-Encoding") {
		for _, part := range strings.Split(raw, ",") {
			if c := strings.ToLower(strings.TrimSpace(part)); c != "" && c != "identity" {
				codings = append(codings, c)
			}
		}
	}
	for i, j := 0, len(codings)-1; i < j; i, j = i+1, j-1 {
		codings[i], codings[j] = codings[j], codings[i]
	}
	return codings
}

func decompress(data []byte, coding string) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var r io.Reader
	switch coding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "decode gzip body")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	case "deflate":
		// HTTP deflate is zlib-wrapped; some servers send raw deflate anyway.
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			fr := flate.NewReader(bytes.NewReader(data))
			defer func() { _ = fr.Close() }()
			r = fr
			break
		}
		defer func() { _ = zr.Close() }()
		r = zr
	case "br":
		r = brotli.NewReader(bytes.NewReader(data))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "decode zstd body")
		}
		defer zr.Close()
		r = zr
	default:
		return nil, errdef.New(errdef.CodeHTTP, "unsupported content encoding %q", coding)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "decode %s body", coding)
	}
	return out, nil
}

func toUTF8(body []byte, contentType string) []byte {
	if len(body) == 0 || contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	cs := strings.ToLower(strings.TrimSpace(params["charset"]))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}
