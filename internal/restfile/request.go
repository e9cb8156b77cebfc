package restfile

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxHistory bounds Request.History.
const MaxHistory = 10

var (
	pathTokenPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)
	schemePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)
)

// PathTokenPattern matches `:name` path placeholders. Ports never match
// because names cannot start with a digit.
func PathTokenPattern() *regexp.Regexp {
	return pathTokenPattern
}

func NewAssertion(kind AssertionType, property, expected string) Assertion {
	return Assertion{
		ID:       uuid.NewString(),
		Type:     kind,
		Property: property,
		Expected: expected,
	}
}

// PathTokens lists the distinct `:name` tokens of rawURL's path in order of
// first appearance. Scheme, authority, query and fragment are ignored.
func PathTokens(rawURL string) []string {
	path := pathPortion(rawURL)
	matches := pathTokenPattern.FindAllStringSubmatch(path, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func pathPortion(rawURL string) string {
	s := rawURL
	if idx := strings.IndexAny(s, "?#"); idx >= 0 {
		s = s[:idx]
	}
	if loc := schemePattern.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
		slash := strings.Index(s, "/")
		if slash < 0 {
			return ""
		}
		return s[slash:]
	}
	if slash := strings.Index(s, "/"); slash > 0 {
		return s[slash:]
	}
	return s
}

// SyncPathParams returns params with exactly one path entry per token in
// rawURL. Existing path values survive, stale path entries are dropped,
// query entries follow in their original relative order.
func SyncPathParams(rawURL string, params []Param) []Param {
	tokens := PathTokens(rawURL)
	existing := make(map[string]string, len(params))
	for _, p := range params {
		if p.Type != ParamPath {
			continue
		}
		if _, ok := existing[p.Key]; !ok {
			existing[p.Key] = p.Value
		}
	}

	out := make([]Param, 0, len(tokens)+len(params))
	for _, p := range params {
		if p.Type != ParamPath {
			out = append(out, p)
		}
	}
	path := make([]Param, 0, len(tokens))
	for _, tok := range tokens {
		path = append(path, Param{Key: tok, Value: existing[tok], Type: ParamPath})
	}
	return append(path, out...)
}

// QueryParamsFromURL decodes the literal query suffix of rawURL.
func QueryParamsFromURL(rawURL string) []Param {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return nil
	}
	query := rawURL[idx+1:]
	if hash := strings.Index(query, "#"); hash >= 0 {
		query = query[:hash]
	}
	var out []Param
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		if key == "" {
			continue
		}
		out = append(out, Param{Key: key, Value: unescape(value), Type: ParamQuery})
	}
	return out
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

// PathParam returns the value of the path param named key.
func (r *Request) PathParam(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, p := range r.Params {
		if p.Type == ParamPath && p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

func (r *Request) QueryParams() []Param {
	if r == nil {
		return nil
	}
	var out []Param
	for _, p := range r.Params {
		if p.Type == ParamQuery {
			out = append(out, p)
		}
	}
	return out
}

// SetURL replaces the URL template and resyncs path params.
func (r *Request) SetURL(rawURL string) {
	r.URL = rawURL
	r.Params = SyncPathParams(rawURL, r.Params)
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Headers = append([]KV(nil), r.Headers...)
	clone.Params = append([]Param(nil), r.Params...)
	clone.Assertions = append([]Assertion(nil), r.Assertions...)
	clone.Captures = append([]Capture(nil), r.Captures...)
	clone.WebSocket.Subprotocols = append([]string(nil), r.WebSocket.Subprotocols...)
	clone.Body = cloneBody(r.Body)
	if len(r.History) > 0 {
		clone.History = append([]HistoryEntry(nil), r.History...)
	} else {
		clone.History = nil
	}
	return &clone
}

// Snapshot is a Clone without the response state, as stored in history.
func (r *Request) Snapshot() Request {
	clone := r.Clone()
	if clone == nil {
		return Request{}
	}
	clone.History = nil
	clone.LastResponse = nil
	return *clone
}

func cloneBody(b Body) Body {
	form, ok := b.(FormDataBody)
	if !ok {
		return b
	}
	fields := make([]FormField, len(form.Fields))
	for i, f := range form.Fields {
		if f.Content != nil {
			f.Content = append([]byte{}, f.Content...)
		}
		fields[i] = f
	}
	return FormDataBody{Fields: fields}
}

// PushHistory records result as the latest response, newest first.
func (r *Request) PushHistory(result Result, at time.Time) {
	if r == nil || result == nil {
		return
	}
	entry := HistoryEntry{Request: r.Snapshot(), Response: result, Timestamp: at}
	r.LastResponse = result
	r.History = append([]HistoryEntry{entry}, r.History...)
	if len(r.History) > MaxHistory {
		r.History = r.History[:MaxHistory]
	}
}
