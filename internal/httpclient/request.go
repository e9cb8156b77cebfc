package httpclient

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

const contentTypeHeader = "Content-Type"

// Prepared is a request with every template resolved, ready for the wire.
type Prepared struct {
	RequestID string
	Name      string
	Method    string
	URL       string
	Headers   map[string]string
	Body      Payload
	Protocol  restfile.Protocol
	SSE       restfile.SSEOptions
	WebSocket restfile.WebSocketOptions
}

// HeaderNames returns the header keys sorted, for stable iteration.
func (p *Prepared) HeaderNames() []string {
	names := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type Builder struct {
	Resolver *vars.Resolver
	FS       FileSystem
}

// Build resolves req against set with the default resolver and the OS
// filesystem.
func Build(req *restfile.Request, set vars.Set) (*Prepared, error) {
	return Builder{}.Build(req, set)
}

func (b Builder) resolver() *vars.Resolver {
	if b.Resolver == nil {
		return vars.NewResolver()
	}
	return b.Resolver
}

func (b Builder) Build(req *restfile.Request, set vars.Set) (*Prepared, error) {
	if req == nil {
		return nil, errdef.New(errdef.CodeHTTP, "request is nil")
	}
	r := b.resolver()
	resolve := func(s string) string { return r.Resolve(s, set, req) }

	rawURL := strings.TrimSpace(resolve(req.URL))
	if rawURL == "" {
		return nil, errdef.New(errdef.CodeHTTP, "request url is empty")
	}
	for _, p := range req.Params {
		if p.Type != restfile.ParamQuery || p.Key == "" {
			continue
		}
		rawURL = setQueryParam(rawURL, p.Key, resolve(p.Value))
	}

	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		if strings.TrimSpace(h.Key) == "" {
			continue
		}
		headers[h.Key] = resolve(h.Value)
	}

	protocol := req.EffectiveProtocol()
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}
	if protocol == restfile.ProtocolWS || protocol == restfile.ProtocolSSE {
		method = "GET"
	}

	prepared := &Prepared{
		RequestID: req.ID,
		Name:      req.Name,
		Method:    method,
		Headers:   headers,
		Protocol:  protocol,
		SSE:       req.SSE,
		WebSocket: req.WebSocket,
	}

	bodyless := method == "GET" || method == "HEAD"
	switch body := req.Body.(type) {
	case nil:
	case restfile.RawBody:
		text := resolve(body.Raw)
		if protocol == restfile.ProtocolWS {
			// The raw body is the first frame sent after the handshake.
			if text != "" {
				prepared.Body = &RawPayload{Text: text}
			}
			break
		}
		if bodyless || text == "" {
			break
		}
		prepared.Body = &RawPayload{Text: text}
		if _, ok := headerValue(headers, contentTypeHeader); !ok {
			headers[contentTypeHeader] = "application/json"
		}
	case restfile.FormDataBody:
		deleteHeader(headers, contentTypeHeader)
		if bodyless {
			break
		}
		parts, err := b.formParts(body, resolve)
		if err != nil {
			return nil, err
		}
		prepared.Body = &FormPayload{Parts: parts}
	case restfile.GraphQLBody:
		query := resolve(body.Query)
		variables := parseVariables(resolve(body.Variables))
		if bodyless {
			rawURL = setQueryParam(rawURL, "query", query)
			if variables.Len() > 0 {
				rawURL = setQueryParam(rawURL, "variables", variables.JSON())
			}
			break
		}
		prepared.Body = &JSONPayload{Value: jsonval.ObjectOf(
			jsonval.Member{Key: "query", Value: jsonval.StringValue(query)},
			jsonval.Member{Key: "variables", Value: variables},
		)}
		if _, ok := headerValue(headers, contentTypeHeader); !ok {
			headers[contentTypeHeader] = "application/json"
		}
	default:
		return nil, errdef.New(errdef.CodeHTTP, "unsupported body mode %T", req.Body)
	}

	if _, err := url.Parse(rawURL); err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "invalid url")
	}
	prepared.URL = rawURL
	return prepared, nil
}

func (b Builder) formParts(body restfile.FormDataBody, resolve func(string) string) ([]FormPart, error) {
	fsys := b.FS
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	parts := make([]FormPart, 0, len(body.Fields))
	for _, f := range body.Fields {
		if f.Key == "" {
			continue
		}
		if f.Type != restfile.FieldFile {
			parts = append(parts, FormPart{Key: f.Key, Value: resolve(f.Value)})
			continue
		}
		if !f.Attached() {
			continue
		}
		content := f.Content
		if content == nil {
			data, err := readAttachment(fsys, f.FilePath, "form file")
			if err != nil {
				return nil, err
			}
			content = data
		}
		name := f.FileName
		if name == "" && f.FilePath != "" {
			name = filepath.Base(f.FilePath)
		}
		parts = append(parts, FormPart{Key: f.Key, File: true, FileName: name, Content: content})
	}
	return parts, nil
}

// parseVariables decodes GraphQL variables, falling back to {} for empty or
// invalid input.
func parseVariables(text string) jsonval.Value {
	if strings.TrimSpace(text) == "" {
		return jsonval.ObjectOf()
	}
	v, ok := jsonval.Parse(text)
	if !ok {
		return jsonval.ObjectOf()
	}
	return v
}

// setQueryParam sets key=value in rawURL's query. The first same-named pair
// is replaced in place and later duplicates are dropped. Other pairs are
// kept byte for byte.
func setQueryParam(rawURL, key, value string) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")
	base, query, _ := strings.Cut(base, "?")

	encoded := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	var pairs []string
	if query != "" {
		pairs = strings.Split(query, "&")
	}
	out := make([]string, 0, len(pairs)+1)
	replaced := false
	for _, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if name == key {
			if !replaced {
				out = append(out, encoded)
				replaced = true
			}
			continue
		}
		out = append(out, pair)
	}
	if !replaced {
		out = append(out, encoded)
	}

	result := base + "?" + strings.Join(out, "&")
	if hasFragment {
		result += "#" + fragment
	}
	return result
}

func headerValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func deleteHeader(headers map[string]string, name string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
}
