package restfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

type Collection struct {
	Name      string
	Path      string
	Variables map[string]string
	Requests  []*Request
}

// Selected returns the saved requests whose ID is in ids, in collection
// order. An empty ids selects every saved request.
func (c *Collection) Selected(ids []string) []*Request {
	if c == nil {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = struct{}{}
		}
	}
	var out []*Request
	for _, req := range c.Requests {
		if !req.Saved() {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[req.ID]; !ok {
				continue
			}
		}
		out = append(out, req)
	}
	return out
}

// Find looks a request up by ID, then by case-insensitive name.
func (c *Collection) Find(ref string) (*Request, bool) {
	if c == nil {
		return nil, false
	}
	for _, req := range c.Requests {
		if req.ID != "" && req.ID == ref {
			return req, true
		}
	}
	for _, req := range c.Requests {
		if strings.EqualFold(req.Name, ref) {
			return req, true
		}
	}
	return nil, false
}

type collectionFile struct {
	Name      string            `json:"name" yaml:"name"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Requests  []requestFile     `json:"requests" yaml:"requests"`
}

type requestFile struct {
	ID         string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string          `json:"name" yaml:"name"`
	Method     string          `json:"method,omitempty" yaml:"method,omitempty"`
	Protocol   string          `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	URL        string          `json:"url" yaml:"url"`
	Headers    []kvFile        `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params     []paramFile     `json:"params,omitempty" yaml:"params,omitempty"`
	Body       *bodyFile       `json:"body,omitempty" yaml:"body,omitempty"`
	Auth       *authFile       `json:"auth,omitempty" yaml:"auth,omitempty"`
	Assertions []assertionFile `json:"assertions,omitempty" yaml:"assertions,omitempty"`
	Captures   []captureFile   `json:"captures,omitempty" yaml:"captures,omitempty"`
	SSE        *sseFile        `json:"sse,omitempty" yaml:"sse,omitempty"`
	WebSocket  *wsFile         `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

type kvFile struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type paramFile struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

type bodyFile struct {
	Mode     string      `json:"mode" yaml:"mode"`
	Raw      string      `json:"raw,omitempty" yaml:"raw,omitempty"`
	FormData []fieldFile `json:"formdata,omitempty" yaml:"formdata,omitempty"`
	GraphQL  *struct {
		Query     string `json:"query" yaml:"query"`
		Variables string `json:"variables,omitempty" yaml:"variables,omitempty"`
	} `json:"graphql,omitempty" yaml:"graphql,omitempty"`
}

type fieldFile struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Src      string `json:"src,omitempty" yaml:"src,omitempty"`
	FileName string `json:"fileName,omitempty" yaml:"fileName,omitempty"`
}

type authFile struct {
	Type     string `json:"type" yaml:"type"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	AddTo    string `json:"addTo,omitempty" yaml:"addTo,omitempty"`
}

type assertionFile struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Type     string `json:"type" yaml:"type"`
	Property string `json:"property,omitempty" yaml:"property,omitempty"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

type captureFile struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

type sseFile struct {
	TotalTimeout string `json:"totalTimeout,omitempty" yaml:"totalTimeout,omitempty"`
	IdleTimeout  string `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	MaxEvents    int    `json:"maxEvents,omitempty" yaml:"maxEvents,omitempty"`
	MaxBytes     int64  `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty"`
}

type wsFile struct {
	HandshakeTimeout string   `json:"handshakeTimeout,omitempty" yaml:"handshakeTimeout,omitempty"`
	IdleTimeout      string   `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	MaxMessageBytes  int64    `json:"maxMessageBytes,omitempty" yaml:"maxMessageBytes,omitempty"`
	MaxMessages      int      `json:"maxMessages,omitempty" yaml:"maxMessages,omitempty"`
	Subprotocols     []string `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty"`
}

// LoadCollection reads a collection from a .yaml, .yml or .json file.
func LoadCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read collection %s", path)
	}
	coll, err := ParseCollection(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	coll.Path = path
	if coll.Name == "" {
		coll.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return coll, nil
}

// ParseCollection decodes data according to ext (".json" or YAML
// otherwise).
func ParseCollection(data []byte, ext string) (*Collection, error) {
	var raw collectionFile
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "parse collection json")
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "parse collection yaml")
		}
	}

	coll := &Collection{Name: raw.Name, Variables: raw.Variables}
	if coll.Variables == nil {
		coll.Variables = map[string]string{}
	}
	seen := make(map[string]struct{}, len(raw.Requests))
	for i, rf := range raw.Requests {
		req, err := rf.toRequest()
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "request %d (%s)", i+1, rf.Name)
		}
		if req.ID != "" {
			if _, dup := seen[req.ID]; dup {
				return nil, errdef.New(errdef.CodeParse, "request %d: duplicate id %q", i+1, req.ID)
			}
			seen[req.ID] = struct{}{}
		}
		coll.Requests = append(coll.Requests, req)
	}
	return coll, nil
}

func (rf requestFile) toRequest() (*Request, error) {
	req := &Request{
		ID:     strings.TrimSpace(rf.ID),
		Name:   rf.Name,
		Method: strings.ToUpper(strings.TrimSpace(rf.Method)),
		URL:    rf.URL,
	}
	if req.Method == "" {
		req.Method = "GET"
	}
	switch req.Method {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD":
	default:
		return nil, errdef.New(errdef.CodeParse, "unsupported method %q", rf.Method)
	}

	switch p := Protocol(strings.ToUpper(strings.TrimSpace(rf.Protocol))); p {
	case "", ProtocolREST:
		req.Protocol = ProtocolREST
	case ProtocolWS, ProtocolSSE, ProtocolGraphQL:
		req.Protocol = p
	default:
		return nil, errdef.New(errdef.CodeParse, "unsupported protocol %q", rf.Protocol)
	}

	for _, h := range rf.Headers {
		req.Headers = append(req.Headers, KV{Key: h.Key, Value: h.Value})
	}

	var params []Param
	for _, p := range rf.Params {
		kind := ParamType(strings.ToLower(p.Type))
		switch kind {
		case "", ParamQuery:
			kind = ParamQuery
		case ParamPath:
		default:
			return nil, errdef.New(errdef.CodeParse, "param %q: unknown type %q", p.Key, p.Type)
		}
		params = append(params, Param{Key: p.Key, Value: p.Value, Type: kind})
	}
	if !hasQueryParams(params) {
		params = append(params, QueryParamsFromURL(rf.URL)...)
	}
	req.Params = SyncPathParams(rf.URL, params)

	body, err := rf.Body.toBody()
	if err != nil {
		return nil, err
	}
	req.Body = body

	auth, err := rf.Auth.toAuth()
	if err != nil {
		return nil, err
	}
	req.Auth = auth

	seenIDs := make(map[string]struct{}, len(rf.Assertions))
	for _, af := range rf.Assertions {
		kind := AssertionType(strings.ToLower(strings.TrimSpace(af.Type)))
		if !kind.Valid() {
			return nil, errdef.New(errdef.CodeParse, "unknown assertion type %q", af.Type)
		}
		a := NewAssertion(kind, af.Property, af.Expected)
		if id := strings.TrimSpace(af.ID); id != "" {
			a.ID = id
		}
		if _, dup := seenIDs[a.ID]; dup {
			return nil, errdef.New(errdef.CodeParse, "duplicate assertion id %q", a.ID)
		}
		seenIDs[a.ID] = struct{}{}
		req.Assertions = append(req.Assertions, a)
	}

	for _, cf := range rf.Captures {
		if strings.TrimSpace(cf.Name) == "" || strings.TrimSpace(cf.Path) == "" {
			return nil, errdef.New(errdef.CodeParse, "capture needs both name and path")
		}
		req.Captures = append(req.Captures, Capture{Name: strings.TrimSpace(cf.Name), Path: strings.TrimSpace(cf.Path)})
	}

	if rf.SSE != nil {
		opts, err := rf.SSE.toOptions()
		if err != nil {
			return nil, err
		}
		req.SSE = opts
	}
	if rf.WebSocket != nil {
		opts, err := rf.WebSocket.toOptions()
		if err != nil {
			return nil, err
		}
		req.WebSocket = opts
	}
	return req, nil
}

func hasQueryParams(params []Param) bool {
	for _, p := range params {
		if p.Type == ParamQuery {
			return true
		}
	}
	return false
}

func (bf *bodyFile) toBody() (Body, error) {
	if bf == nil {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(bf.Mode)) {
	case "", "none":
		return nil, nil
	case "raw":
		return RawBody{Raw: bf.Raw}, nil
	case "formdata":
		fields := make([]FormField, 0, len(bf.FormData))
		for _, f := range bf.FormData {
			kind := FieldType(strings.ToLower(f.Type))
			switch kind {
			case "", FieldText:
				kind = FieldText
			case FieldFile:
			default:
				return nil, errdef.New(errdef.CodeParse, "form field %q: unknown type %q", f.Key, f.Type)
			}
			fields = append(fields, FormField{
				Key:      f.Key,
				Value:    f.Value,
				Type:     kind,
				FilePath: f.Src,
				FileName: f.FileName,
			})
		}
		return FormDataBody{Fields: fields}, nil
	case "graphql":
		if bf.GraphQL == nil {
			return GraphQLBody{}, nil
		}
		return GraphQLBody{Query: bf.GraphQL.Query, Variables: bf.GraphQL.Variables}, nil
	default:
		return nil, errdef.New(errdef.CodeParse, "unknown body mode %q", bf.Mode)
	}
}

func (af *authFile) toAuth() (Auth, error) {
	if af == nil {
		return NoAuth{}, nil
	}
	switch strings.ToLower(strings.TrimSpace(af.Type)) {
	case "", "none", "noauth":
		return NoAuth{}, nil
	case "bearer":
		return BearerAuth{Token: af.Token}, nil
	case "basic":
		return BasicAuth{Username: af.Username, Password: af.Password}, nil
	case "apikey":
		addTo := APIKeyPlacement(strings.ToLower(af.AddTo))
		switch addTo {
		case "", APIKeyHeader:
			addTo = APIKeyHeader
		case APIKeyQuery:
		default:
			return nil, errdef.New(errdef.CodeParse, "apikey: unknown placement %q", af.AddTo)
		}
		return APIKeyAuth{Key: af.Key, Value: af.Value, AddTo: addTo}, nil
	default:
		return nil, errdef.New(errdef.CodeParse, "unknown auth type %q", af.Type)
	}
}

func (sf *sseFile) toOptions() (SSEOptions, error) {
	total, err := parseDuration("sse.totalTimeout", sf.TotalTimeout)
	if err != nil {
		return SSEOptions{}, err
	}
	idle, err := parseDuration("sse.idleTimeout", sf.IdleTimeout)
	if err != nil {
		return SSEOptions{}, err
	}
	return SSEOptions{TotalTimeout: total, IdleTimeout: idle, MaxEvents: sf.MaxEvents, MaxBytes: sf.MaxBytes}, nil
}

func (wf *wsFile) toOptions() (WebSocketOptions, error) {
	handshake, err := parseDuration("websocket.handshakeTimeout", wf.HandshakeTimeout)
	if err != nil {
		return WebSocketOptions{}, err
	}
	idle, err := parseDuration("websocket.idleTimeout", wf.IdleTimeout)
	if err != nil {
		return WebSocketOptions{}, err
	}
	return WebSocketOptions{
		HandshakeTimeout: handshake,
		IdleTimeout:      idle,
		MaxMessageBytes:  wf.MaxMessageBytes,
		MaxMessages:      wf.MaxMessages,
		Subprotocols:     append([]string(nil), wf.Subprotocols...),
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errdef.Wrap(errdef.CodeParse, err, "%s", field)
	}
	if d < 0 {
		return 0, errdef.New(errdef.CodeParse, "%s must not be negative", field)
	}
	return d, nil
}
