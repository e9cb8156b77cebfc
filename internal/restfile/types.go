package restfile

import (
	"time"

	"github.com/unkn0wn-root/reqflow/internal/jsonval"
)

type Protocol string

const (
	ProtocolREST    Protocol = "REST"
	ProtocolWS      Protocol = "WS"
	ProtocolSSE     Protocol = "SSE"
	ProtocolGraphQL Protocol = "GRAPHQL"
)

type KV struct {
	Key   string
	Value string
}

type ParamType string

const (
	ParamPath  ParamType = "path"
	ParamQuery ParamType = "query"
)

type Param struct {
	Key   string
	Value string
	Type  ParamType
}

// Body is one of RawBody, FormDataBody or GraphQLBody. A nil Body means the
// request carries none.
type Body interface {
	Mode() string
	body()
}

type RawBody struct {
	Raw string
}

type FormDataBody struct {
	Fields []FormField
}

type GraphQLBody struct {
	Query     string
	Variables string
}

func (RawBody) Mode() string      { return "raw" }
func (FormDataBody) Mode() string { return "formdata" }
func (GraphQLBody) Mode() string  { return "graphql" }

func (RawBody) body()      {}
func (FormDataBody) body() {}
func (GraphQLBody) body()  {}

type FieldType string

const (
	FieldText FieldType = "text"
	FieldFile FieldType = "file"
)

type FormField struct {
	Key      string
	Value    string
	Type     FieldType
	FilePath string
	FileName string
	Content  []byte
}

func (f FormField) Attached() bool {
	return f.Content != nil || f.FilePath != ""
}

// Auth is one of NoAuth, BearerAuth, BasicAuth or APIKeyAuth. nil acts as
// NoAuth.
type Auth interface {
	Kind() string
	auth()
}

type NoAuth struct{}

type BearerAuth struct {
	Token string
}

type BasicAuth struct {
	Username string
	Password string
}

type APIKeyPlacement string

const (
	APIKeyHeader APIKeyPlacement = "header"
	APIKeyQuery  APIKeyPlacement = "query"
)

type APIKeyAuth struct {
	Key   string
	Value string
	AddTo APIKeyPlacement
}

func (NoAuth) Kind() string     { return "none" }
func (BearerAuth) Kind() string { return "bearer" }
func (BasicAuth) Kind() string  { return "basic" }
func (APIKeyAuth) Kind() string { return "apikey" }

func (NoAuth) auth()     {}
func (BearerAuth) auth() {}
func (BasicAuth) auth()  {}
func (APIKeyAuth) auth() {}

type AssertionType string

const (
	AssertStatusCode   AssertionType = "status_code"
	AssertResponseTime AssertionType = "response_time"
	AssertBodyContains AssertionType = "body_contains"
	AssertJSONValue    AssertionType = "json_value"
	AssertExpression   AssertionType = "expression"
	AssertJSONSchema   AssertionType = "json_schema"
)

func (t AssertionType) Valid() bool {
	switch t {
	case AssertStatusCode, AssertResponseTime, AssertBodyContains, AssertJSONValue, AssertExpression, AssertJSONSchema:
		return true
	default:
		return false
	}
}

type Assertion struct {
	ID       string
	Type     AssertionType
	Property string
	Expected string
}

// Capture copies a gjson path out of a response payload into a run
// variable.
type Capture struct {
	Name string
	Path string
}

type TestResult struct {
	AssertionID string `json:"assertionId"`
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message"`
}

// Result is either *Success or *Failure.
type Result interface {
	Error() bool
	result()
}

type Success struct {
	Status      int
	StatusText  string
	Time        int64
	Size        int64
	Data        jsonval.Value
	Headers     map[string]string
	Timestamp   time.Time
	TestResults []TestResult
}

type Failure struct {
	Message string
}

func (*Success) Error() bool { return false }
func (*Failure) Error() bool { return true }

func (*Success) result() {}
func (*Failure) result() {}

type HistoryEntry struct {
	Request   Request
	Response  Result
	Timestamp time.Time
}

type SSEOptions struct {
	TotalTimeout time.Duration
	IdleTimeout  time.Duration
	MaxEvents    int
	MaxBytes     int64
}

type WebSocketOptions struct {
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	MaxMessageBytes  int64
	MaxMessages      int
	Subprotocols     []string
}

type Request struct {
	ID           string
	Name         string
	Method       string
	Protocol     Protocol
	URL          string
	Headers      []KV
	Params       []Param
	Body         Body
	Auth         Auth
	Assertions   []Assertion
	Captures     []Capture
	SSE          SSEOptions
	WebSocket    WebSocketOptions
	LastResponse Result
	History      []HistoryEntry
}

func (r *Request) EffectiveProtocol() Protocol {
	if r == nil || r.Protocol == "" {
		return ProtocolREST
	}
	return r.Protocol
}

func (r *Request) Saved() bool {
	return r != nil && r.ID != ""
}
