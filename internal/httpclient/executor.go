package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/assert"
	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/telemetry"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

// Exchange pairs the resolved request with what came back.
type Exchange struct {
	Prepared *Prepared
	Result   restfile.Result
}

// Execute builds req against set, injects auth, performs the call and
// attaches assertion results. Every failure ends up as *restfile.Failure.
func (c *Client) Execute(ctx context.Context, req *restfile.Request, set vars.Set) Exchange {
	prepared, err := c.builder().Build(req, set)
	if err != nil {
		c.logger.Warn("build request failed", "request", requestLabel(req), "error", err)
		return Exchange{Result: failure(err)}
	}
	prepared.URL = injectAuth(c.resolver, prepared.Headers, req.Auth, set, req, prepared.URL)

	result := c.Do(ctx, prepared)
	if success, ok := result.(*restfile.Success); ok {
		success.TestResults = assert.Evaluate(success, req.Assertions)
	}
	return Exchange{Prepared: prepared, Result: result}
}

// Do performs one prepared call. Non-2xx statuses are successes; only
// transport and read errors produce a Failure.
func (c *Client) Do(ctx context.Context, p *Prepared) (result restfile.Result) {
	if p == nil {
		return failure(errdef.New(errdef.CodeHTTP, "request is nil"))
	}

	spanCtx, span := c.telemetry.Start(ctx, telemetry.RequestStart{
		RequestID: p.RequestID,
		Name:      p.Name,
		Method:    p.Method,
		URL:       p.URL,
		Protocol:  string(p.Protocol),
	})
	defer func() {
		end := telemetry.RequestResult{}
		switch r := result.(type) {
		case *restfile.Success:
			end.StatusCode = r.Status
			end.Duration = time.Duration(r.Time) * time.Millisecond
			end.Size = r.Size
			if r.Data.IsArray() && p.Protocol != restfile.ProtocolREST && p.Protocol != restfile.ProtocolGraphQL {
				end.Messages = r.Data.Len()
			}
		case *restfile.Failure:
			end.Err = errdef.New(errdef.CodeHTTP, "%s", r.Message)
		}
		span.End(end)
	}()

	c.logger.Debug("sending request", "method", p.Method, "url", p.URL, "protocol", p.Protocol)
	switch p.Protocol {
	case restfile.ProtocolSSE:
		return c.doSSE(spanCtx, p)
	case restfile.ProtocolWS:
		return c.doWebSocket(spanCtx, p)
	default:
		return c.doHTTP(spanCtx, p)
	}
}

func (c *Client) doHTTP(ctx context.Context, p *Prepared) restfile.Result {
	httpReq, err := c.newHTTPRequest(ctx, p)
	if err != nil {
		return failure(err)
	}
	client, err := c.httpClient(c.opts)
	if err != nil {
		return failure(err)
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return failure(errdef.Wrap(errdef.CodeHTTP, err, "perform request"))
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return failure(errdef.Wrap(errdef.CodeHTTP, err, "read response body"))
	}
	elapsed := time.Since(start)

	return c.success(httpResp, body, elapsed, jsonval.DeepParse(string(c.decoded(httpResp, body))))
}

// decoded returns the readable form of body, or body itself when its
// encoding cannot be undone.
func (c *Client) decoded(resp *http.Response, body []byte) []byte {
	out, err := decodeBody(resp.Header, body)
	if err != nil {
		c.logger.Debug("keeping encoded body", "error", errdef.Message(err))
		return body
	}
	return out
}

func (c *Client) httpClient(opts Options) (*http.Client, error) {
	factory := c.resolveHTTPFactory()
	if factory == nil {
		return nil, errdef.New(errdef.CodeHTTP, "http client factory unavailable")
	}
	return factory(opts)
}

func (c *Client) newHTTPRequest(ctx context.Context, p *Prepared) (*http.Request, error) {
	body, contentType, err := encodePayload(p.Body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}
	for _, name := range p.HeaderNames() {
		httpReq.Header.Set(name, p.Headers[name])
	}
	if contentType != "" {
		httpReq.Header.Set(contentTypeHeader, contentType)
	}
	if c.opts.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return httpReq, nil
}

func (c *Client) success(resp *http.Response, body []byte, elapsed time.Duration, data jsonval.Value) *restfile.Success {
	return &restfile.Success{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Time:       elapsed.Milliseconds(),
		Size:       responseSize(resp.Header, len(body)),
		Data:       data,
		Headers:    flattenHeaders(resp.Header),
		Timestamp:  c.now(),
	}
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// responseSize prefers a valid Content-Length header over the byte count.
func responseSize(h http.Header, n int) int64 {
	if raw := strings.TrimSpace(h.Get("Content-Length")); raw != "" {
		if size, err := strconv.ParseInt(raw, 10, 64); err == nil && size >= 0 {
			return size
		}
	}
	return int64(n)
}

// flattenHeaders lowercases names and joins repeated values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

func failure(err error) *restfile.Failure {
	msg := errdef.Message(err)
	if msg == "" {
		msg = "request failed"
	}
	return &restfile.Failure{Message: msg}
}

func requestLabel(req *restfile.Request) string {
	if req == nil {
		return ""
	}
	if req.Name != "" {
		return req.Name
	}
	return req.ID
}
