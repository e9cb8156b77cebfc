package httpclient

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry int
}

func (e SSEEvent) value() jsonval.Value {
	return jsonval.ObjectOf(
		jsonval.Member{Key: "id", Value: jsonval.StringValue(e.ID)},
		jsonval.Member{Key: "event", Value: jsonval.StringValue(e.Event)},
		jsonval.Member{Key: "data", Value: jsonval.DeepParse(e.Data)},
	)
}

func mergeSSEOptions(base, override restfile.SSEOptions) restfile.SSEOptions {
	out := base
	if override.TotalTimeout > 0 {
		out.TotalTimeout = override.TotalTimeout
	}
	if override.IdleTimeout > 0 {
		out.IdleTimeout = override.IdleTimeout
	}
	if override.MaxEvents > 0 {
		out.MaxEvents = override.MaxEvents
	}
	if override.MaxBytes > 0 {
		out.MaxBytes = override.MaxBytes
	}
	return out
}

// doSSE reads the event stream until EOF, a limit, the idle timeout or ctx
// ends, and returns the events as one response whose data is
// [{id, event, data}, ...]. Non-stream responses are returned as plain HTTP.
func (c *Client) doSSE(ctx context.Context, p *Prepared) restfile.Result {
	opts := mergeSSEOptions(c.opts.SSE, p.SSE)
	streamCtx, cancel := ctxWithTimeout(ctx, opts.TotalTimeout)
	defer cancel()

	headers := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		headers[k] = v
	}
	if _, ok := headerValue(headers, "Accept"); !ok {
		headers["Accept"] = "text/event-stream"
	}
	sp := *p
	sp.Headers = headers
	sp.Body = nil

	httpReq, err := c.newHTTPRequest(streamCtx, &sp)
	if err != nil {
		return failure(err)
	}
	streamOpts := c.opts
	streamOpts.Timeout = 0
	client, err := c.httpClient(streamOpts)
	if err != nil {
		return failure(err)
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return failure(errdef.Wrap(errdef.CodeHTTP, err, "perform sse request"))
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	contentType := strings.ToLower(httpResp.Header.Get(contentTypeHeader))
	if httpResp.StatusCode >= 400 || !strings.Contains(contentType, "text/event-stream") {
		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return failure(errdef.Wrap(errdef.CodeHTTP, err, "read response body"))
		}
		return c.success(httpResp, body, time.Since(start), jsonval.DeepParse(string(c.decoded(httpResp, body))))
	}

	events, byteCount, err := readSSE(streamCtx, cancel, httpResp.Body, opts)
	if err != nil {
		return failure(err)
	}
	elapsed := time.Since(start)

	items := make([]jsonval.Value, len(events))
	for i, evt := range events {
		items[i] = evt.value()
	}
	result := c.success(httpResp, nil, elapsed, jsonval.ArrayValue(items...))
	result.Size = byteCount
	return result
}

// readSSE parses events from body. Hitting a limit, the idle timeout or the
// end of ctx is a normal stop; only read and syntax errors are returned.
func readSSE(
	ctx context.Context,
	cancel context.CancelFunc,
	body io.Reader,
	opts restfile.SSEOptions,
) ([]SSEEvent, int64, error) {
	reader := bufio.NewReader(body)

	var idle *time.Timer
	if opts.IdleTimeout > 0 {
		idle = time.AfterFunc(opts.IdleTimeout, cancel)
		defer idle.Stop()
	}

	var (
		builder   sseEventBuilder
		events    []SSEEvent
		byteCount int64
	)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			byteCount += int64(len(line))
			if idle != nil {
				idle.Reset(opts.IdleTimeout)
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				if evt, ok := builder.finalize(); ok {
					events = append(events, evt)
				}
				return events, byteCount, nil
			}
			return events, byteCount, errdef.Wrap(errdef.CodeHTTP, err, "read sse stream")
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if evt, ok := builder.finalize(); ok {
				events = append(events, evt)
				if opts.MaxEvents > 0 && len(events) >= opts.MaxEvents {
					return events, byteCount, nil
				}
			}
		} else if perr := builder.consume(trimmed); perr != nil {
			return events, byteCount, perr
		}

		if opts.MaxBytes > 0 && byteCount >= opts.MaxBytes {
			return events, byteCount, nil
		}
		if errors.Is(err, io.EOF) {
			if evt, ok := builder.finalize(); ok {
				events = append(events, evt)
			}
			return events, byteCount, nil
		}
	}
}

func ctxWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

type sseEventBuilder struct {
	id       string
	event    string
	data     []string
	hasData  bool
	retry    int
	hasRetry bool
}

func (b *sseEventBuilder) consume(line string) error {
	switch {
	case strings.HasPrefix(line, ":"):
		// comment
	case strings.HasPrefix(line, "data:"):
		b.data = append(b.data, strings.TrimPrefix(line[5:], " "))
		b.hasData = true
	case line == "data":
		b.data = append(b.data, "")
		b.hasData = true
	case strings.HasPrefix(line, "event:"):
		b.event = strings.TrimPrefix(line[6:], " ")
	case strings.HasPrefix(line, "id:"):
		b.id = strings.TrimPrefix(line[3:], " ")
	case strings.HasPrefix(line, "retry:"):
		value := strings.TrimSpace(line[6:])
		if value == "" {
			b.retry, b.hasRetry = 0, false
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return errdef.Wrap(errdef.CodeHTTP, err, "parse retry directive")
		}
		if n < 0 {
			return errdef.New(errdef.CodeHTTP, "retry directive must be non-negative")
		}
		b.retry, b.hasRetry = n, true
	}
	return nil
}

func (b *sseEventBuilder) finalize() (SSEEvent, bool) {
	if !b.hasData && b.event == "" && b.id == "" && !b.hasRetry {
		return SSEEvent{}, false
	}
	evt := SSEEvent{
		ID:    b.id,
		Event: b.event,
		Data:  strings.Join(b.data, "\n"),
	}
	if b.hasRetry {
		evt.Retry = b.retry
	}
	*b = sseEventBuilder{}
	return evt, true
}
