package httpclient

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

type WebSocketMessage struct {
	Type string
	Data []byte
}

func (m WebSocketMessage) value() jsonval.Value {
	var data jsonval.Value
	if m.Type == "binary" {
		data = jsonval.StringValue(base64.StdEncoding.EncodeToString(m.Data))
	} else {
		data = jsonval.DeepParse(string(m.Data))
	}
	return jsonval.ObjectOf(
		jsonval.Member{Key: "type", Value: jsonval.StringValue(m.Type)},
		jsonval.Member{Key: "data", Value: data},
	)
}

func mergeWebSocketOptions(base, override restfile.WebSocketOptions) restfile.WebSocketOptions {
	out := base
	if override.HandshakeTimeout > 0 {
		out.HandshakeTimeout = override.HandshakeTimeout
	}
	if override.IdleTimeout > 0 {
		out.IdleTimeout = override.IdleTimeout
	}
	if override.MaxMessageBytes > 0 {
		out.MaxMessageBytes = override.MaxMessageBytes
	}
	if override.MaxMessages > 0 {
		out.MaxMessages = override.MaxMessages
	}
	if len(override.Subprotocols) > 0 {
		out.Subprotocols = append([]string(nil), override.Subprotocols...)
	}
	return out
}

// doWebSocket dials, sends the raw body as the first text frame and collects
// received messages until the server closes, a limit is hit or the
// connection goes idle. A rejected handshake is reported as the HTTP
// response the server sent.
func (c *Client) doWebSocket(ctx context.Context, p *Prepared) restfile.Result {
	opts := mergeWebSocketOptions(c.opts.WebSocket, p.WebSocket)

	streamOpts := c.opts
	streamOpts.Timeout = 0
	streamOpts.http1Only = true
	client, err := c.httpClient(streamOpts)
	if err != nil {
		return failure(err)
	}

	hdr := make(http.Header, len(p.Headers)+1)
	for _, name := range p.HeaderNames() {
		hdr.Set(name, p.Headers[name])
	}
	if c.opts.UserAgent != "" && hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", c.opts.UserAgent)
	}
	dialOpts := &websocket.DialOptions{
		HTTPHeader:   hdr,
		Subprotocols: append([]string(nil), opts.Subprotocols...),
		HTTPClient:   client,
	}

	dial := c.wsDial
	if dial == nil {
		dial = websocket.Dial
	}

	handshakeCtx, handshakeCancel := ctxWithTimeout(ctx, opts.HandshakeTimeout)
	start := time.Now()
	conn, resp, err := dial(handshakeCtx, p.URL, dialOpts)
	handshakeCancel()
	if err != nil {
		if resp != nil {
			return c.handshakeFallback(resp, start)
		}
		return failure(errdef.Wrap(errdef.CodeHTTP, err, "dial websocket"))
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}

	if raw, ok := p.Body.(*RawPayload); ok && raw.Text != "" {
		if err := conn.Write(ctx, websocket.MessageText, []byte(raw.Text)); err != nil {
			return failure(errdef.Wrap(errdef.CodeHTTP, err, "send websocket message"))
		}
	}

	messages, byteCount, err := readWebSocket(ctx, conn, opts)
	if err != nil {
		return failure(err)
	}
	elapsed := time.Since(start)

	items := make([]jsonval.Value, len(messages))
	for i, msg := range messages {
		items[i] = msg.value()
	}
	headers := map[string]string{}
	if resp != nil {
		headers = flattenHeaders(resp.Header)
	}
	return &restfile.Success{
		Status:     http.StatusSwitchingProtocols,
		StatusText: http.StatusText(http.StatusSwitchingProtocols),
		Time:       elapsed.Milliseconds(),
		Size:       byteCount,
		Data:       jsonval.ArrayValue(items...),
		Headers:    headers,
		Timestamp:  c.now(),
	}
}

// readWebSocket stops without error on a close frame, a limit, the idle
// timeout or the end of ctx.
func readWebSocket(
	ctx context.Context,
	conn *websocket.Conn,
	opts restfile.WebSocketOptions,
) (messages []WebSocketMessage, byteCount int64, err error) {
	for {
		if opts.MaxMessages > 0 && len(messages) >= opts.MaxMessages {
			return messages, byteCount, nil
		}
		readCtx, cancel := ctxWithTimeout(ctx, opts.IdleTimeout)
		msgType, data, rerr := conn.Read(readCtx)
		idle := readCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if rerr != nil {
			var ce websocket.CloseError
			switch {
			case errors.As(rerr, &ce):
				return messages, byteCount, nil
			case idle, ctx.Err() != nil:
				return messages, byteCount, nil
			default:
				return messages, byteCount, errdef.Wrap(errdef.CodeHTTP, rerr, "read websocket message")
			}
		}
		typ := "text"
		if msgType == websocket.MessageBinary {
			typ = "binary"
		}
		byteCount += int64(len(data))
		messages = append(messages, WebSocketMessage{Type: typ, Data: data})
	}
}

func (c *Client) handshakeFallback(resp *http.Response, start time.Time) restfile.Result {
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return failure(errdef.Wrap(errdef.CodeHTTP, err, "read websocket handshake body"))
		}
		body = data
	}
	return c.success(resp, body, time.Since(start), jsonval.DeepParse(string(body)))
}
