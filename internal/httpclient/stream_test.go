package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

func sseHandler(events []string, hold bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			http.Error(w, "missing accept", http.StatusNotAcceptable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, evt := range events {
			_, _ = io.WriteString(w, evt)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if hold {
			<-r.Context().Done()
		}
	}
}

func TestExecuteSSECollectsEvents(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(sseHandler([]string{
		": comment\n",
		"id: 1\nevent: greet\ndata: {\"msg\":\"hi\"}\n\n",
		"data: line one\ndata: line two\n\n",
	}, false))
	defer srv.Close()

	req := &restfile.Request{Protocol: restfile.ProtocolSSE, Method: "POST", URL: srv.URL}
	ex := newTestClient().Execute(context.Background(), req, nil)
	success, ok := ex.Result.(*restfile.Success)
	if !ok {
		t.Fatalf("expected success, got %#v", ex.Result)
	}
	want := `[{"id":"1","event":"greet","data":{"msg":"hi"}},{"id":"","event":"","data":"line one\nline two"}]`
	if got := success.Data.JSON(); got != want {
		t.Fatalf("unexpected events\n got: %s\nwant: %s", got, want)
	}
	if success.Size == 0 {
		t.Fatalf("expected streamed byte count")
	}
}

func TestExecuteSSEMaxEvents(t *testing.T) {
	t.Parallel()
	var events []string
	for i := 0; i < 5; i++ {
		events = append(events, fmt.Sprintf("data: %d\n\n", i))
	}
	srv := httptest.NewServer(sseHandler(events, true))
	defer srv.Close()

	req := &restfile.Request{
		Protocol: restfile.ProtocolSSE,
		URL:      srv.URL,
		SSE:      restfile.SSEOptions{MaxEvents: 2},
	}
	ex := newTestClient().Execute(context.Background(), req, nil)
	success := ex.Result.(*restfile.Success)
	if success.Data.Len() != 2 {
		t.Fatalf("expected 2 events, got %s", success.Data.JSON())
	}
}

func TestExecuteSSEIdleTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(sseHandler([]string{"data: only\n\n"}, true))
	defer srv.Close()

	req := &restfile.Request{
		Protocol: restfile.ProtocolSSE,
		URL:      srv.URL,
		SSE:      restfile.SSEOptions{IdleTimeout: 100 * time.Millisecond},
	}
	start := time.Now()
	ex := newTestClient().Execute(context.Background(), req, nil)
	if time.Since(start) > 5*time.Second {
		t.Fatalf("idle timeout not honoured")
	}
	success, ok := ex.Result.(*restfile.Success)
	if !ok {
		t.Fatalf("expected success, got %#v", ex.Result)
	}
	if got := success.Data.JSON(); got != `[{"id":"","event":"","data":"only"}]` {
		t.Fatalf("unexpected events %s", got)
	}
}

func TestExecuteSSEPlainResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"denied"}`)
	}))
	defer srv.Close()

	ex := newTestClient().Execute(context.Background(), &restfile.Request{Protocol: restfile.ProtocolSSE, URL: srv.URL}, nil)
	success := ex.Result.(*restfile.Success)
	if success.Status != http.StatusUnauthorized || success.Data.JSON() != `{"error":"denied"}` {
		t.Fatalf("unexpected result %d %s", success.Status, success.Data.JSON())
	}
}

func TestSSEEventBuilderRetry(t *testing.T) {
	t.Parallel()
	var b sseEventBuilder
	if err := b.consume("retry: 1500"); err != nil {
		t.Fatalf("consume retry: %v", err)
	}
	evt, ok := b.finalize()
	if !ok || evt.Retry != 1500 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if err := b.consume("retry: soon"); err == nil {
		t.Fatalf("expected error for invalid retry")
	}
	if _, ok := b.finalize(); ok {
		t.Fatalf("failed retry must leave the builder empty")
	}
}

func startWebSocketServer(t *testing.T, handle func(context.Context, *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("websocket accept failed: %v", err)
			return
		}
		handle(r.Context(), conn)
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestExecuteWebSocketEchoThenClose(t *testing.T) {
	t.Parallel()
	srv := startWebSocketServer(t, func(ctx context.Context, conn *websocket.Conn) {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		_ = conn.Write(ctx, typ, data)
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02})
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})
	defer srv.Close()

	req := &restfile.Request{
		Protocol: restfile.ProtocolWS,
		URL:      wsURL(srv.URL),
		Body:     restfile.RawBody{Raw: `{"op":"ping"}`},
	}
	ex := newTestClient().Execute(context.Background(), req, nil)
	success, ok := ex.Result.(*restfile.Success)
	if !ok {
		t.Fatalf("expected success, got %#v", ex.Result)
	}
	if success.Status != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected status %d", success.Status)
	}
	want := `[{"type":"text","data":{"op":"ping"}},{"type":"binary","data":"AQI="}]`
	if got := success.Data.JSON(); got != want {
		t.Fatalf("unexpected messages\n got: %s\nwant: %s", got, want)
	}
}

func TestExecuteWebSocketMaxMessages(t *testing.T) {
	t.Parallel()
	srv := startWebSocketServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			if err := conn.Write(ctx, websocket.MessageText, []byte(fmt.Sprint(i))); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	})
	defer srv.Close()

	req := &restfile.Request{
		Protocol:  restfile.ProtocolWS,
		URL:       wsURL(srv.URL),
		WebSocket: restfile.WebSocketOptions{MaxMessages: 2},
	}
	ex := newTestClient().Execute(context.Background(), req, nil)
	success := ex.Result.(*restfile.Success)
	if got := success.Data.JSON(); got != `[{"type":"text","data":0},{"type":"text","data":1}]` {
		t.Fatalf("unexpected messages %s", got)
	}
}

func TestExecuteWebSocketIdleTimeout(t *testing.T) {
	t.Parallel()
	srv := startWebSocketServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte("hello"))
		_, _, _ = conn.Read(ctx)
	})
	defer srv.Close()

	req := &restfile.Request{
		Protocol:  restfile.ProtocolWS,
		URL:       wsURL(srv.URL),
		WebSocket: restfile.WebSocketOptions{IdleTimeout: 100 * time.Millisecond},
	}
	ex := newTestClient().Execute(context.Background(), req, nil)
	success, ok := ex.Result.(*restfile.Success)
	if !ok {
		t.Fatalf("expected success, got %#v", ex.Result)
	}
	if got := success.Data.JSON(); got != `[{"type":"text","data":"hello"}]` {
		t.Fatalf("unexpected messages %s", got)
	}
}

func TestExecuteWebSocketRejectedHandshake(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"forbidden"}`)
	}))
	defer srv.Close()

	ex := newTestClient().Execute(context.Background(), &restfile.Request{Protocol: restfile.ProtocolWS, URL: wsURL(srv.URL)}, nil)
	success, ok := ex.Result.(*restfile.Success)
	if !ok {
		t.Fatalf("expected handshake response, got %#v", ex.Result)
	}
	if success.Status != http.StatusForbidden {
		t.Fatalf("unexpected status %d", success.Status)
	}
	if got := success.Data.JSON(); got != `{"error":"forbidden"}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestExecuteWebSocketDialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv.URL)
	srv.Close()

	ex := newTestClient().Execute(context.Background(), &restfile.Request{Protocol: restfile.ProtocolWS, URL: url}, nil)
	if _, ok := ex.Result.(*restfile.Failure); !ok {
		t.Fatalf("expected failure, got %#v", ex.Result)
	}
}
