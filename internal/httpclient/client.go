package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/telemetry"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
	UserAgent          string
	SSE                restfile.SSEOptions
	WebSocket          restfile.WebSocketOptions

	http1Only bool
}

// DefaultOptions leaves per-request timeouts to the transport and bounds
// streams so a silent server cannot hang a run.
func DefaultOptions() Options {
	return Options{
		FollowRedirects: true,
		UserAgent:       "reqflow",
		SSE: restfile.SSEOptions{
			IdleTimeout: 30 * time.Second,
		},
		WebSocket: restfile.WebSocketOptions{
			HandshakeTimeout: 10 * time.Second,
			IdleTimeout:      5 * time.Second,
		},
	}
}

type wsDialFunc func(context.Context, string, *websocket.DialOptions) (*websocket.Conn, *http.Response, error)

type Client struct {
	fs          FileSystem
	jar         http.CookieJar
	opts        Options
	httpFactory func(Options) (*http.Client, error)
	wsDial      wsDialFunc
	telemetry   telemetry.Instrumenter
	resolver    *vars.Resolver
	logger      *slog.Logger
	now         func() time.Time
}

func (c *Client) resolveHTTPFactory() func(Options) (*http.Client, error) {
	if c == nil {
		return nil
	}
	if c.httpFactory != nil {
		return c.httpFactory
	}
	return c.buildHTTPClient
}

func NewClient(fs FileSystem, opts Options) *Client {
	if fs == nil {
		fs = OSFileSystem{}
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{
		fs:        fs,
		jar:       jar,
		opts:      opts,
		telemetry: telemetry.Noop(),
		resolver:  vars.NewResolver(),
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	c.httpFactory = c.buildHTTPClient
	c.wsDial = websocket.Dial
	return c
}

func (c *Client) Options() Options {
	return c.opts
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	c.httpFactory = factory
}

// SetTelemetry configures the instrumenter used to emit OpenTelemetry spans. Passing nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

func (c *Client) SetResolver(r *vars.Resolver) {
	if r == nil {
		r = vars.NewResolver()
	}
	c.resolver = r
}

func (c *Client) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	c.logger = l
}

func (c *Client) builder() Builder {
	return Builder{Resolver: c.resolver, FS: c.fs}
}
