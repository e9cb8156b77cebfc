package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/config"
	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/history"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/telemetry"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

// sessionFlags are shared by run and send.
type sessionFlags struct {
	envFiles       []string
	assignments    []string
	timeout        time.Duration
	insecure       bool
	proxy          string
	history        bool
	historyBackend string
	historyPath    string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringArrayVarP(&f.envFiles, "env", "e", nil, "Environment file (.env, .json, .yaml); repeatable, later files win")
	fl.StringArrayVar(&f.assignments, "var", nil, "Variable override as name=value; repeatable")
	fl.DurationVar(&f.timeout, "timeout", 0, "Request timeout (default from settings, else none)")
	fl.BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification")
	fl.StringVar(&f.proxy, "proxy", "", "HTTP proxy URL")
	fl.BoolVar(&f.history, "history", false, "Record responses in the history store")
	fl.StringVar(&f.historyBackend, "history-backend", "", "History backend: json or sqlite (default from settings, else json)")
	fl.StringVar(&f.historyPath, "history-path", "", "History file or database path")
}

// session is everything one command invocation needs to execute requests.
type session struct {
	collection *restfile.Collection
	env        vars.Set
	envName    string
	client     *httpclient.Client
	store      history.Store
	logger     *slog.Logger
	closers    []func()
}

func openSession(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *sessionFlags, collectionPath string) (*session, error) {
	logger := slog.Default()
	coll, err := restfile.LoadCollection(collectionPath)
	if err != nil {
		return nil, err
	}

	env, err := buildEnvironment(coll, f.envFiles, f.assignments)
	if err != nil {
		return nil, err
	}

	opts := httpclient.DefaultOptions()
	g.settings.ApplyHTTP(&opts)
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if flags.Changed("insecure") {
		opts.InsecureSkipVerify = f.insecure
	}
	if flags.Changed("proxy") {
		opts.ProxyURL = strings.TrimSpace(f.proxy)
	}
	opts.UserAgent = firstNonEmpty(g.settings.UserAgent, "reqflow/"+version)

	client := httpclient.NewClient(nil, opts)
	client.SetLogger(logger)

	s := &session{
		collection: coll,
		env:        env,
		envName:    environmentName(f.envFiles),
		client:     client,
		logger:     logger,
	}

	telemetryCfg := g.settings.ApplyTelemetry(telemetry.ConfigFromEnv(os.Getenv))
	telemetryCfg.Version = version
	provider, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			logger.Warn("telemetry init failed", "error", errdef.Message(err))
		}
	} else {
		client.SetTelemetry(provider)
		s.closers = append(s.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown", "error", errdef.Message(err))
			}
		})
	}

	if f.history {
		backend := firstNonEmpty(f.historyBackend, g.settings.HistoryBackend, history.BackendJSON)
		path := firstNonEmpty(f.historyPath, g.settings.HistoryPath, config.HistoryPath(backend))
		store, err := history.Open(ctx, backend, path, g.settings.HistoryMax)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store = store
		s.closers = append(s.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("history close", "error", errdef.Message(err))
			}
		})
		logger.Debug("history enabled", "backend", backend, "path", path)
	}
	return s, nil
}

// record appends one exchange to the request's in-memory history and, when
// enabled, to the history store.
func (s *session) record(req *restfile.Request, ex httpclient.Exchange) history.Entry {
	now := time.Now()
	if req != nil && ex.Result != nil {
		req.PushHistory(ex.Result, now)
	}
	entry := history.NewEntry(req, ex, s.envName, now)
	entry.Collection = s.collection.Name
	if s.store != nil {
		if err := s.store.Append(entry); err != nil {
			s.logger.Warn("history append failed", "error", errdef.Message(err))
		}
	}
	return entry
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// buildEnvironment layers collection variables, env files in order, then
// --var assignments.
func buildEnvironment(coll *restfile.Collection, files, assignments []string) (vars.Set, error) {
	layers := []vars.Set{}
	if coll != nil && len(coll.Variables) > 0 {
		layers = append(layers, vars.Set(coll.Variables))
	}
	for _, path := range files {
		set, err := vars.LoadEnvFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, set)
	}
	overrides, err := vars.ParseAssignments(assignments)
	if err != nil {
		return nil, err
	}
	layers = append(layers, overrides)
	return vars.Merge(layers...), nil
}

func environmentName(files []string) string {
	if len(files) == 0 {
		return ""
	}
	base := filepath.Base(files[len(files)-1])
	return strings.TrimSuffix(base, filepath.Ext(base))
}
