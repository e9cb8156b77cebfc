package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/report"
	"github.com/unkn0wn-root/reqflow/internal/runner"
	"github.com/unkn0wn-root/reqflow/internal/watcher"
)

type runFlags struct {
	sessionFlags
	delay    time.Duration
	only     []string
	format   string
	bodies   bool
	watch    bool
	interval time.Duration
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <collection>",
		Short: "Run every saved request in a collection, in order",
		Long: heredoc.Doc(`
			Run executes the collection's saved requests one after another.

			Each response that is a JSON object updates variables already in
			scope: a key matching a variable name (at the top level or under
			"data") overwrites it for the remaining steps. Requests may also
			declare captures with gjson paths. The environment files themselves
			are never modified.

			Ctrl-C stops the run after the request in flight completes.

			With --watch the collection and environment files are polled and
			the run repeats whenever their content changes.
		`),
		Example: heredoc.Doc(`
			reqflow run api.yaml --env dev.env
			reqflow run api.yaml --only login --only me --format json
			reqflow run api.yaml --var base=http://localhost:8080 --delay 250ms
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollection(cmd, g, f, args[0])
		},
	}
	f.register(cmd)
	fl := cmd.Flags()
	fl.DurationVar(&f.delay, "delay", 0, "Pause between requests (default from settings)")
	fl.StringArrayVar(&f.only, "only", nil, "Run only the request with this id; repeatable")
	fl.StringVarP(&f.format, "format", "o", "text", "Output format: text or json")
	fl.BoolVar(&f.bodies, "bodies", false, "Print response bodies in text output")
	fl.BoolVarP(&f.watch, "watch", "w", false, "Rerun when the collection or environment files change")
	fl.DurationVar(&f.interval, "watch-interval", 500*time.Millisecond, "Polling interval for --watch")
	return cmd
}

func runCollection(cmd *cobra.Command, g *globalFlags, f *runFlags, path string) error {
	format := strings.ToLower(strings.TrimSpace(f.format))
	if format != "text" && format != "json" {
		return errdef.New(errdef.CodeConfig, "unknown output format %q", f.format)
	}
	f.format = format

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt)
	defer stopSignals()

	if !f.watch {
		return runOnce(ctx, sigCtx, cmd, g, f, path)
	}

	w := watcher.New(f.interval, append([]string{path}, f.envFiles...)...)
	logger := slog.Default()
	for {
		err := runOnce(ctx, sigCtx, cmd, g, f, path)
		if sigCtx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, errChecksFailed) {
			logger.Error("run failed", "error", errdef.Message(err))
		}
		logger.Info("watching for changes", "files", 1+len(f.envFiles))
		changes, err := w.Wait(sigCtx)
		if err != nil {
			return nil
		}
		for _, c := range changes {
			logger.Info("collection changed, rerunning", "path", c.Path, "missing", c.Missing)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
}

// runOnce loads the collection, runs the selection and prints the report.
// sigCtx ending stops the run after the request in flight.
func runOnce(ctx, sigCtx context.Context, cmd *cobra.Command, g *globalFlags, f *runFlags, path string) error {
	s, err := openSession(ctx, cmd, g, &f.sessionFlags, path)
	if err != nil {
		return err
	}
	defer s.Close()

	requests := s.collection.Selected(f.only)
	if len(requests) == 0 {
		return errdef.New(errdef.CodeConfig, "no saved requests to run in %s", path)
	}

	delay := g.settings.RunDelay()
	if cmd.Flags().Changed("delay") {
		delay = f.delay
	}

	observer := func(evt runner.Event) {
		if evt.Kind != runner.StepFinished {
			return
		}
		s.record(evt.Request, httpclient.Exchange{Prepared: evt.Prepared, Result: evt.Response})
	}
	r := runner.New(s.client, s.env, runner.WithObserver(observer), runner.WithLogger(s.logger))

	if err := r.Start(ctx, requests, delay); err != nil {
		return err
	}
	finished := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			if r.Running() {
				s.logger.Warn("interrupt received, stopping after the current request")
				r.Stop()
			}
		case <-finished:
		}
	}()
	r.Wait()
	close(finished)
	stopped := sigCtx.Err() != nil && ctx.Err() == nil

	results := r.Results()
	out := cmd.OutOrStdout()
	if f.format == "json" {
		err = report.JSON(out, results, stopped)
	} else {
		err = report.Text(out, results, report.Options{NoColor: g.noColor, Bodies: f.bodies})
	}
	if err != nil {
		return err
	}

	sum := runner.Summarize(results)
	if sum.Failed > 0 || sum.AssertionsFailed > 0 || stopped {
		return errChecksFailed
	}
	return nil
}
