package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/history"
	"github.com/unkn0wn-root/reqflow/internal/report"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

type sendFlags struct {
	sessionFlags
	diff bool
}

func newSendCmd(g *globalFlags) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send <collection> <request>",
		Short: "Send one request and print the normalized response",
		Long: heredoc.Doc(`
			Send executes a single request, looked up by id and then by name.

			With --diff the response is compared against the most recent
			history entry for the same request; --diff implies --history.
		`),
		Example: heredoc.Doc(`
			reqflow send api.yaml login --env dev.env
			reqflow send api.yaml "List users" --diff
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendRequest(cmd, g, f, args[0], args[1])
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.diff, "diff", false, "Diff against the previous response from history")
	return cmd
}

func sendRequest(cmd *cobra.Command, g *globalFlags, f *sendFlags, path, ref string) error {
	if f.diff {
		f.history = true
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cmd, g, &f.sessionFlags, path)
	if err != nil {
		return err
	}
	defer s.Close()

	req, ok := s.collection.Find(ref)
	if !ok {
		return errdef.New(errdef.CodeConfig, "request %q not found in %s", ref, path)
	}

	var previous []history.Entry
	if f.diff && s.store != nil {
		previous, err = s.store.ByRequest(historyKey(req))
		if err != nil {
			s.logger.Warn("history lookup failed", "error", errdef.Message(err))
		}
	}

	ex := s.client.Execute(ctx, req, s.env)
	entry := s.record(req, ex)

	method, url := entry.Method, entry.URL
	out := cmd.OutOrStdout()
	opts := report.Options{NoColor: g.noColor}
	if err := report.Response(out, method, url, ex.Result, opts); err != nil {
		return err
	}

	if f.diff {
		if len(previous) == 0 {
			fmt.Fprintln(out, "\nno previous response to compare")
		} else {
			prev := previous[0]
			label := fmt.Sprintf("previous (%s)", prev.ExecutedAt.Local().Format("2006-01-02 15:04:05"))
			diff := history.DiffText(label, "latest", prev.BodySnippet, entry.BodySnippet)
			if diff == "" {
				fmt.Fprintln(out, "\nresponse unchanged since last run")
			} else {
				fmt.Fprintln(out)
				if err := report.Diff(out, diff, opts); err != nil {
					return err
				}
			}
		}
	}

	if failed(ex.Result) {
		return errChecksFailed
	}
	return nil
}

// historyKey is the identifier stored entries are looked up by.
func historyKey(req *restfile.Request) string {
	if req.ID != "" {
		return req.ID
	}
	return req.Name
}

func failed(result restfile.Result) bool {
	res, ok := result.(*restfile.Success)
	if !ok {
		return true
	}
	if res.Status >= 400 {
		return true
	}
	for _, t := range res.TestResults {
		if !t.Passed {
			return true
		}
	}
	return false
}
