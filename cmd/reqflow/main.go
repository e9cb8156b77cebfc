package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/reqflow/internal/config"
	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errChecksFailed makes the process exit non-zero without printing twice.
var errChecksFailed = errors.New("one or more requests failed")

type globalFlags struct {
	logLevel  string
	logFormat string
	noColor   bool

	settings config.Settings
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "reqflow: %s\n", errdef.Message(err))
		}
		os.Exit(exitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "reqflow",
		Short: "Run API request collections from the terminal",
		Long: heredoc.Doc(`
			reqflow executes saved HTTP, GraphQL, WebSocket and SSE requests.

			Collections are JSON or YAML files. Variables use {{name}} templates,
			dynamic tokens like {{$randomUUID}} and {{$timestamp}}, and :param path
			segments. A collection run chains values from each response into
			the requests that follow it.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, settingsErr := config.LoadSettings()
			g.settings = settings
			logger, err := newLogger(stderr, firstNonEmpty(g.logFormat, settings.LogFormat), firstNonEmpty(g.logLevel, settings.LogLevel))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if settingsErr != nil {
				logger.Warn("settings ignored", "error", errdef.Message(settingsErr))
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errdef.Wrap(errdef.CodeConfig, err, "invalid flags")
	})
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from settings, else warn)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text or json (default from settings, else text)")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newRunCmd(g),
		newSendCmd(g),
		newListCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reqflow %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			if sum, err := executableChecksum(); err == nil {
				fmt.Fprintf(out, "  sha256: %s\n", sum)
			} else {
				fmt.Fprintf(out, "  sha256: unavailable (%v)\n", err)
			}
		},
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errChecksFailed):
		return 1
	case errdef.CodeOf(err) == errdef.CodeConfig, errdef.CodeOf(err) == errdef.CodeParse:
		return 2
	default:
		return 3
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func executableChecksum() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	f, err := os.Open(exe)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
