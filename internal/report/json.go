package report

import (
	"io"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/runner"
)

type document struct {
	Results []runner.RunResult `json:"results"`
	Summary runner.Summary     `json:"summary"`
	Stopped bool               `json:"stopped,omitempty"`
}

// JSON writes the results and their summary as one indented document.
func JSON(w io.Writer, results []runner.RunResult, stopped bool) error {
	if results == nil {
		results = []runner.RunResult{}
	}
	doc := document{Results: results, Summary: runner.Summarize(results), Stopped: stopped}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return errdef.Wrap(errdef.CodeUnknown, err, "encode report")
	}
	return nil
}
