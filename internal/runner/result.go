package runner

import (
	"strings"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/assert"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

// RunResult records one executed step. Status is nil when no response was
// received; Error then carries the failure message.
type RunResult struct {
	EndpointID   string                `json:"endpointId"`
	Name         string                `json:"name"`
	Method       string                `json:"method"`
	URL          string                `json:"url"`
	Status       *int                  `json:"status"`
	StatusText   string                `json:"statusText,omitempty"`
	Time         int64                 `json:"time"`
	Passed       bool                  `json:"passed"`
	Error        string                `json:"error,omitempty"`
	ResponseData *jsonval.Value        `json:"responseData,omitempty"`
	TestResults  []restfile.TestResult `json:"testResults,omitempty"`
}

// TestsPassed reports whether every attached assertion passed.
func (r RunResult) TestsPassed() bool {
	_, failed := assert.Summary(r.TestResults)
	return failed == 0
}

func newRunResult(req *restfile.Request, ex httpclient.Exchange, scope vars.Set) RunResult {
	out := RunResult{}
	if req != nil {
		out.EndpointID = req.ID
		out.Name = req.Name
		out.Method = strings.ToUpper(strings.TrimSpace(req.Method))
		out.URL = vars.Resolve(req.URL, scope, req)
	}
	if ex.Prepared != nil {
		out.Method = ex.Prepared.Method
		out.URL = ex.Prepared.URL
	}

	switch res := ex.Result.(type) {
	case *restfile.Success:
		status := res.Status
		data := res.Data
		out.Status = &status
		out.StatusText = res.StatusText
		out.Time = res.Time
		out.Passed = status >= 200 && status < 400
		out.ResponseData = &data
		out.TestResults = append([]restfile.TestResult(nil), res.TestResults...)
	case *restfile.Failure:
		out.Error = res.Message
	default:
		out.Error = "no response"
	}
	return out
}

// Summary aggregates a run.
type Summary struct {
	Total            int           `json:"total"`
	Passed           int           `json:"passed"`
	Failed           int           `json:"failed"`
	Errors           int           `json:"errors"`
	AssertionsPassed int           `json:"assertionsPassed"`
	AssertionsFailed int           `json:"assertionsFailed"`
	Time             time.Duration `json:"-"`
	TimeMillis       int64         `json:"timeMs"`
}

func Summarize(results []RunResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		if r.Status == nil {
			s.Errors++
		}
		p, f := assert.Summary(r.TestResults)
		s.AssertionsPassed += p
		s.AssertionsFailed += f
		s.TimeMillis += r.Time
	}
	s.Time = time.Duration(s.TimeMillis) * time.Millisecond
	return s
}
