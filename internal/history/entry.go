package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unkn0wn-root/reqflow/internal/assert"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

const snippetLimit = 2000

// NewEntry records one exchange. The id is a ULID stamped with at, so ids
// of entries from one process also sort by execution time.
func NewEntry(req *restfile.Request, ex httpclient.Exchange, environment string, at time.Time) Entry {
	if at.IsZero() {
		at = time.Now()
	}
	entry := Entry{
		ID:          ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		ExecutedAt:  at,
		Environment: environment,
	}
	if req != nil {
		entry.RequestID = req.ID
		entry.RequestName = requestIdentifier(req)
		entry.Method = req.Method
		entry.URL = req.URL
	}
	if ex.Prepared != nil {
		entry.Method = ex.Prepared.Method
		entry.URL = ex.Prepared.URL
	}

	switch res := ex.Result.(type) {
	case *restfile.Success:
		entry.StatusCode = res.Status
		entry.Status = strings.TrimSpace(fmt.Sprintf("%d %s", res.Status, res.StatusText))
		entry.Duration = time.Duration(res.Time) * time.Millisecond
		entry.Size = res.Size
		entry.BodySnippet = res.Data.Indent()
		entry.TestsPassed, entry.TestsFailed = assert.Summary(res.TestResults)
	case *restfile.Failure:
		entry.Error = res.Message
		entry.BodySnippet = res.Message
	default:
		entry.BodySnippet = "No response captured"
	}

	if len(entry.BodySnippet) > snippetLimit {
		entry.BodySnippet = strings.ToValidUTF8(entry.BodySnippet[:snippetLimit], "")
	}
	return entry
}

func requestIdentifier(req *restfile.Request) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	if req.ID != "" {
		return req.ID
	}
	return req.URL
}
