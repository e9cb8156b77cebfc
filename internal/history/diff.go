package history

import (
	"fmt"
	"strings"

	udiff "github.com/aymanbagabas/go-udiff"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

// Diff renders a unified diff between two normalized responses. It returns
// "" when they render identically.
func Diff(prev, next restfile.Result) string {
	return DiffText("previous", "latest", Render(prev), Render(next))
}

// DiffText diffs two rendered bodies, e.g. stored snippets.
func DiffText(prevLabel, nextLabel, prev, next string) string {
	prev = ensureTrailingNewline(prev)
	next = ensureTrailingNewline(next)
	if prev == next {
		return ""
	}
	return udiff.Unified(prevLabel, nextLabel, prev, next)
}

// Render is the text form diffs compare: a status line, then the pretty
// payload.
func Render(result restfile.Result) string {
	switch res := result.(type) {
	case *restfile.Success:
		status := strings.TrimSpace(fmt.Sprintf("%d %s", res.Status, res.StatusText))
		return status + "\n" + res.Data.Indent()
	case *restfile.Failure:
		return "error: " + res.Message
	default:
		return ""
	}
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
