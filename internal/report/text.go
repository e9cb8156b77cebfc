package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/runner"
)

// Text writes one row per step, its assertion lines, then a summary.
func Text(w io.Writer, results []runner.RunResult, opts Options) error {
	opts = opts.withDefaults()
	p := newPalette(w, opts.NoColor)
	b := &strings.Builder{}

	header := fmt.Sprintf("%-3s  %-4s  %-6s  %7s  %-7s  %s  %s",
		"#", "", "STATUS", "TIME", "METHOD", fit("NAME", opts.NameWidth), "URL")
	b.WriteString(p.header.Render(strings.TrimRight(header, " ")))
	b.WriteByte('\n')

	for i, r := range results {
		verdict := p.pass.Render("PASS")
		if !r.Passed {
			verdict = p.fail.Render("FAIL")
		}
		status := "-"
		if r.Status != nil {
			status = strconv.Itoa(*r.Status)
		}
		row := fmt.Sprintf("%-3d  %s  %-6s  %7s  %-7s  %s  %s",
			i+1, verdict, status, formatMillis(r.Time), r.Method,
			fit(r.Name, opts.NameWidth), runewidth.Truncate(r.URL, opts.URLWidth, "…"))
		b.WriteString(strings.TrimRight(row, " "))
		b.WriteByte('\n')

		if r.Error != "" {
			b.WriteString("     ")
			b.WriteString(p.fail.Render("error: " + r.Error))
			b.WriteByte('\n')
		}
		writeTests(b, p, r.TestResults)
		if opts.Bodies && r.ResponseData != nil {
			writeIndented(b, r.ResponseData.Indent())
		}
	}

	sum := runner.Summarize(results)
	b.WriteByte('\n')
	b.WriteString(summaryLine(p, sum))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// Response prints a single normalized result: status line, headers sorted
// by name, pretty payload and assertion lines.
func Response(w io.Writer, method, url string, result restfile.Result, opts Options) error {
	opts = opts.withDefaults()
	p := newPalette(w, opts.NoColor)
	b := &strings.Builder{}

	b.WriteString(p.header.Render(strings.TrimSpace(method + " " + url)))
	b.WriteByte('\n')

	switch res := result.(type) {
	case *restfile.Success:
		line := strings.TrimSpace(fmt.Sprintf("%d %s", res.Status, res.StatusText))
		style := p.pass
		if res.Status >= 400 {
			style = p.fail
		}
		b.WriteString(style.Render(line))
		b.WriteString(p.muted.Render(fmt.Sprintf("  %s  %s", formatMillis(res.Time), formatSize(res.Size))))
		b.WriteByte('\n')

		names := make([]string, 0, len(res.Headers))
		for name := range res.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(p.muted.Render(name + ": "))
			b.WriteString(res.Headers[name])
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
		b.WriteString(res.Data.Indent())
		b.WriteByte('\n')
		if len(res.TestResults) > 0 {
			b.WriteByte('\n')
			writeTests(b, p, res.TestResults)
		}
	case *restfile.Failure:
		b.WriteString(p.fail.Render("error: " + res.Message))
		b.WriteByte('\n')
	default:
		b.WriteString(p.muted.Render("no response"))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Diff prints a unified diff with added and removed lines colored.
func Diff(w io.Writer, diff string, opts Options) error {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	p := newPalette(w, opts.NoColor)
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	b := &strings.Builder{}
	for _, line := range lines {
		styled := line
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			styled = p.meta.Render(line)
		case strings.HasPrefix(line, "@@"):
			styled = p.hunk.Render(line)
		case strings.HasPrefix(line, "+"):
			styled = p.pass.Render(line)
		case strings.HasPrefix(line, "-"):
			styled = p.fail.Render(line)
		}
		b.WriteString(styled)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTests(b *strings.Builder, p palette, tests []restfile.TestResult) {
	for _, t := range tests {
		b.WriteString("     ")
		if t.Passed {
			b.WriteString(p.pass.Render("✓ " + t.Name))
		} else {
			b.WriteString(p.fail.Render("✗ " + t.Name))
			if t.Message != "" {
				b.WriteString(p.muted.Render(": " + t.Message))
			}
		}
		b.WriteByte('\n')
	}
}

func writeIndented(b *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("     ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func summaryLine(p palette, s runner.Summary) string {
	parts := []string{
		fmt.Sprintf("%d requests", s.Total),
		p.pass.Render(fmt.Sprintf("%d passed", s.Passed)),
	}
	failed := fmt.Sprintf("%d failed", s.Failed)
	if s.Failed > 0 {
		failed = p.fail.Render(failed)
	}
	parts = append(parts, failed)
	if s.Errors > 0 {
		parts = append(parts, p.fail.Render(fmt.Sprintf("%d errors", s.Errors)))
	}
	if total := s.AssertionsPassed + s.AssertionsFailed; total > 0 {
		parts = append(parts, fmt.Sprintf("assertions %d/%d", s.AssertionsPassed, total))
	}
	parts = append(parts, formatMillis(s.TimeMillis))
	return strings.Join(parts, ", ")
}

// fit truncates s to width display cells and pads it to exactly width.
func fit(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func formatMillis(ms int64) string {
	if ms >= 10_000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
