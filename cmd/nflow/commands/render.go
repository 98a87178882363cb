package commands

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/l3aro/go-nullflow/pkg/types"
)

// printer writes findings in compiler style: a location line, the source
// line and a caret under the offending expression. The first write error
// is kept in err and later writes are skipped.
type printer struct {
	w   io.Writer
	err error

	bold, dim, caret       *color.Color
	errC, warnC, infoC, ok *color.Color
}

func newPrinter(w io.Writer, enabled bool) *printer {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &printer{
		w:     w,
		bold:  mk(color.Bold),
		dim:   mk(color.Faint),
		caret: mk(color.FgGreen, color.Bold),
		errC:  mk(color.FgRed, color.Bold),
		warnC: mk(color.FgYellow, color.Bold),
		infoC: mk(color.FgCyan),
		ok:    mk(color.FgGreen),
	}
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// file prints the findings of one report, and its markers when requested.
func (p *printer) file(rep *types.FileReport, src []byte, markers bool) {
	if rep.SyntaxError != "" {
		p.printf("%s: %s\n", p.errC.Sprint("error"), rep.SyntaxError)
	}

	findings := rep.Findings
	if markers && len(rep.Markers) > 0 {
		findings = slices.Concat(rep.Findings, rep.Markers)
		slices.SortStableFunc(findings, func(a, b types.Finding) int {
			return cmp.Compare(a.Start.Offset, b.Start.Offset)
		})
	}
	for _, f := range findings {
		p.finding(rep.Path, f, src)
	}
}

func (p *printer) finding(path string, f types.Finding, src []byte) {
	p.printf("%s: %s: %s %s\n",
		p.bold.Sprintf("%s:%s", path, f.Start),
		p.severity(f.Severity),
		f.Message,
		p.dim.Sprintf("[%s]", f.Code))

	if line, pad, width, ok := excerpt(src, f.Start.Offset, f.End.Offset); ok {
		p.printf("    %s\n", line)
		p.printf("    %s%s\n", pad, p.caret.Sprint("^"+strings.Repeat("~", width-1)))
	}
}

func (p *printer) severity(s string) string {
	switch s {
	case "error":
		return p.errC.Sprint(s)
	case "warning":
		return p.warnC.Sprint(s)
	}
	return p.infoC.Sprint(s)
}

func (p *printer) summary(s types.Summary) {
	if s.Errors == 0 && s.Warnings == 0 {
		p.printf("%s no problems in %s\n", p.ok.Sprint("✓"), plural(s.Files, "file"))
		return
	}
	p.printf("%s, %s in %s",
		plural(s.Errors, "error"), plural(s.Warnings, "warning"), plural(s.Files, "file"))
	if s.Cached > 0 {
		p.printf(" (%d cached)", s.Cached)
	}
	p.printf("\n")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// excerpt returns the source line holding offset start, the padding that
// puts a caret under start, and the display width of the span up to the end
// of that line. Tabs in the padding are kept so the caret lines up however
// the terminal expands them.
func excerpt(src []byte, start, end int) (line, pad string, width int, ok bool) {
	if start < 0 || start > len(src) {
		return "", "", 0, false
	}
	ls := bytes.LastIndexByte(src[:start], '\n') + 1
	le := bytes.IndexByte(src[start:], '\n')
	if le < 0 {
		le = len(src)
	} else {
		le += start
	}

	var sb strings.Builder
	for _, r := range string(src[ls:start]) {
		if r == '\t' {
			sb.WriteByte('\t')
			continue
		}
		sb.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}

	end = max(min(end, le), start)
	width = max(runewidth.StringWidth(string(src[start:end])), 1)
	return strings.TrimRight(string(src[ls:le]), "\r"), sb.String(), width, true
}
