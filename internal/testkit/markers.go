// Package testkit reads and writes diagnostic marker fixtures. A fixture is
// a source file in which every expected finding wraps the text it applies
// to: <!TYPE_MISMATCH!>x<!>. Several codes on one range are separated by
// commas.
package testkit

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Marker is one expected or reported finding, located by byte offsets into
// the stripped source.
type Marker struct {
	Code  string
	Start int
	End   int
}

func (m Marker) String() string {
	return fmt.Sprintf("%s[%d:%d]", m.Code, m.Start, m.End)
}

const (
	openPrefix = "<!"
	openSuffix = "!>"
	closeTag   = "<!>"
)

// Parse strips the markers from src and returns the clean source and the
// markers sorted by position.
func Parse(src string) (string, []Marker, error) {
	type open struct {
		codes []string
		start int
	}
	var (
		out     strings.Builder
		stack   []open
		markers []Marker
	)

	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], closeTag):
			if len(stack) == 0 {
				return "", nil, fmt.Errorf("offset %d: unbalanced %s", i, closeTag)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, c := range top.codes {
				markers = append(markers, Marker{Code: c, Start: top.start, End: out.Len()})
			}
			i += len(closeTag)
		case strings.HasPrefix(src[i:], openPrefix):
			end := strings.Index(src[i+len(openPrefix):], openSuffix)
			if end < 0 {
				return "", nil, fmt.Errorf("offset %d: unterminated marker", i)
			}
			body := src[i+len(openPrefix) : i+len(openPrefix)+end]
			var codes []string
			for _, c := range strings.Split(body, ",") {
				if c = strings.TrimSpace(c); c != "" {
					codes = append(codes, c)
				}
			}
			if len(codes) == 0 {
				return "", nil, fmt.Errorf("offset %d: empty marker", i)
			}
			stack = append(stack, open{codes: codes, start: out.Len()})
			i += len(openPrefix) + end + len(openSuffix)
		default:
			out.WriteByte(src[i])
			i++
		}
	}
	if len(stack) > 0 {
		return "", nil, fmt.Errorf("%d unclosed markers", len(stack))
	}

	Sort(markers)
	return out.String(), markers, nil
}

// Sort orders markers by start, then by longest range, then by code.
func Sort(ms []Marker) {
	slices.SortFunc(ms, func(a, b Marker) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(b.End, a.End); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}

// Render inserts markers into src, the inverse of Parse. Markers sharing a
// range are merged into one tag.
func Render(src string, markers []Marker) string {
	ms := slices.Clone(markers)
	Sort(ms)

	type group struct {
		start, end int
		codes      []string
	}
	var groups []*group
	for _, m := range ms {
		if n := len(groups); n > 0 && groups[n-1].start == m.Start && groups[n-1].end == m.End {
			groups[n-1].codes = append(groups[n-1].codes, m.Code)
			continue
		}
		groups = append(groups, &group{start: m.Start, end: m.End, codes: []string{m.Code}})
	}

	var out strings.Builder
	var open []*group
	next := 0
	for i := 0; i <= len(src); i++ {
		for len(open) > 0 && open[len(open)-1].end == i {
			out.WriteString(closeTag)
			open = open[:len(open)-1]
		}
		for next < len(groups) && groups[next].start == i {
			g := groups[next]
			out.WriteString(openPrefix + strings.Join(g.codes, ", ") + openSuffix)
			if g.end == i {
				out.WriteString(closeTag)
			} else {
				open = append(open, g)
			}
			next++
		}
		if i < len(src) {
			out.WriteByte(src[i])
		}
	}
	for range open {
		out.WriteString(closeTag)
	}
	return out.String()
}
