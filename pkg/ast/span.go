package ast

import "fmt"

// Pos is a position in a source file. Line and Column are 1-based,
// Offset is a 0-based byte offset.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before reports whether p comes strictly before q.
func (p Pos) Before(q Pos) bool {
	if p.Offset != q.Offset {
		return p.Offset < q.Offset
	}
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open source range.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// Cover returns the smallest span containing both s and o.
func (s Span) Cover(o Span) Span {
	out := s
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if out.End.Before(o.End) {
		out.End = o.End
	}
	return out
}

// Contains reports whether the offset lies within s.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start.Offset && offset < s.End.Offset
}

func (s Span) String() string {
	return s.Start.String()
}

// Loc carries the source range of a node. It is embedded by every node type.
type Loc struct {
	At Span
}

// Span returns the node's source range.
func (l Loc) Span() Span { return l.At }
