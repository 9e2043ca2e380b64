package syntax

import "fmt"

// Span represents a location range in template source.
//
// Lines are 1-based, columns are 0-based byte offsets within the line.
type Span struct {
	StartLine   uint16
	StartCol    uint16
	StartOffset uint32
	EndLine     uint16
	EndCol      uint16
	EndOffset   uint32
}

// Pos is a single point in template source.
type Pos struct {
	Line   uint16
	Col    uint16
	Offset uint32
}

// SpanFrom builds a span covering start..end.
func SpanFrom(start, end Pos) Span {
	return Span{
		StartLine:   start.Line,
		StartCol:    start.Col,
		StartOffset: start.Offset,
		EndLine:     end.Line,
		EndCol:      end.Col,
		EndOffset:   end.Offset,
	}
}

// Start returns the first position of the span.
func (s Span) Start() Pos {
	return Pos{Line: s.StartLine, Col: s.StartCol, Offset: s.StartOffset}
}

// Join returns the smallest span covering both s and other.
func (s Span) Join(other Span) Span {
	out := s
	if other.EndOffset > s.EndOffset {
		out.EndLine = other.EndLine
		out.EndCol = other.EndCol
		out.EndOffset = other.EndOffset
	}
	return out
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.StartLine, s.StartCol)
}
