package errors

import (
	goerrors "errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/archimag/soy-go/syntax"
	"github.com/archimag/soy-go/value"
)

// DebugInfo is a snapshot taken when an error aborts a render: the source of
// the failing template and the variables the failing node refers to.
type DebugInfo struct {
	TemplateSource   string
	ReferencedLocals map[string]value.Value
	// CallStack lists the templates being rendered, outermost first.
	CallStack []string
}

const (
	reportWidth  = 79
	excerptLines = 3
)

// writeReport prints err followed by its debug snapshot and, when chain is
// set, every error it wraps.
func writeReport(w io.Writer, err *Error, chain bool) {
	var b strings.Builder
	b.WriteString(err.Error())
	if err.DebugInfo != nil {
		b.WriteByte('\n')
		writeExcerpt(&b, err)
		writeLocals(&b, err.DebugInfo.ReferencedLocals)
		if stack := err.DebugInfo.CallStack; len(stack) > 1 {
			fmt.Fprintf(&b, "Call stack: %s\n", strings.Join(stack, " -> "))
		}
		b.WriteString(strings.Repeat("-", reportWidth))
	}
	_, _ = io.WriteString(w, b.String())

	if !chain {
		return
	}
	for cause := goerrors.Unwrap(err); cause != nil; cause = goerrors.Unwrap(cause) {
		_, _ = io.WriteString(w, "\n\ncaused by: ")
		if inner, ok := cause.(*Error); ok {
			writeReport(w, inner, false)
			continue
		}
		_, _ = io.WriteString(w, cause.Error())
	}
}

// writeExcerpt prints the lines around the failing span framed by a title
// bar, marking the failing line with '>' and its columns with carets.
func writeExcerpt(b *strings.Builder, err *Error) {
	source := err.DebugInfo.TemplateSource
	if source == "" {
		return
	}
	lines := strings.Split(source, "\n")

	title := " Template Source "
	if err.Name != "" {
		title = " " + err.Name + " "
	}
	b.WriteString(padCenter(title, reportWidth))
	b.WriteByte('\n')

	at := 0
	if err.Span != nil && err.Span.StartLine > 0 {
		at = min(int(err.Span.StartLine)-1, len(lines)-1)
	}
	from := max(at-excerptLines, 0)
	to := min(at+excerptLines, len(lines)-1)

	for i := from; i <= to; i++ {
		marker := '|'
		if i == at {
			marker = '>'
		}
		fmt.Fprintf(b, "%4d %c %s\n", i+1, marker, lines[i])
		if i == at && err.Span != nil && err.Span.StartLine == err.Span.EndLine {
			fmt.Fprintf(b, "     i %s%s %s\n",
				strings.Repeat(" ", int(err.Span.StartCol)),
				strings.Repeat("^", spanWidth(err.Span)),
				err.Kind)
		}
	}
	b.WriteString(strings.Repeat("~", reportWidth))
	b.WriteByte('\n')
}

func writeLocals(b *strings.Builder, locals map[string]value.Value) {
	if len(locals) == 0 {
		b.WriteString("No referenced variables\n")
		return
	}
	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("Referenced variables:\n")
	for _, name := range names {
		fmt.Fprintf(b, "    %s: %s\n", name, locals[name].Repr())
	}
}

func spanWidth(span *syntax.Span) int {
	return max(int(span.EndCol)-int(span.StartCol), 1)
}

func padCenter(title string, width int) string {
	pad := width - len(title)
	if pad <= 0 {
		return title
	}
	return strings.Repeat("-", pad/2) + title + strings.Repeat("-", pad-pad/2)
}
