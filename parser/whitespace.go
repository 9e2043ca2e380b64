package parser

import (
	"strings"
	"unicode"
)

// normalizeWhitespace applies the line joining rules to the statements of
// one block:
//
//   - text runs split only by comments are merged
//   - every whitespace sequence inside a text run becomes a single space
//   - the first text of the block loses leading and the last text loses
//     trailing whitespace
//   - text next to a special character command is trimmed on that side
//   - text that ends up empty is dropped
func normalizeWhitespace(stmts []Stmt) []Stmt {
	merged := make([]Stmt, 0, len(stmts))
	lastText := -1
	for _, stmt := range stmts {
		text, ok := stmt.(*Text)
		if !ok {
			if _, isComment := stmt.(*Comment); !isComment {
				lastText = -1
			}
			merged = append(merged, stmt)
			continue
		}
		if lastText >= 0 {
			prev := merged[lastText].(*Text)
			merged[lastText] = &Text{Text: prev.Text + text.Text, span: prev.span.Join(text.span)}
			continue
		}
		lastText = len(merged)
		merged = append(merged, &Text{Text: text.Text, span: text.span})
	}

	for _, stmt := range merged {
		if text, ok := stmt.(*Text); ok {
			text.Text = collapseSpaces(text.Text)
		}
	}

	if i := firstContent(merged); i >= 0 {
		if text, ok := merged[i].(*Text); ok {
			text.Text = strings.TrimLeftFunc(text.Text, unicode.IsSpace)
		}
	}
	if i := lastContent(merged); i >= 0 {
		if text, ok := merged[i].(*Text); ok {
			text.Text = strings.TrimRightFunc(text.Text, unicode.IsSpace)
		}
	}

	for i, stmt := range merged {
		text, ok := stmt.(*Text)
		if !ok {
			continue
		}
		if i > 0 {
			if _, special := merged[i-1].(*Special); special {
				text.Text = strings.TrimLeftFunc(text.Text, unicode.IsSpace)
			}
		}
		if i+1 < len(merged) {
			if _, special := merged[i+1].(*Special); special {
				text.Text = strings.TrimRightFunc(text.Text, unicode.IsSpace)
			}
		}
	}

	out := merged[:0]
	for _, stmt := range merged {
		if text, ok := stmt.(*Text); ok && text.Text == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// firstContent returns the index of the first statement that is not a
// comment, or -1.
func firstContent(stmts []Stmt) int {
	for i, stmt := range stmts {
		if _, ok := stmt.(*Comment); !ok {
			return i
		}
	}
	return -1
}

func lastContent(stmts []Stmt) int {
	for i := len(stmts) - 1; i >= 0; i-- {
		if _, ok := stmts[i].(*Comment); !ok {
			return i
		}
	}
	return -1
}

func collapseSpaces(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				sb.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}
