package soy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// uriKeep and uriComponentKeep are the bytes left unencoded by EscapeURI
// and EscapeURIComponent.
var uriKeep, uriComponentKeep [256]bool

func init() {
	for _, set := range []struct {
		table *[256]bool
		extra string
	}{
		{&uriComponentKeep, "-_.!~*'()"},
		{&uriKeep, "-_.!~*'();/?:@&=+$,#"},
	} {
		for c := 'a'; c <= 'z'; c++ {
			set.table[c] = true
			set.table[c-'a'+'A'] = true
		}
		for c := '0'; c <= '9'; c++ {
			set.table[c] = true
		}
		for i := 0; i < len(set.extra); i++ {
			set.table[set.extra[i]] = true
		}
	}
}

// EscapeURI percent-encodes s but keeps the characters that delimit the
// parts of a URI.
func EscapeURI(s string) string {
	return percentEncode(s, &uriKeep)
}

// EscapeURIComponent percent-encodes everything but the unreserved
// characters.
func EscapeURIComponent(s string) string {
	return percentEncode(s, &uriComponentKeep)
}

func percentEncode(s string, keep *[256]bool) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keep[c] {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&15])
	}
	return sb.String()
}

var newlineToBr = strings.NewReplacer("\r\n", "<br>", "\r", "<br>", "\n", "<br>")

func changeNewlineToBr(s string) string {
	return newlineToBr.Replace(s)
}

// truncate shortens s to at most n runes. With ellipsis the result ends in
// "..." and still fits in n runes, unless n is too small to hold it.
func truncate(s string, n int, ellipsis bool) string {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if ellipsis && n > 3 {
		return takeRunes(s, n-3) + "..."
	}
	return takeRunes(s, n)
}

func takeRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// insertWordBreaks adds <wbr> into every run of more than n characters
// without whitespace. Markup tags are copied untouched and an entity counts
// as one character.
func insertWordBreaks(s string, n int) string {
	if n <= 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	run := 0
	inTag := false
	inEntity := false
	for _, r := range s {
		switch {
		case inTag:
			inTag = r != '>'
			sb.WriteRune(r)
			continue
		case r == '<':
			inTag = true
			run = 0
			sb.WriteRune(r)
			continue
		case inEntity:
			inEntity = r != ';'
			sb.WriteRune(r)
			continue
		case unicode.IsSpace(r):
			run = 0
			sb.WriteRune(r)
			continue
		}
		if run >= n {
			sb.WriteString("<wbr>")
			run = 0
		}
		run++
		if r == '&' {
			inEntity = true
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
