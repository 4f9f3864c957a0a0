package zon

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokDotBrace     // ".{"
	tokRBrace       // "}"
	tokEqual        // "="
	tokComma        // ","
	tokDotName      // ".name" or ".@\"name\"" — field name or enum literal
	tokString       // quoted or multiline string, decoded
	tokNumber       // raw numeric text
	tokIdent        // bare identifier: true, false, null
)

type token struct {
	kind tokenKind
	text string
	off  int
}

// lexer produces tokens from ZON source. String literals are consumed
// atomically, so a "//" inside a string can never be taken for a
// comment.
type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(off int, format string, args ...any) error {
	return fmt.Errorf("zon: offset %d: %s", off, fmt.Sprintf(format, args...))
}

// skipSpace advances past whitespace and line comments.
func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, off: l.pos}, nil
	}

	off := l.pos
	c := l.src[l.pos]
	switch {
	case c == '}':
		l.pos++
		return token{kind: tokRBrace, off: off}, nil
	case c == '=':
		l.pos++
		return token{kind: tokEqual, off: off}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, off: off}, nil
	case c == '.':
		return l.lexDot(off)
	case c == '"':
		s, err := l.lexString()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, off: off}, nil
	case c == '\\' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\\':
		return token{kind: tokString, text: l.lexMultiline(), off: off}, nil
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return token{kind: tokNumber, text: l.lexNumber(), off: off}, nil
	case isIdentStart(rune(c)):
		return token{kind: tokIdent, text: l.lexIdent(), off: off}, nil
	}
	return token{}, l.errorf(off, "unexpected character %q", c)
}

// lexDot handles ".{", ".name", and ".@\"name\"".
func (l *lexer) lexDot(off int) (token, error) {
	l.pos++ // consume '.'
	if l.pos >= len(l.src) {
		return token{}, l.errorf(off, "unexpected end of input after '.'")
	}
	switch {
	case l.src[l.pos] == '{':
		l.pos++
		return token{kind: tokDotBrace, off: off}, nil
	case l.src[l.pos] == '@':
		l.pos++
		if l.pos >= len(l.src) || l.src[l.pos] != '"' {
			return token{}, l.errorf(off, `expected string after ".@"`)
		}
		name, err := l.lexString()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokDotName, text: name, off: off}, nil
	case isIdentStart(rune(l.src[l.pos])):
		return token{kind: tokDotName, text: l.lexIdent(), off: off}, nil
	}
	return token{}, l.errorf(off, "unexpected character %q after '.'", l.src[l.pos])
}

// lexString decodes a double-quoted string literal with the escape
// sequences the dialect allows.
func (l *lexer) lexString() (string, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '"':
			l.pos++
			return b.String(), nil
		case '\n':
			return "", l.errorf(start, "unterminated string")
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return "", l.errorf(start, "unterminated string")
			}
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteByte(e)
			case 'x':
				if l.pos+2 >= len(l.src) {
					return "", l.errorf(start, "truncated \\x escape")
				}
				hi, ok1 := hexVal(l.src[l.pos+1])
				lo, ok2 := hexVal(l.src[l.pos+2])
				if !ok1 || !ok2 {
					return "", l.errorf(start, "invalid \\x escape")
				}
				b.WriteByte(byte(hi<<4 | lo))
				l.pos += 2
			case 'u':
				r, n, err := l.lexUnicodeEscape()
				if err != nil {
					return "", err
				}
				b.WriteRune(r)
				l.pos += n
			default:
				return "", l.errorf(start, "unsupported escape \\%c", e)
			}
			l.pos++
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf(start, "unterminated string")
}

// lexUnicodeEscape parses the "{XXXX}" tail of a \u escape. l.pos is at
// the 'u'; the return count is the number of bytes after it.
func (l *lexer) lexUnicodeEscape() (rune, int, error) {
	if l.pos+1 >= len(l.src) || l.src[l.pos+1] != '{' {
		return 0, 0, l.errorf(l.pos, "invalid \\u escape")
	}
	end := strings.IndexByte(l.src[l.pos+2:], '}')
	if end < 0 {
		return 0, 0, l.errorf(l.pos, "unterminated \\u escape")
	}
	var r rune
	for _, c := range []byte(l.src[l.pos+2 : l.pos+2+end]) {
		v, ok := hexVal(c)
		if !ok {
			return 0, 0, l.errorf(l.pos, "invalid \\u escape")
		}
		r = r<<4 | rune(v)
	}
	if !utf8.ValidRune(r) {
		return 0, 0, l.errorf(l.pos, "invalid rune in \\u escape")
	}
	return r, end + 2, nil
}

// lexMultiline consumes a "\\" multiline string: each "\\" line
// contributes its text, lines joined with newlines.
func (l *lexer) lexMultiline() string {
	var lines []string
	for {
		l.pos += 2 // consume `\\`
		end := strings.IndexByte(l.src[l.pos:], '\n')
		if end < 0 {
			lines = append(lines, l.src[l.pos:])
			l.pos = len(l.src)
			break
		}
		lines = append(lines, strings.TrimSuffix(l.src[l.pos:l.pos+end], "\r"))
		l.pos += end + 1

		// Continuation lines may be indented.
		mark := l.pos
		for mark < len(l.src) && (l.src[mark] == ' ' || l.src[mark] == '\t') {
			mark++
		}
		if mark+1 < len(l.src) && l.src[mark] == '\\' && l.src[mark+1] == '\\' {
			l.pos = mark
			continue
		}
		break
	}
	return strings.Join(lines, "\n")
}

// lexNumber consumes raw numeric text (decimal, hex/octal/binary,
// floats, digit separators). Validation happens when rendering.
func (l *lexer) lexNumber() string {
	start := l.pos
	if l.src[l.pos] == '-' || l.src[l.pos] == '+' {
		l.pos++
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c >= '0' && c <= '9',
			c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c == '.', c == '_':
			l.pos++
		case (c == '+' || c == '-') && l.pos > start && isExponent(l.src[l.pos-1]):
			l.pos++
		default:
			return l.src[start:l.pos]
		}
	}
	return l.src[start:l.pos]
}

func (l *lexer) lexIdent() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isExponent(c byte) bool {
	return c == 'e' || c == 'E' || c == 'p' || c == 'P'
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}
