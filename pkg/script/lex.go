package script

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEOF    tokenKind = iota
	tokenIdent            // foo, if, var
	tokenNumber           // 12, 1.5e3, 0xff
	tokenString           // 'foo', "bar"
	tokenPunct            // ( ) === += ...
)

type token struct {
	kind tokenKind
	val  string // unquoted for strings
	pos  Pos
	// nl is set when at least one line break separates this token from the
	// previous one.
	nl bool
}

// punctuators ordered so longer operators match first.
var punctuators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||", "++", "--", "+=", "-=", "*=", "/=",
	"(", ")", "{", "}", "[", "]", ",", ";", ".", "?", ":",
	"+", "-", "*", "/", "%", "!", "<", ">", "=",
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
	nl   bool
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) here() Pos {
	return Pos{Line: l.line, Col: l.col}
}

func (l *lexer) errorf(pos Pos, msg string) error {
	return &SyntaxError{Pos: pos, Msg: msg}
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

// peekWidth returns the byte width of the rune at offset. An invalid byte
// has width 1.
func (l *lexer) peekWidth(offset int) int {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	_, w := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return w
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		l.pos += w
		i += w
		if r == '\n' {
			l.line++
			l.col = 1
			l.nl = true
		} else {
			l.col++
		}
	}
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		r := l.peekRune(0)
		switch {
		case r == '/' && l.peekRune(1) == '/':
			for l.pos < len(l.src) && l.peekRune(0) != '\n' {
				l.advance(1)
			}
		case r == '/' && l.peekRune(1) == '*':
			start := l.here()
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf(start, "unterminated comment")
			}
			l.advance(end + 4)
		case unicode.IsSpace(r):
			l.advance(l.peekWidth(0))
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	l.nl = false
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	nl := l.nl
	pos := l.here()
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, pos: pos, nl: nl}, nil
	}

	r := l.peekRune(0)
	switch {
	case isIdentStart(r):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peekRune(0)) {
			l.advance(l.peekWidth(0))
		}
		return token{kind: tokenIdent, val: l.src[start:l.pos], pos: pos, nl: nl}, nil
	case isDigit(r) || (r == '.' && isDigit(l.peekRune(1))):
		return l.lexNumber(pos, nl)
	case r == '\'' || r == '"':
		return l.lexString(pos, nl, r)
	}

	rest := l.src[l.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			l.advance(len(p))
			return token{kind: tokenPunct, val: p, pos: pos, nl: nl}, nil
		}
	}
	return token{}, l.errorf(pos, "unexpected character "+strconv.QuoteRune(r))
}

func (l *lexer) lexNumber(pos Pos, nl bool) (token, error) {
	start := l.pos
	if l.peekRune(0) == '0' && (l.peekRune(1) == 'x' || l.peekRune(1) == 'X') {
		l.advance(2)
		for isHexDigit(l.peekRune(0)) {
			l.advance(1)
		}
	} else {
		for isDigit(l.peekRune(0)) {
			l.advance(1)
		}
		if l.peekRune(0) == '.' && isDigit(l.peekRune(1)) {
			l.advance(1)
			for isDigit(l.peekRune(0)) {
				l.advance(1)
			}
		}
		if r := l.peekRune(0); r == 'e' || r == 'E' {
			l.advance(1)
			if r := l.peekRune(0); r == '+' || r == '-' {
				l.advance(1)
			}
			if !isDigit(l.peekRune(0)) {
				return token{}, l.errorf(pos, "malformed number exponent")
			}
			for isDigit(l.peekRune(0)) {
				l.advance(1)
			}
		}
	}
	if isIdentStart(l.peekRune(0)) {
		return token{}, l.errorf(pos, "identifier directly after number")
	}
	return token{kind: tokenNumber, val: l.src[start:l.pos], pos: pos, nl: nl}, nil
}

func (l *lexer) lexString(pos Pos, nl bool, quote rune) (token, error) {
	l.advance(1)
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf(pos, "unterminated string literal")
		}
		r := l.peekRune(0)
		switch r {
		case quote:
			l.advance(1)
			return token{kind: tokenString, val: sb.String(), pos: pos, nl: nl}, nil
		case '\n':
			return token{}, l.errorf(pos, "line break in string literal")
		case '\\':
			esc := l.peekRune(1)
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '0':
				sb.WriteByte(0)
			case 'u':
				if l.pos+6 > len(l.src) {
					return token{}, l.errorf(l.here(), "malformed unicode escape")
				}
				code, err := strconv.ParseUint(l.src[l.pos+2:l.pos+6], 16, 32)
				if err != nil {
					return token{}, l.errorf(l.here(), "malformed unicode escape")
				}
				sb.WriteRune(rune(code))
				l.advance(6)
				continue
			case -1:
				return token{}, l.errorf(pos, "unterminated string literal")
			default:
				// \\ \' \" and any other escaped character stand for themselves.
				w := l.peekWidth(1)
				sb.WriteString(l.src[l.pos+1 : l.pos+1+w])
				l.advance(1 + w)
				continue
			}
			l.advance(2)
		default:
			// Raw bytes so invalid UTF-8 passes through unchanged.
			w := l.peekWidth(0)
			sb.WriteString(l.src[l.pos : l.pos+w])
			l.advance(w)
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
