package ejs

import (
	"strings"

	"github.com/CTAG07/Nepenthes/pkg/script"
)

// Escape converts v to text and makes it safe to embed in markup. An
// ampersand followed by one or more word characters and a semicolon, such as
// &amp; or &x27;, is left alone. Every other & is replaced with &amp;, so a
// numeric reference like &#39; is escaped. <, > and " become &lt;, &gt; and
// &quot;.
func Escape(v any) string {
	s := script.ToString(v)
	if !strings.ContainsAny(s, `&<>"`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if startsEntity(s[i+1:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// startsEntity reports whether s begins with one or more word characters
// followed by a semicolon.
func startsEntity(s string) bool {
	n := 0
	for n < len(s) && isWordChar(s[n]) {
		n++
	}
	return n > 0 && n < len(s) && s[n] == ';'
}

func isWordChar(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

var escapeFunc = script.Func(func(args ...any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return Escape(args[0]), nil
})
