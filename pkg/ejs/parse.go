package ejs

import "strings"

const (
	codePrelude   = "var buf = []\nwith (locals) {\n  buf.push('"
	codeFinalizer = "');\n}\nreturn buf.join('');"
)

// Parse converts a template into the source of the program that renders it.
// The program takes two parameters, locals and escape, and returns the
// rendered text. Literal text becomes single-quoted string pushes; tag code
// is copied verbatim.
func Parse(src string) (string, error) {
	var b strings.Builder
	b.Grow(len(codePrelude) + len(src)*2 + len(codeFinalizer))
	b.WriteString(codePrelude)

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '<' && i+1 < len(src) && src[i+1] == '%' {
			start := i
			i += 2

			prefix, postfix := "'); ", "; buf.push('"
			if i < len(src) {
				switch src[i] {
				case '=':
					prefix, postfix = "', escape(", "), '"
					i++
				case '-':
					prefix, postfix = "', ", ", '"
					i++
				}
			}

			end := strings.Index(src[i:], "%>")
			if end < 0 {
				return "", &ParseError{Offset: start, Err: ErrUnterminatedTag}
			}
			b.WriteString(prefix)
			b.WriteString(src[i : i+end])
			b.WriteString(postfix)
			// Land on the '>' so the loop increment steps past the tag.
			i += end + 1
			continue
		}

		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\r':
			b.WriteByte(' ')
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}

	b.WriteString(codeFinalizer)
	return b.String(), nil
}
