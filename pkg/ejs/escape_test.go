package ejs

import "testing"

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"Markup", `<a href="x">&y</a>`, "&lt;a href=&quot;x&quot;&gt;&amp;y&lt;/a&gt;"},
		{"Named entity kept", "&amp;", "&amp;"},
		{"Word entity kept", "&x27;", "&x27;"},
		{"Numeric reference escaped", "&#39; &x27;", "&amp;#39; &x27;"},
		{"Bare ampersand", "a & b", "a &amp; b"},
		{"Ampersand without semicolon", "&amp", "&amp;amp"},
		{"Ampersand before non-word", "&-;", "&amp;-;"},
		{"Empty entity name", "&;", "&amp;;"},
		{"Trailing ampersand", "x&", "x&amp;"},
		{"Single quote untouched", "it's", "it's"},
		{"Plain text", "hello", "hello"},
		{"Nil", nil, ""},
		{"Number", 3.5, "3.5"},
		{"Integer", 42, "42"},
		{"Bool", true, "true"},
		{"Multibyte", "<é>", "&lt;é&gt;"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Escape(tc.in); got != tc.want {
				t.Errorf("Escape(%#v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func BenchmarkEscape(b *testing.B) {
	s := `<div class="note">Fish & chips &amp; more</div>`
	for i := 0; i < b.N; i++ {
		Escape(s)
	}
}
