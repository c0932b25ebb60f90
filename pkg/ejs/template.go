package ejs

import (
	"github.com/CTAG07/Nepenthes/pkg/script"
)

// Template is a compiled template. It is immutable and safe for concurrent
// use.
type Template struct {
	source  string
	code    string
	program *script.Program
}

// buildTemplate builds the program generated from src once.
func buildTemplate(src, code string, config Config) (*Template, error) {
	program, err := script.Compile(code, []string{"locals", "escape"},
		script.WithMaxIterations(config.MaxLoopIterations))
	if err != nil {
		return nil, err
	}
	return &Template{source: src, code: code, program: program}, nil
}

// Source returns the template text the Template was compiled from.
func (t *Template) Source() string {
	return t.source
}

// Code returns the generated program source.
func (t *Template) Code() string {
	return t.code
}

// Execute renders the template. Tag code sees the keys of locals as
// variables and receiver as this. A nil locals map behaves like an empty
// one. Errors raised by tag code are returned as they are, typically as a
// *script.RuntimeError.
func (t *Template) Execute(locals map[string]any, receiver any) (string, error) {
	if locals == nil {
		locals = map[string]any{}
	}
	out, err := t.program.Run(receiver, locals, escapeFunc)
	if err != nil {
		return "", err
	}
	return script.ToString(out), nil
}
