package script

import (
	"errors"
	"testing"
)

func TestParseStatements(t *testing.T) {
	src := `
var buf = []
let n = 0; const limit = 3
for (let i = 0; i < limit; i++) { n += i }
for (x of items) buf.push(x)
for (k in obj) {}
while (n > 0) n--
if (n) { n = 1 } else if (!n) { n = 2 } else ;
with (locals) { buf.push(name) }
return buf.join('')
`
	body, err := parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wantTypes := []string{"decl", "decl", "decl", "for", "foreach", "foreach", "while", "if", "with", "return"}
	if len(body) != len(wantTypes) {
		t.Fatalf("expected %d statements, got %d", len(wantTypes), len(body))
	}
	for i, s := range body {
		var got string
		switch s.(type) {
		case *declStmt:
			got = "decl"
		case *forStmt:
			got = "for"
		case *forEachStmt:
			got = "foreach"
		case *whileStmt:
			got = "while"
		case *ifStmt:
			got = "if"
		case *withStmt:
			got = "with"
		case *returnStmt:
			got = "return"
		}
		if got != wantTypes[i] {
			t.Errorf("statement %d: expected %s, got %T", i, wantTypes[i], s)
		}
	}

	if fe := body[5].(*forEachStmt); !fe.keys || fe.name != "k" {
		t.Errorf("expected for-in over k, got keys=%v name=%q", fe.keys, fe.name)
	}
}

func TestParsePrecedence(t *testing.T) {
	body, err := parse("a = b || c && d == e + f * g")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	assign, ok := body[0].(*exprStmt).x.(*assignExpr)
	if !ok {
		t.Fatalf("expected assignment, got %T", body[0].(*exprStmt).x)
	}
	or, ok := assign.value.(*logicalExpr)
	if !ok || or.op != "||" {
		t.Fatalf("expected || at the top of the right hand side, got %#v", assign.value)
	}
	and, ok := or.right.(*logicalExpr)
	if !ok || and.op != "&&" {
		t.Fatalf("expected && under ||, got %#v", or.right)
	}
	eq, ok := and.right.(*binaryExpr)
	if !ok || eq.op != "==" {
		t.Fatalf("expected == under &&, got %#v", and.right)
	}
	plus, ok := eq.right.(*binaryExpr)
	if !ok || plus.op != "+" {
		t.Fatalf("expected + under ==, got %#v", eq.right)
	}
	if mul, ok := plus.right.(*binaryExpr); !ok || mul.op != "*" {
		t.Fatalf("expected * under +, got %#v", plus.right)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"Missing operand":          "a = ",
		"Reserved binding":         "var if = 1",
		"Const without value":      "const a",
		"Break outside loop":       "break",
		"Continue outside loop":    "if (a) continue",
		"Invalid assign target":    "1 = a",
		"Invalid update target":    "a + b++ ++",
		"Two expressions one line": "a b",
		"Unclosed block":           "if (a) { b",
		"Unclosed call":            "f(a, b",
		"Unsupported function":     "function f() {}",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parse(src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected SyntaxError for %q, got %v", src, err)
			}
			if se.Pos.Line < 1 || se.Pos.Col < 1 {
				t.Errorf("expected a position, got %s", se.Pos)
			}
		})
	}
}
