package script

import (
	"fmt"
	"strconv"
	"strings"
)

var reserved = map[string]struct{}{
	"var": {}, "let": {}, "const": {}, "if": {}, "else": {}, "for": {}, "in": {},
	"while": {}, "with": {}, "return": {}, "break": {}, "continue": {},
	"true": {}, "false": {}, "null": {}, "undefined": {}, "this": {}, "typeof": {},
	"function": {}, "new": {},
}

type parser struct {
	tokens []token
	pos    int
	// loops counts enclosing loops, so break/continue can be checked
	// at compile time.
	loops int
}

func parse(src string) ([]stmt, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var body []stmt
	for !p.at(tokenEOF, "") {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return body, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

// at reports whether the current token has the given kind and, when val is
// not empty, the given value.
func (p *parser) at(kind tokenKind, val string) bool {
	tok := p.peek()
	return tok.kind == kind && (val == "" || tok.val == val)
}

func (p *parser) atPunct(val string) bool {
	return p.at(tokenPunct, val)
}

func (p *parser) atKeyword(val string) bool {
	return p.at(tokenIdent, val)
}

func (p *parser) match(kind tokenKind, val string) bool {
	if p.at(kind, val) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectPunct(val string) (token, error) {
	if !p.atPunct(val) {
		return token{}, p.unexpected(fmt.Sprintf("expected %q", val))
	}
	return p.advance(), nil
}

func (p *parser) unexpected(want string) error {
	tok := p.peek()
	got := "end of input"
	switch tok.kind {
	case tokenString:
		got = strconv.Quote(tok.val)
	case tokenEOF:
	default:
		got = fmt.Sprintf("%q", tok.val)
	}
	return &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("%s, got %s", want, got)}
}

// endStatement consumes an optional semicolon. Without one the statement
// must be followed by a closing brace, the end of input or a line break.
func (p *parser) endStatement() error {
	if p.match(tokenPunct, ";") {
		return nil
	}
	tok := p.peek()
	if tok.kind == tokenEOF || tok.nl || p.atPunct("}") {
		return nil
	}
	return p.unexpected("expected \";\"")
}

func (p *parser) parseStatement() (stmt, error) {
	tok := p.peek()
	if tok.kind == tokenPunct {
		switch tok.val {
		case "{":
			return p.parseBlock()
		case ";":
			p.advance()
			return &emptyStmt{pos: tok.pos}, nil
		}
	}
	if tok.kind == tokenIdent {
		switch tok.val {
		case "var", "let", "const":
			s, err := p.parseDecl()
			if err != nil {
				return nil, err
			}
			return s, p.endStatement()
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "while":
			return p.parseWhile()
		case "with":
			return p.parseWith()
		case "return":
			return p.parseReturn()
		case "break", "continue":
			p.advance()
			if p.loops == 0 {
				return nil, &SyntaxError{Pos: tok.pos, Msg: tok.val + " outside of a loop"}
			}
			var s stmt = &breakStmt{pos: tok.pos}
			if tok.val == "continue" {
				s = &continueStmt{pos: tok.pos}
			}
			return s, p.endStatement()
		}
	}
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &exprStmt{pos: tok.pos, x: x}, p.endStatement()
}

func (p *parser) parseBlock() (*blockStmt, error) {
	open, err := p.expectPunct("{")
	if err != nil {
		return nil, err
	}
	block := &blockStmt{pos: open.pos}
	for !p.atPunct("}") {
		if p.at(tokenEOF, "") {
			return nil, &SyntaxError{Pos: open.pos, Msg: "unclosed block"}
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.body = append(block.body, s)
	}
	p.advance()
	return block, nil
}

func (p *parser) parseDecl() (*declStmt, error) {
	tok := p.advance()
	s := &declStmt{pos: tok.pos}
	switch tok.val {
	case "let":
		s.kind = declLet
	case "const":
		s.kind = declConst
	}
	for {
		name, err := p.parseBindingName()
		if err != nil {
			return nil, err
		}
		d := declarator{name: name}
		if p.match(tokenPunct, "=") {
			if d.init, err = p.parseAssign(); err != nil {
				return nil, err
			}
		} else if s.kind == declConst {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "missing initializer in const declaration"}
		}
		s.decls = append(s.decls, d)
		if !p.match(tokenPunct, ",") {
			return s, nil
		}
	}
}

func (p *parser) parseBindingName() (string, error) {
	tok := p.peek()
	if tok.kind != tokenIdent {
		return "", p.unexpected("expected identifier")
	}
	if _, ok := reserved[tok.val]; ok {
		return "", &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("%q is a reserved word", tok.val)}
	}
	p.advance()
	return tok.val, nil
}

func (p *parser) parseParenExpr() (expr, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err = p.expectPunct(")"); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *parser) parseIf() (stmt, error) {
	tok := p.advance()
	cond, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	s := &ifStmt{pos: tok.pos, cond: cond, then: then}
	if p.match(tokenIdent, "else") {
		if s.els, err = p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) parseLoopBody() (stmt, error) {
	p.loops++
	defer func() { p.loops-- }()
	return p.parseStatement()
}

func (p *parser) parseFor() (stmt, error) {
	tok := p.advance()
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}

	// for ([var|let|const] name of|in expr)
	offset := 0
	if t := p.peek(); t.kind == tokenIdent && (t.val == "var" || t.val == "let" || t.val == "const") {
		offset = 1
	}
	if name, kw := p.peekAt(offset), p.peekAt(offset+1); name.kind == tokenIdent && kw.kind == tokenIdent && (kw.val == "of" || kw.val == "in") {
		p.pos += offset
		bound, err := p.parseBindingName()
		if err != nil {
			return nil, err
		}
		p.advance()
		iter, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err = p.expectPunct(")"); err != nil {
			return nil, err
		}
		body, err := p.parseLoopBody()
		if err != nil {
			return nil, err
		}
		return &forEachStmt{pos: tok.pos, name: bound, keys: kw.val == "in", iter: iter, body: body}, nil
	}

	s := &forStmt{pos: tok.pos}
	var err error
	switch {
	case p.atPunct(";"):
	case p.atKeyword("var") || p.atKeyword("let") || p.atKeyword("const"):
		if s.init, err = p.parseDecl(); err != nil {
			return nil, err
		}
	default:
		start := p.peek().pos
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		s.init = &exprStmt{pos: start, x: x}
	}
	if _, err = p.expectPunct(";"); err != nil {
		return nil, err
	}
	if !p.atPunct(";") {
		if s.cond, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err = p.expectPunct(";"); err != nil {
		return nil, err
	}
	if !p.atPunct(")") {
		if s.update, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err = p.expectPunct(")"); err != nil {
		return nil, err
	}
	if s.body, err = p.parseLoopBody(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) parseWhile() (stmt, error) {
	tok := p.advance()
	cond, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return &whileStmt{pos: tok.pos, cond: cond, body: body}, nil
}

func (p *parser) parseWith() (stmt, error) {
	tok := p.advance()
	obj, err := p.parseParenExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &withStmt{pos: tok.pos, obj: obj, body: body}, nil
}

func (p *parser) parseReturn() (stmt, error) {
	tok := p.advance()
	s := &returnStmt{pos: tok.pos}
	next := p.peek()
	if next.kind == tokenEOF || next.nl || p.atPunct(";") || p.atPunct("}") {
		return s, p.endStatement()
	}
	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	s.x = x
	return s, p.endStatement()
}

func (p *parser) parseExpression() (expr, error) {
	return p.parseAssign()
}

func isAssignable(x expr) bool {
	switch x.(type) {
	case *ident, *memberExpr:
		return true
	}
	return false
}

func (p *parser) parseAssign() (expr, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokenPunct {
		return left, nil
	}
	switch tok.val {
	case "=", "+=", "-=", "*=", "/=":
	default:
		return left, nil
	}
	if !isAssignable(left) {
		return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid assignment target"}
	}
	p.advance()
	right, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &assignExpr{pos: tok.pos, op: tok.val, target: left, value: right}, nil
}

func (p *parser) parseConditional() (expr, error) {
	cond, err := p.parseLogical(0)
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if !p.match(tokenPunct, "?") {
		return cond, nil
	}
	then, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if _, err = p.expectPunct(":"); err != nil {
		return nil, err
	}
	els, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &condExpr{pos: tok.pos, cond: cond, then: then, els: els}, nil
}

// binaryLevels lists binary operators from loosest to tightest binding.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!=", "===", "!=="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) parseLogical(level int) (expr, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseLogical(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenPunct || !contains(binaryLevels[level], tok.val) {
			return left, nil
		}
		p.advance()
		right, err := p.parseLogical(level + 1)
		if err != nil {
			return nil, err
		}
		if tok.val == "&&" || tok.val == "||" {
			left = &logicalExpr{pos: tok.pos, op: tok.val, left: left, right: right}
		} else {
			left = &binaryExpr{pos: tok.pos, op: tok.val, left: left, right: right}
		}
	}
}

func contains(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (expr, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokenPunct && (tok.val == "!" || tok.val == "-" || tok.val == "+"),
		tok.kind == tokenIdent && tok.val == "typeof":
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: tok.pos, op: tok.val, x: x}, nil
	case tok.kind == tokenPunct && (tok.val == "++" || tok.val == "--"):
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !isAssignable(x) {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid update target"}
		}
		return &updateExpr{pos: tok.pos, op: tok.val, prefix: true, target: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (expr, error) {
	x, err := p.parseCallMember()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind == tokenPunct && (tok.val == "++" || tok.val == "--") && !tok.nl {
		if !isAssignable(x) {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "invalid update target"}
		}
		p.advance()
		return &updateExpr{pos: tok.pos, op: tok.val, target: x}, nil
	}
	return x, nil
}

func (p *parser) parseCallMember() (expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenPunct {
			return x, nil
		}
		switch tok.val {
		case ".":
			p.advance()
			name := p.peek()
			if name.kind != tokenIdent {
				return nil, p.unexpected("expected property name")
			}
			p.advance()
			x = &memberExpr{pos: name.pos, obj: x, name: name.val}
		case "[":
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err = p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = &memberExpr{pos: tok.pos, obj: x, index: index, computed: true}
		case "(":
			p.advance()
			args, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			x = &callExpr{pos: tok.pos, callee: x, args: args}
		default:
			return x, nil
		}
	}
}

// parseList parses comma separated expressions up to and including the
// closing punctuator. A trailing comma is allowed.
func (p *parser) parseList(closing string) ([]expr, error) {
	var list []expr
	for !p.match(tokenPunct, closing) {
		x, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		list = append(list, x)
		if !p.match(tokenPunct, ",") {
			if _, err = p.expectPunct(closing); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return list, nil
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenNumber:
		p.advance()
		n, err := parseNumber(tok.val)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.val)}
		}
		return &literal{pos: tok.pos, val: n}, nil
	case tokenString:
		p.advance()
		return &literal{pos: tok.pos, val: tok.val}, nil
	case tokenIdent:
		switch tok.val {
		case "true", "false":
			p.advance()
			return &literal{pos: tok.pos, val: tok.val == "true"}, nil
		case "null", "undefined":
			p.advance()
			return &literal{pos: tok.pos, val: nil}, nil
		case "this":
			p.advance()
			return &thisExpr{pos: tok.pos}, nil
		}
		if _, ok := reserved[tok.val]; ok {
			return nil, p.unexpected("expected expression")
		}
		p.advance()
		return &ident{pos: tok.pos, name: tok.val}, nil
	case tokenPunct:
		switch tok.val {
		case "(":
			return p.parseParenExpr()
		case "[":
			p.advance()
			elems, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return &arrayLit{pos: tok.pos, elems: elems}, nil
		case "{":
			return p.parseObject()
		}
	}
	return nil, p.unexpected("expected expression")
}

func (p *parser) parseObject() (expr, error) {
	open := p.advance()
	obj := &objectLit{pos: open.pos}
	for !p.match(tokenPunct, "}") {
		key := p.peek()
		switch key.kind {
		case tokenIdent, tokenString, tokenNumber:
			p.advance()
		default:
			return nil, p.unexpected("expected property key")
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		obj.props = append(obj.props, objectProp{key: key.val, val: val})
		if !p.match(tokenPunct, ",") {
			if _, err = p.expectPunct("}"); err != nil {
				return nil, err
			}
			return obj, nil
		}
	}
	return obj, nil
}

func parseNumber(s string) (float64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		return float64(n), err
	}
	return strconv.ParseFloat(s, 64)
}
