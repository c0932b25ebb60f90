package script

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMaxIterations bounds the loop iterations of a single run.
const DefaultMaxIterations = 1_000_000

// Option configures a Program.
type Option func(*Program)

// WithMaxIterations sets the total number of loop iterations one run may
// perform before failing with ErrIterationLimit. Zero or less disables the
// limit.
func WithMaxIterations(n int) Option {
	return func(p *Program) {
		p.maxIterations = n
	}
}

// Program is a compiled script. It holds no run state and is safe for
// concurrent use.
type Program struct {
	params        []string
	body          []stmt
	maxIterations int
}

// Compile parses src as the body of a function taking the named params.
func Compile(src string, params []string, opts ...Option) (*Program, error) {
	body, err := parse(src)
	if err != nil {
		return nil, err
	}
	p := &Program{
		params:        append([]string(nil), params...),
		body:          body,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Params returns the parameter names the program was compiled with.
func (p *Program) Params() []string {
	return append([]string(nil), p.params...)
}

// Run executes the program. this is the value of the this keyword and args
// bind to the parameters in order; missing arguments are nil. The result is
// the value of the first return statement reached, or nil.
func (p *Program) Run(this any, args ...any) (any, error) {
	root := newScope(nil, true)
	for i, name := range p.params {
		var v any
		if i < len(args) {
			v = normalize(args[i])
		}
		root.vars[name] = &variable{val: v}
	}
	in := &interp{this: normalize(this), max: p.maxIterations}
	for _, s := range p.body {
		c, err := in.exec(s, root)
		if err != nil {
			return nil, err
		}
		if c == ctrlReturn {
			return in.ret, nil
		}
	}
	return nil, nil
}

type variable struct {
	val      any
	constant bool
}

// scope is one frame of name resolution. A with frame additionally resolves
// names against obj; assignments to those names land in vars, leaving obj
// untouched.
type scope struct {
	vars   map[string]*variable
	parent *scope
	fn     bool
	with   any
	isWith bool
}

func newScope(parent *scope, fn bool) *scope {
	return &scope{vars: make(map[string]*variable), parent: parent, fn: fn}
}

func (s *scope) lookup(name string) (any, bool, error) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v.val, true, nil
		}
		if f.isWith && hasProperty(f.with, name) {
			v, err := getProperty(f.with, name)
			return v, true, err
		}
	}
	return nil, false, nil
}

func (s *scope) assign(name string, val any) (bool, error) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			if v.constant {
				return true, fmt.Errorf("%w: assignment to constant %q", ErrType, name)
			}
			v.val = val
			return true, nil
		}
		if f.isWith && hasProperty(f.with, name) {
			f.vars[name] = &variable{val: val}
			return true, nil
		}
	}
	return false, nil
}

func (s *scope) declare(kind declKind, name string, val any) {
	target := s
	if kind == declVar {
		for !target.fn && target.parent != nil {
			target = target.parent
		}
	}
	target.vars[name] = &variable{val: val, constant: kind == declConst}
}

type ctrl int

const (
	ctrlNone ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

type interp struct {
	this       any
	ret        any
	iterations int
	max        int
}

func (in *interp) tick(pos Pos) error {
	in.iterations++
	if in.max > 0 && in.iterations > in.max {
		return runtimeErrorf(pos, ErrIterationLimit, "more than %d iterations", in.max)
	}
	return nil
}

// wrap attaches a position to errors that do not carry one yet.
func wrap(pos Pos, err error) error {
	var re *RuntimeError
	if err == nil || errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Pos: pos, Err: err}
}

func (in *interp) execBlock(body []stmt, sc *scope) (ctrl, error) {
	for _, s := range body {
		c, err := in.exec(s, sc)
		if err != nil || c != ctrlNone {
			return c, err
		}
	}
	return ctrlNone, nil
}

func (in *interp) exec(s stmt, sc *scope) (ctrl, error) {
	switch s := s.(type) {
	case *emptyStmt:
		return ctrlNone, nil
	case *blockStmt:
		return in.execBlock(s.body, newScope(sc, false))
	case *exprStmt:
		_, err := in.eval(s.x, sc)
		return ctrlNone, err
	case *declStmt:
		for _, d := range s.decls {
			var v any
			if d.init != nil {
				var err error
				if v, err = in.eval(d.init, sc); err != nil {
					return ctrlNone, err
				}
			}
			sc.declare(s.kind, d.name, v)
		}
		return ctrlNone, nil
	case *ifStmt:
		cond, err := in.eval(s.cond, sc)
		if err != nil {
			return ctrlNone, err
		}
		if Truthy(cond) {
			return in.exec(s.then, sc)
		}
		if s.els != nil {
			return in.exec(s.els, sc)
		}
		return ctrlNone, nil
	case *whileStmt:
		for {
			cond, err := in.eval(s.cond, sc)
			if err != nil {
				return ctrlNone, err
			}
			if !Truthy(cond) {
				return ctrlNone, nil
			}
			if err := in.tick(s.pos); err != nil {
				return ctrlNone, err
			}
			c, err := in.exec(s.body, sc)
			if err != nil || c == ctrlReturn {
				return c, err
			}
			if c == ctrlBreak {
				return ctrlNone, nil
			}
		}
	case *forStmt:
		loop := newScope(sc, false)
		if s.init != nil {
			if _, err := in.exec(s.init, loop); err != nil {
				return ctrlNone, err
			}
		}
		for {
			if s.cond != nil {
				cond, err := in.eval(s.cond, loop)
				if err != nil {
					return ctrlNone, err
				}
				if !Truthy(cond) {
					return ctrlNone, nil
				}
			}
			if err := in.tick(s.pos); err != nil {
				return ctrlNone, err
			}
			c, err := in.exec(s.body, loop)
			if err != nil || c == ctrlReturn {
				return c, err
			}
			if c == ctrlBreak {
				return ctrlNone, nil
			}
			if s.update != nil {
				if _, err := in.eval(s.update, loop); err != nil {
					return ctrlNone, err
				}
			}
		}
	case *forEachStmt:
		seq, err := in.eval(s.iter, sc)
		if err != nil {
			return ctrlNone, err
		}
		items, err := iterate(seq, s.keys)
		if err != nil {
			return ctrlNone, wrap(s.pos, err)
		}
		for _, item := range items {
			if err := in.tick(s.pos); err != nil {
				return ctrlNone, err
			}
			loop := newScope(sc, false)
			loop.vars[s.name] = &variable{val: item}
			c, err := in.exec(s.body, loop)
			if err != nil || c == ctrlReturn {
				return c, err
			}
			if c == ctrlBreak {
				break
			}
		}
		return ctrlNone, nil
	case *withStmt:
		obj, err := in.eval(s.obj, sc)
		if err != nil {
			return ctrlNone, err
		}
		frame := newScope(sc, false)
		frame.with, frame.isWith = obj, true
		return in.exec(s.body, frame)
	case *returnStmt:
		in.ret = nil
		if s.x != nil {
			v, err := in.eval(s.x, sc)
			if err != nil {
				return ctrlNone, err
			}
			in.ret = v
		}
		return ctrlReturn, nil
	case *breakStmt:
		return ctrlBreak, nil
	case *continueStmt:
		return ctrlContinue, nil
	}
	return ctrlNone, runtimeErrorf(s.position(), ErrType, "unsupported statement %T", s)
}

func (in *interp) eval(e expr, sc *scope) (any, error) {
	switch e := e.(type) {
	case *literal:
		return e.val, nil
	case *ident:
		v, ok, err := sc.lookup(e.name)
		if err != nil {
			return nil, wrap(e.pos, err)
		}
		if !ok {
			return nil, runtimeErrorf(e.pos, ErrUndefined, "%s is not defined", e.name)
		}
		return v, nil
	case *thisExpr:
		return in.this, nil
	case *arrayLit:
		items := make([]any, len(e.elems))
		for i, el := range e.elems {
			v, err := in.eval(el, sc)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return NewArray(items...), nil
	case *objectLit:
		obj := make(map[string]any, len(e.props))
		for _, p := range e.props {
			v, err := in.eval(p.val, sc)
			if err != nil {
				return nil, err
			}
			obj[p.key] = v
		}
		return obj, nil
	case *memberExpr:
		obj, err := in.eval(e.obj, sc)
		if err != nil {
			return nil, err
		}
		key, err := in.memberKey(e, sc)
		if err != nil {
			return nil, err
		}
		v, err := getProperty(obj, key)
		return v, wrap(e.pos, err)
	case *callExpr:
		return in.evalCall(e, sc)
	case *unaryExpr:
		if id, ok := e.x.(*ident); ok && e.op == "typeof" {
			// typeof tolerates unresolved names.
			v, found, err := sc.lookup(id.name)
			if err != nil {
				return nil, wrap(id.pos, err)
			}
			if !found {
				return "undefined", nil
			}
			return typeOf(v), nil
		}
		x, err := in.eval(e.x, sc)
		if err != nil {
			return nil, err
		}
		switch e.op {
		case "!":
			return !Truthy(x), nil
		case "-":
			return -toNumber(x), nil
		case "+":
			return toNumber(x), nil
		case "typeof":
			return typeOf(x), nil
		}
	case *updateExpr:
		old, err := in.eval(e.target, sc)
		if err != nil {
			return nil, err
		}
		n := toNumber(old)
		next := n + 1
		if e.op == "--" {
			next = n - 1
		}
		if err := in.store(e.target, next, sc); err != nil {
			return nil, err
		}
		if e.prefix {
			return next, nil
		}
		return n, nil
	case *binaryExpr:
		left, err := in.eval(e.left, sc)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.right, sc)
		if err != nil {
			return nil, err
		}
		return binary(e.op, left, right), nil
	case *logicalExpr:
		left, err := in.eval(e.left, sc)
		if err != nil {
			return nil, err
		}
		if (e.op == "&&") != Truthy(left) {
			return left, nil
		}
		return in.eval(e.right, sc)
	case *condExpr:
		cond, err := in.eval(e.cond, sc)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return in.eval(e.then, sc)
		}
		return in.eval(e.els, sc)
	case *assignExpr:
		val, err := in.eval(e.value, sc)
		if err != nil {
			return nil, err
		}
		if e.op != "=" {
			old, err := in.eval(e.target, sc)
			if err != nil {
				return nil, err
			}
			val = binary(e.op[:1], old, val)
		}
		return val, in.store(e.target, val, sc)
	}
	return nil, runtimeErrorf(e.position(), ErrType, "unsupported expression %T", e)
}

func (in *interp) memberKey(e *memberExpr, sc *scope) (any, error) {
	if !e.computed {
		return e.name, nil
	}
	return in.eval(e.index, sc)
}

func (in *interp) store(target expr, val any, sc *scope) error {
	switch t := target.(type) {
	case *ident:
		ok, err := sc.assign(t.name, val)
		if err != nil {
			return wrap(t.pos, err)
		}
		if !ok {
			return runtimeErrorf(t.pos, ErrUndefined, "assignment to undeclared variable %s", t.name)
		}
		return nil
	case *memberExpr:
		obj, err := in.eval(t.obj, sc)
		if err != nil {
			return err
		}
		key, err := in.memberKey(t, sc)
		if err != nil {
			return err
		}
		return wrap(t.pos, setProperty(obj, key, val))
	}
	return runtimeErrorf(target.position(), ErrType, "invalid assignment target")
}

func (in *interp) evalCall(e *callExpr, sc *scope) (any, error) {
	fn, err := in.eval(e.callee, sc)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(e.args))
	for i, a := range e.args {
		if args[i], err = in.eval(a, sc); err != nil {
			return nil, err
		}
	}
	v, err := call(fn, args)
	if errors.Is(err, ErrNotCallable) {
		return nil, runtimeErrorf(e.pos, ErrNotCallable, "%s is not a function", describe(e.callee))
	}
	return v, wrap(e.pos, err)
}

func describe(e expr) string {
	switch e := e.(type) {
	case *ident:
		return e.name
	case *memberExpr:
		if !e.computed {
			return describe(e.obj) + "." + e.name
		}
		return describe(e.obj) + "[...]"
	case *thisExpr:
		return "this"
	}
	return "expression"
}

func binary(op string, a, b any) any {
	switch op {
	case "+":
		return add(a, b)
	case "-":
		return toNumber(a) - toNumber(b)
	case "*":
		return toNumber(a) * toNumber(b)
	case "/":
		return toNumber(a) / toNumber(b)
	case "%":
		return math.Mod(toNumber(a), toNumber(b))
	case "==":
		return looseEquals(a, b)
	case "!=":
		return !looseEquals(a, b)
	case "===":
		return strictEquals(a, b)
	case "!==":
		return !strictEquals(a, b)
	case "<", "<=", ">", ">=":
		return compare(op, a, b)
	}
	return nil
}
