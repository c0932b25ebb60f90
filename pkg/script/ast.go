package script

// node is implemented by every statement and expression.
type node interface {
	position() Pos
}

type stmt interface {
	node
	stmtNode()
}

type expr interface {
	node
	exprNode()
}

type declKind int

const (
	declVar declKind = iota
	declLet
	declConst
)

type (
	blockStmt struct {
		pos  Pos
		body []stmt
	}

	declarator struct {
		name string
		init expr // nil when omitted
	}

	declStmt struct {
		pos   Pos
		kind  declKind
		decls []declarator
	}

	exprStmt struct {
		pos Pos
		x   expr
	}

	ifStmt struct {
		pos  Pos
		cond expr
		then stmt
		els  stmt // nil when omitted
	}

	// forEachStmt is for (x of list) and for (k in obj).
	forEachStmt struct {
		pos  Pos
		name string
		keys bool // true for "in"
		iter expr
		body stmt
	}

	forStmt struct {
		pos    Pos
		init   stmt // nil, declStmt or exprStmt
		cond   expr // nil means true
		update expr
		body   stmt
	}

	whileStmt struct {
		pos  Pos
		cond expr
		body stmt
	}

	withStmt struct {
		pos  Pos
		obj  expr
		body stmt
	}

	returnStmt struct {
		pos Pos
		x   expr // nil for a bare return
	}

	breakStmt    struct{ pos Pos }
	continueStmt struct{ pos Pos }
	emptyStmt    struct{ pos Pos }
)

type (
	literal struct {
		pos Pos
		val any
	}

	ident struct {
		pos  Pos
		name string
	}

	thisExpr struct{ pos Pos }

	arrayLit struct {
		pos   Pos
		elems []expr
	}

	objectProp struct {
		key string
		val expr
	}

	objectLit struct {
		pos   Pos
		props []objectProp
	}

	// memberExpr covers both obj.name (computed == false, name set) and
	// obj[index] (computed == true, index set).
	memberExpr struct {
		pos      Pos
		obj      expr
		name     string
		index    expr
		computed bool
	}

	callExpr struct {
		pos    Pos
		callee expr
		args   []expr
	}

	unaryExpr struct {
		pos Pos
		op  string
		x   expr
	}

	// updateExpr is ++ and --, prefix or postfix.
	updateExpr struct {
		pos    Pos
		op     string
		prefix bool
		target expr
	}

	binaryExpr struct {
		pos   Pos
		op    string
		left  expr
		right expr
	}

	logicalExpr struct {
		pos   Pos
		op    string
		left  expr
		right expr
	}

	condExpr struct {
		pos  Pos
		cond expr
		then expr
		els  expr
	}

	assignExpr struct {
		pos    Pos
		op     string
		target expr
		value  expr
	}
)

func (s *blockStmt) position() Pos    { return s.pos }
func (s *declStmt) position() Pos     { return s.pos }
func (s *exprStmt) position() Pos     { return s.pos }
func (s *ifStmt) position() Pos       { return s.pos }
func (s *forEachStmt) position() Pos  { return s.pos }
func (s *forStmt) position() Pos      { return s.pos }
func (s *whileStmt) position() Pos    { return s.pos }
func (s *withStmt) position() Pos     { return s.pos }
func (s *returnStmt) position() Pos   { return s.pos }
func (s *breakStmt) position() Pos    { return s.pos }
func (s *continueStmt) position() Pos { return s.pos }
func (s *emptyStmt) position() Pos    { return s.pos }

func (*blockStmt) stmtNode()    {}
func (*declStmt) stmtNode()     {}
func (*exprStmt) stmtNode()     {}
func (*ifStmt) stmtNode()       {}
func (*forEachStmt) stmtNode()  {}
func (*forStmt) stmtNode()      {}
func (*whileStmt) stmtNode()    {}
func (*withStmt) stmtNode()     {}
func (*returnStmt) stmtNode()   {}
func (*breakStmt) stmtNode()    {}
func (*continueStmt) stmtNode() {}
func (*emptyStmt) stmtNode()    {}

func (e *literal) position() Pos     { return e.pos }
func (e *ident) position() Pos       { return e.pos }
func (e *thisExpr) position() Pos    { return e.pos }
func (e *arrayLit) position() Pos    { return e.pos }
func (e *objectLit) position() Pos   { return e.pos }
func (e *memberExpr) position() Pos  { return e.pos }
func (e *callExpr) position() Pos    { return e.pos }
func (e *unaryExpr) position() Pos   { return e.pos }
func (e *updateExpr) position() Pos  { return e.pos }
func (e *binaryExpr) position() Pos  { return e.pos }
func (e *logicalExpr) position() Pos { return e.pos }
func (e *condExpr) position() Pos    { return e.pos }
func (e *assignExpr) position() Pos  { return e.pos }

func (*literal) exprNode()     {}
func (*ident) exprNode()       {}
func (*thisExpr) exprNode()    {}
func (*arrayLit) exprNode()    {}
func (*objectLit) exprNode()   {}
func (*memberExpr) exprNode()  {}
func (*callExpr) exprNode()    {}
func (*unaryExpr) exprNode()   {}
func (*updateExpr) exprNode()  {}
func (*binaryExpr) exprNode()  {}
func (*logicalExpr) exprNode() {}
func (*condExpr) exprNode()    {}
func (*assignExpr) exprNode()  {}
