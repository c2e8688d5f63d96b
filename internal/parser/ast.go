// Package parser turns a DTL token stream into an abstract syntax tree, per
// the informal grammar in spec section 6. It is a concrete instance of the
// "lexer/parser producing the AST" collaborator spec section 1 places out
// of the compiler core's contract, grounded on sentra's hand-written
// recursive-descent parser but dispatching by Go type switch instead of an
// Accept(visitor) hierarchy (spec section 9's own design note).
package parser

import "dtl/internal/dtlerr"

// Program is a parsed script: a sequence of statements in source order.
type Program struct {
	Statements []Stmt
}

// Stmt is any top-level statement.
type Stmt interface {
	Span() dtlerr.Span
}

// AssignStmt binds the result of a table expression to a name, per spec
// section 4.3.4.
type AssignStmt struct {
	Name  string
	Table TableExpr
	Sp    dtlerr.Span
}

func (s *AssignStmt) Span() dtlerr.Span { return s.Sp }

// ExportStmt writes a table expression's result to a named output, per
// spec section 4.3.4.
type ExportStmt struct {
	Table TableExpr
	Path  StringLit
	Sp    dtlerr.Span
}

func (s *ExportStmt) Span() dtlerr.Span { return s.Sp }

// UnsupportedStmt is one of the statement forms spec section 6's grammar
// declares but section 4.3.4 leaves untranslated (UPDATE, DELETE, INSERT,
// BEGIN). The parser accepts them syntactically; the translator rejects
// them with NotImplemented.
type UnsupportedStmt struct {
	Keyword string
	Sp      dtlerr.Span
}

func (s *UnsupportedStmt) Span() dtlerr.Span { return s.Sp }

// TableExpr is any expression producing a table (a scope of columns).
type TableExpr interface {
	Span() dtlerr.Span
}

// ImportExpr names an external table to load, per spec section 4.3.1.
type ImportExpr struct {
	Path StringLit
	Sp   dtlerr.Span
}

func (e *ImportExpr) Span() dtlerr.Span { return e.Sp }

// TableRefExpr references a previously assigned table by name.
type TableRefExpr struct {
	Name string
	Sp   dtlerr.Span
}

func (e *TableRefExpr) Span() dtlerr.Span { return e.Sp }

// SelectExpr is a SELECT/FROM/JOIN/WHERE/GROUP BY pipeline, per spec
// section 4.3.1.
type SelectExpr struct {
	Columns []ColumnBinding
	From    TableBinding
	Joins   []JoinClause
	Where   Expr // nil if absent
	GroupBy *GroupByClause // nil if absent
	Sp      dtlerr.Span
}

func (e *SelectExpr) Span() dtlerr.Span { return e.Sp }

// TableBinding is a table expression optionally aliased by AS, used in
// FROM and JOIN clauses.
type TableBinding struct {
	Table TableExpr
	Alias string // "" if absent
}

// ColumnBinding is one item of a SELECT's column list: a wildcard, a bare
// expression, or an expression aliased by AS.
type ColumnBinding struct {
	Wildcard bool
	Expr     Expr   // nil if Wildcard
	Alias    string // "" if no AS given
	Sp       dtlerr.Span
}

// JoinClause is one JOIN of a SELECT's FROM clause, per spec section 4.3.2.
type JoinClause struct {
	Table TableBinding
	On    Expr     // nil if absent
	Using []string // nil if absent
	Sp    dtlerr.Span
}

// GroupByClause is parsed but has no translation rule (spec section 9):
// any occurrence fails translation with NotImplemented.
type GroupByClause struct {
	Consecutive bool
	Exprs       []Expr
	Sp          dtlerr.Span
}

// Expr is any scalar/array-valued expression.
type Expr interface {
	Span() dtlerr.Span
}

// ColumnRefExpr is `[<table>.]<col>`, per spec section 4.3.3.
type ColumnRefExpr struct {
	Table string // "" if unqualified
	Name  string
	Sp    dtlerr.Span
}

func (e *ColumnRefExpr) Span() dtlerr.Span { return e.Sp }

// BinaryExpr is an arithmetic or comparison operator application.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Sp    dtlerr.Span
}

func (e *BinaryExpr) Span() dtlerr.Span { return e.Sp }

// IntLit is an integer literal. Declared syntax, but left NotImplemented by
// the translator (spec section 4.3.3).
type IntLit struct {
	Value int64
	Sp    dtlerr.Span
}

func (e *IntLit) Span() dtlerr.Span { return e.Sp }

// StringLit is a single-quoted string literal, used both as an expression
// (NotImplemented) and as the literal operand of IMPORT/EXPORT TO.
type StringLit struct {
	Value string
	Sp    dtlerr.Span
}

func (e *StringLit) Span() dtlerr.Span { return e.Sp }

// CallExpr is a function call. Declared syntax, but left NotImplemented by
// the translator (spec section 4.3.3).
type CallExpr struct {
	Name string
	Args []Expr
	Sp   dtlerr.Span
}

func (e *CallExpr) Span() dtlerr.Span { return e.Sp }
