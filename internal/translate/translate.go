// Package translate implements the AST-to-IR translator of spec section
// 4.3: it walks a parsed script, resolving scoped column namespaces,
// validating dtype/shape conformance, synthesizing join index arrays, and
// recording trace snapshots, to produce a Program of export records and
// trace snapshots ready for command lowering (internal/lower).
//
// Grounded on sentra/internal/compiler/compiler.go and stmt_compiler.go's
// visitor-turned-switch dispatch from AST to an accumulating target
// structure, and on dtl-ast-to-ir.c's recursive shape (scope threading
// through FROM/JOIN/WHERE/column-binding compilation).
package translate

import (
	"fmt"

	"github.com/pkg/errors"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
	"dtl/internal/parser"
	"dtl/internal/schema"
	"dtl/internal/scope"
)

// SchemaProvider is the subset of the Importer interface (spec section 6)
// the translator needs: schema lookup for an IMPORT's path. The full
// Importer (internal/dtio) also knows how to open a table for the
// evaluator, but that capability belongs to internal/eval, not to
// compile-time translation.
type SchemaProvider interface {
	Schema(path string) (schema.Schema, error)
}

// ExportRecord is one `EXPORT ... TO ...` statement's compiled result. A
// later EXPORT to the same path replaces the earlier record in place
// (spec section 3, "Export record" lifecycle).
type ExportRecord struct {
	Name    string
	Schema  schema.Schema
	Columns []ir.Expr
}

// TraceSnapshot is a recorded mapping from a source span to a scope's
// columns, spec section 3's "Trace snapshot" lifecycle object.
type TraceSnapshot struct {
	Span    dtlerr.Span
	Schema  schema.Schema
	Columns []ir.Expr
}

// Program is the translator's output: every export and every trace
// snapshot recorded during translation, per spec section 4.3's
// `translate(script_ast, importer) -> Program`.
type Program struct {
	Exports []ExportRecord
	Traces  []TraceSnapshot
}

// DiscoverImports walks prog in source order and returns the path of every
// IMPORT literal encountered, each listed once, in the order its first
// occurrence appears in the source text — independent of which imports are
// later referenced by an export (spec section 8, testable property 7).
func DiscoverImports(prog *parser.Program) []string {
	var order []string
	seen := make(map[string]struct{})
	var walkTable func(parser.TableExpr)
	record := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		order = append(order, path)
	}
	walkTable = func(te parser.TableExpr) {
		switch t := te.(type) {
		case *parser.ImportExpr:
			record(t.Path.Value)
		case *parser.SelectExpr:
			walkTable(t.From.Table)
			for _, j := range t.Joins {
				walkTable(j.Table.Table)
			}
		case *parser.TableRefExpr:
			// Not an import site; the table it names was discovered at
			// the statement that imported or built it.
		}
	}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *parser.AssignStmt:
			walkTable(s.Table)
		case *parser.ExportStmt:
			walkTable(s.Table)
		}
	}
	return order
}

// context carries everything the recursive translation needs threaded
// through it: the graph, the importer, and the accumulating globals scope
// and Program, per spec section 4.3's "Translation context".
type context struct {
	graph    *ir.Graph
	importer SchemaProvider
	globals  scope.Scope
	program  *Program
	exportAt map[string]int
}

// Translate walks prog and builds a Program of exports and trace
// snapshots. It returns the first error encountered; per spec section 7
// there is no error recovery or multi-error reporting.
func Translate(prog *parser.Program, importer SchemaProvider, g *ir.Graph) (*Program, error) {
	ctx := &context{
		graph:    g,
		importer: importer,
		globals:  scope.Empty(),
		program:  &Program{},
		exportAt: make(map[string]int),
	}
	for _, stmt := range prog.Statements {
		if err := ctx.translateStmt(stmt); err != nil {
			return nil, err
		}
	}
	return ctx.program, nil
}

// CollectGarbage runs the graph's mark-and-compact collector with roots
// equal to every export column plus every trace column (spec section 5,
// "GC is invoked at most once per compilation phase, between translation
// and lowering"), then returns a Program with every Expr remapped to its
// post-collection value.
func CollectGarbage(g *ir.Graph, prog *Program) *Program {
	for _, exp := range prog.Exports {
		for _, e := range exp.Columns {
			g.MarkRoot(e)
		}
	}
	for _, tr := range prog.Traces {
		for _, e := range tr.Columns {
			g.MarkRoot(e)
		}
	}
	g.Collect()

	out := &Program{
		Exports: make([]ExportRecord, len(prog.Exports)),
		Traces:  make([]TraceSnapshot, len(prog.Traces)),
	}
	for i, exp := range prog.Exports {
		remapped := make([]ir.Expr, len(exp.Columns))
		for j, e := range exp.Columns {
			remapped[j] = g.Remap(e)
		}
		out.Exports[i] = ExportRecord{Name: exp.Name, Schema: exp.Schema, Columns: remapped}
	}
	for i, tr := range prog.Traces {
		remapped := make([]ir.Expr, len(tr.Columns))
		for j, e := range tr.Columns {
			remapped[j] = g.Remap(e)
		}
		out.Traces[i] = TraceSnapshot{Span: tr.Span, Schema: tr.Schema, Columns: remapped}
	}
	return out
}

func (ctx *context) translateStmt(stmt parser.Stmt) error {
	switch s := stmt.(type) {
	case *parser.AssignStmt:
		return ctx.translateAssign(s)
	case *parser.ExportStmt:
		return ctx.translateExport(s)
	case *parser.UnsupportedStmt:
		return &dtlerr.Error{
			Kind:    dtlerr.NotImplemented,
			Message: fmt.Sprintf("%s statements are not implemented", s.Keyword),
			Span:    s.Sp,
		}
	default:
		panic(fmt.Sprintf("translate: unknown statement type %T", stmt))
	}
}

func (ctx *context) translateAssign(s *parser.AssignStmt) error {
	sc, err := ctx.compileTableExpr(s.Table)
	if err != nil {
		return err
	}
	stripped := sc.Requalify("")
	if err := ctx.trace(s.Sp, stripped); err != nil {
		return err
	}

	ctx.globals = ctx.globals.FilterByNamespace(s.Name)
	for _, e := range stripped.Entries() {
		ctx.globals = ctx.globals.AddUnchecked(e.Name, s.Name, e.Expr)
	}
	return nil
}

func (ctx *context) translateExport(s *parser.ExportStmt) error {
	sc, err := ctx.compileTableExpr(s.Table)
	if err != nil {
		return err
	}
	stripped := sc.Requalify("")
	if err := ctx.trace(s.Sp, stripped); err != nil {
		return err
	}

	sch, cols, err := ctx.buildSchema(stripped)
	if err != nil {
		return err
	}
	record := ExportRecord{Name: s.Path.Value, Schema: sch, Columns: cols}
	if idx, ok := ctx.exportAt[s.Path.Value]; ok {
		ctx.program.Exports[idx] = record
		return nil
	}
	ctx.exportAt[s.Path.Value] = len(ctx.program.Exports)
	ctx.program.Exports = append(ctx.program.Exports, record)
	return nil
}

// buildSchema derives a Schema from sc's bindings, in binding order, along
// with their expression references.
func (ctx *context) buildSchema(sc scope.Scope) (schema.Schema, []ir.Expr, error) {
	entries := sc.Entries()
	cols := make([]schema.Column, len(entries))
	exprs := make([]ir.Expr, len(entries))
	for i, e := range entries {
		cols[i] = schema.Column{Name: e.Name, DType: ir.ScalarOf(ctx.graph.DTypeOf(e.Expr))}
		exprs[i] = e.Expr
	}
	sch, err := schema.New(cols...)
	if err != nil {
		return schema.Schema{}, nil, err
	}
	return sch, exprs, nil
}

// trace records a TraceSnapshot for sc at span, per spec section 3 ("Trace
// snapshot... outlives the translator").
func (ctx *context) trace(span dtlerr.Span, sc scope.Scope) error {
	sch, cols, err := ctx.buildSchema(sc)
	if err != nil {
		return err
	}
	ctx.program.Traces = append(ctx.program.Traces, TraceSnapshot{Span: span, Schema: sch, Columns: cols})
	return nil
}

// --- table expressions (spec section 4.3.1) ---

func (ctx *context) compileTableExpr(te parser.TableExpr) (scope.Scope, error) {
	switch t := te.(type) {
	case *parser.ImportExpr:
		return ctx.compileImport(t)
	case *parser.TableRefExpr:
		return ctx.compileTableRef(t)
	case *parser.SelectExpr:
		return ctx.compileSelect(t)
	default:
		panic(fmt.Sprintf("translate: unknown table expression type %T", te))
	}
}

func (ctx *context) compileImport(t *parser.ImportExpr) (scope.Scope, error) {
	sch, err := ctx.importer.Schema(t.Path.Value)
	if err != nil {
		return scope.Scope{}, errors.Wrap(&dtlerr.Error{
			Kind:    dtlerr.Import,
			Message: fmt.Sprintf("importing %q: %v", t.Path.Value, err),
			Span:    t.Path.Sp,
		}, "schema lookup failed")
	}

	pathRef, err := ctx.graph.Intern(t.Path.Value)
	if err != nil {
		return scope.Scope{}, err
	}
	table, err := ctx.graph.CreateOpenTable(pathRef)
	if err != nil {
		return scope.Scope{}, err
	}
	shape, err := ctx.graph.CreateImportShape(table)
	if err != nil {
		return scope.Scope{}, err
	}

	sc := scope.Empty().WithShape(shape)
	for _, col := range sch.Columns() {
		nameRef, err := ctx.graph.Intern(col.Name)
		if err != nil {
			return scope.Scope{}, err
		}
		colExpr, err := ctx.graph.CreateReadColumn(table, nameRef, col.DType, shape)
		if err != nil {
			return scope.Scope{}, err
		}
		sc = sc.AddOrReplace(col.Name, "", colExpr)
	}
	if err := ctx.trace(t.Sp, sc); err != nil {
		return scope.Scope{}, err
	}
	return sc, nil
}

func (ctx *context) compileTableRef(t *parser.TableRefExpr) (scope.Scope, error) {
	sc := ctx.globals.PickNamespace(t.Name)
	entries := sc.Entries()
	if len(entries) == 0 {
		return scope.Scope{}, &dtlerr.Error{
			Kind:    dtlerr.UnresolvedTbl,
			Message: fmt.Sprintf("no table named %q", t.Name),
			Span:    t.Sp,
		}
	}
	sc = sc.WithShape(ctx.graph.ShapeOf(entries[0].Expr))
	if err := ctx.trace(t.Sp, sc); err != nil {
		return scope.Scope{}, err
	}
	return sc, nil
}

// compileTableBinding compiles a table binding, re-qualifying its columns
// under the binding's alias (or, lacking one, the bare table name it
// refers to) so JOIN/WHERE/ON clauses can resolve `alias.column` (spec
// section 4.3.2).
func (ctx *context) compileTableBinding(tb parser.TableBinding) (scope.Scope, error) {
	sc, err := ctx.compileTableExpr(tb.Table)
	if err != nil {
		return scope.Scope{}, err
	}
	name := tb.Alias
	if name == "" {
		if ref, ok := tb.Table.(*parser.TableRefExpr); ok {
			name = ref.Name
		}
	}
	if name != "" {
		sc = sc.Requalify(name)
	}
	return sc, nil
}

func (ctx *context) compileSelect(se *parser.SelectExpr) (scope.Scope, error) {
	current, err := ctx.compileTableBinding(se.From)
	if err != nil {
		return scope.Scope{}, err
	}
	for _, j := range se.Joins {
		current, err = ctx.compileJoin(current, j)
		if err != nil {
			return scope.Scope{}, err
		}
	}

	if se.Where != nil {
		mask, err := ctx.compileExpr(current, se.Where)
		if err != nil {
			return scope.Scope{}, err
		}
		if ctx.graph.DTypeOf(mask) != ir.BoolArray {
			return scope.Scope{}, &dtlerr.Error{
				Kind:    dtlerr.TypeMismatch,
				Message: "WHERE predicate must be a boolean array",
				Span:    se.Where.Span(),
			}
		}
		if ctx.graph.ShapeOf(mask) != current.Shape() {
			return scope.Scope{}, &dtlerr.Error{
				Kind:    dtlerr.ShapeMismatch,
				Message: "WHERE predicate must share its source table's shape",
				Span:    se.Where.Span(),
			}
		}
		newShape, err := ctx.graph.CreateWhereShape(mask)
		if err != nil {
			return scope.Scope{}, err
		}
		rewritten := scope.Empty().WithShape(newShape)
		for _, e := range current.Entries() {
			newCol, err := ctx.graph.CreateWhere(newShape, e.Expr, mask)
			if err != nil {
				return scope.Scope{}, err
			}
			rewritten = rewritten.AddUnchecked(e.Name, e.Namespace, newCol)
		}
		current = rewritten
	}

	if se.GroupBy != nil {
		return scope.Scope{}, &dtlerr.Error{
			Kind:    dtlerr.NotImplemented,
			Message: "GROUP BY is not implemented",
			Span:    se.GroupBy.Sp,
		}
	}

	output := scope.Empty().WithShape(current.Shape())
	for _, cb := range se.Columns {
		if cb.Wildcard {
			return scope.Scope{}, &dtlerr.Error{
				Kind:    dtlerr.NotImplemented,
				Message: "wildcard column bindings are not implemented",
				Span:    cb.Sp,
			}
		}
		val, err := ctx.compileExpr(current, cb.Expr)
		if err != nil {
			return scope.Scope{}, err
		}
		name := cb.Alias
		if name == "" {
			ref, ok := cb.Expr.(*parser.ColumnRefExpr)
			if !ok {
				return scope.Scope{}, &dtlerr.Error{
					Kind:    dtlerr.AmbiguousName,
					Message: "cannot derive a column name for this expression; add an AS alias",
					Span:    cb.Expr.Span(),
				}
			}
			name = ref.Name
		}
		output = output.AddOrReplace(name, "", val)
	}

	if err := ctx.trace(se.Sp, output); err != nil {
		return scope.Scope{}, err
	}
	return output, nil
}

// --- joins (spec section 4.3.2) ---

func (ctx *context) compileJoin(left scope.Scope, j parser.JoinClause) (scope.Scope, error) {
	right, err := ctx.compileTableBinding(j.Table)
	if err != nil {
		return scope.Scope{}, err
	}

	js, err := ctx.graph.CreateJoinShape(left.Shape(), right.Shape())
	if err != nil {
		return scope.Scope{}, err
	}
	jl, err := ctx.graph.CreateJoinLeft(js)
	if err != nil {
		return scope.Scope{}, err
	}
	jr, err := ctx.graph.CreateJoinRight(js)
	if err != nil {
		return scope.Scope{}, err
	}

	full := scope.Empty().WithShape(js)
	for _, e := range left.Entries() {
		picked, err := ctx.graph.CreatePick(js, e.Expr, jl)
		if err != nil {
			return scope.Scope{}, err
		}
		full = full.AddUnchecked(e.Name, e.Namespace, picked)
	}
	for _, e := range right.Entries() {
		picked, err := ctx.graph.CreatePick(js, e.Expr, jr)
		if err != nil {
			return scope.Scope{}, err
		}
		full = full.AddUnchecked(e.Name, e.Namespace, picked)
	}

	var mask ir.Expr
	switch {
	case j.On != nil:
		mask, err = ctx.compileExpr(full, j.On)
		if err != nil {
			return scope.Scope{}, err
		}
	case len(j.Using) == 1:
		mask, err = ctx.compileUsing(left, right, js, jl, jr, j.Using[0], j.Sp)
		if err != nil {
			return scope.Scope{}, err
		}
	case len(j.Using) > 1:
		return scope.Scope{}, &dtlerr.Error{
			Kind:    dtlerr.NotImplemented,
			Message: "USING with more than one column is not implemented (the IR has no logical-AND expression)",
			Span:    j.Sp,
		}
	default:
		// Unconstrained form: the full cross product is the result.
		return full, nil
	}

	if ctx.graph.DTypeOf(mask) != ir.BoolArray {
		return scope.Scope{}, &dtlerr.Error{Kind: dtlerr.TypeMismatch, Message: "join predicate must be a boolean array", Span: j.Sp}
	}
	if ctx.graph.ShapeOf(mask) != js {
		return scope.Scope{}, &dtlerr.Error{Kind: dtlerr.ShapeMismatch, Message: "join predicate must share the join's cross-product shape", Span: j.Sp}
	}

	filteredShape, err := ctx.graph.CreateWhereShape(mask)
	if err != nil {
		return scope.Scope{}, err
	}
	leftIdx, err := ctx.graph.CreateWhere(filteredShape, jl, mask)
	if err != nil {
		return scope.Scope{}, err
	}
	rightIdx, err := ctx.graph.CreateWhere(filteredShape, jr, mask)
	if err != nil {
		return scope.Scope{}, err
	}

	result := scope.Empty().WithShape(filteredShape)
	for _, e := range left.Entries() {
		picked, err := ctx.graph.CreatePick(filteredShape, e.Expr, leftIdx)
		if err != nil {
			return scope.Scope{}, err
		}
		result = result.AddUnchecked(e.Name, e.Namespace, picked)
	}
	for _, e := range right.Entries() {
		picked, err := ctx.graph.CreatePick(filteredShape, e.Expr, rightIdx)
		if err != nil {
			return scope.Scope{}, err
		}
		result = result.AddUnchecked(e.Name, e.Namespace, picked)
	}
	return result, nil
}

func (ctx *context) compileUsing(left, right scope.Scope, js, jl, jr ir.Expr, name string, sp dtlerr.Span) (ir.Expr, error) {
	leftCol, err := lookupUnqualified(left, name)
	if err != nil {
		return ir.InvalidExpr, &dtlerr.Error{Kind: dtlerr.UnresolvedCol, Message: fmt.Sprintf("USING column %q not found on the left side of the join", name), Span: sp}
	}
	rightCol, err := lookupUnqualified(right, name)
	if err != nil {
		return ir.InvalidExpr, &dtlerr.Error{Kind: dtlerr.UnresolvedCol, Message: fmt.Sprintf("USING column %q not found on the right side of the join", name), Span: sp}
	}
	lp, err := ctx.graph.CreatePick(js, leftCol, jl)
	if err != nil {
		return ir.InvalidExpr, err
	}
	rp, err := ctx.graph.CreatePick(js, rightCol, jr)
	if err != nil {
		return ir.InvalidExpr, err
	}
	if ctx.graph.DTypeOf(lp) != ctx.graph.DTypeOf(rp) {
		return ir.InvalidExpr, &dtlerr.Error{Kind: dtlerr.TypeMismatch, Message: fmt.Sprintf("USING column %q has different types on each side of the join", name), Span: sp}
	}
	return ctx.graph.CreateEqualTo(js, lp, rp)
}

func lookupUnqualified(sc scope.Scope, name string) (ir.Expr, error) {
	for _, e := range sc.Entries() {
		if e.Name == name {
			return e.Expr, nil
		}
	}
	return ir.InvalidExpr, fmt.Errorf("no column %q", name)
}

// --- expressions (spec section 4.3.3) ---

func (ctx *context) compileExpr(sc scope.Scope, e parser.Expr) (ir.Expr, error) {
	switch ex := e.(type) {
	case *parser.ColumnRefExpr:
		ref, err := sc.Lookup(ex.Name, ex.Table)
		if err != nil {
			if derr, ok := err.(*dtlerr.Error); ok {
				return ir.InvalidExpr, derr.Narrow(ex.Sp)
			}
			return ir.InvalidExpr, err
		}
		return ref, nil

	case *parser.BinaryExpr:
		left, err := ctx.compileExpr(sc, ex.Left)
		if err != nil {
			return ir.InvalidExpr, err
		}
		right, err := ctx.compileExpr(sc, ex.Right)
		if err != nil {
			return ir.InvalidExpr, err
		}
		if ctx.graph.DTypeOf(left) != ctx.graph.DTypeOf(right) {
			return ir.InvalidExpr, &dtlerr.Error{
				Kind:    dtlerr.TypeMismatch,
				Message: fmt.Sprintf("operands of %q must share a dtype, got %s and %s", ex.Op, ctx.graph.DTypeOf(left), ctx.graph.DTypeOf(right)),
				Span:    ex.Sp,
			}
		}
		if ctx.graph.ShapeOf(left) != ctx.graph.ShapeOf(right) {
			return ir.InvalidExpr, &dtlerr.Error{
				Kind:    dtlerr.ShapeMismatch,
				Message: fmt.Sprintf("operands of %q must share a shape", ex.Op),
				Span:    ex.Sp,
			}
		}
		shape := ctx.graph.ShapeOf(left)
		var result ir.Expr
		switch ex.Op {
		case "=":
			result, err = ctx.graph.CreateEqualTo(shape, left, right)
		case "<":
			result, err = ctx.graph.CreateLessThan(shape, left, right)
		case "<=":
			result, err = ctx.graph.CreateLessEq(shape, left, right)
		case ">":
			result, err = ctx.graph.CreateGreaterThan(shape, left, right)
		case ">=":
			result, err = ctx.graph.CreateGreaterEq(shape, left, right)
		case "+":
			result, err = ctx.graph.CreateAdd(shape, left, right)
		case "-":
			result, err = ctx.graph.CreateSubtract(shape, left, right)
		case "*":
			result, err = ctx.graph.CreateMultiply(shape, left, right)
		case "/":
			result, err = ctx.graph.CreateDivide(shape, left, right)
		default:
			return ir.InvalidExpr, &dtlerr.Error{
				Kind:    dtlerr.NotImplemented,
				Message: fmt.Sprintf("operator %q has no IR equivalent", ex.Op),
				Span:    ex.Sp,
			}
		}
		return result, err

	case *parser.IntLit, *parser.StringLit:
		return ir.InvalidExpr, &dtlerr.Error{
			Kind:    dtlerr.NotImplemented,
			Message: "literal expressions are not implemented",
			Span:    e.Span(),
		}

	case *parser.CallExpr:
		return ir.InvalidExpr, &dtlerr.Error{
			Kind:    dtlerr.NotImplemented,
			Message: fmt.Sprintf("function calls (%q) are not implemented", ex.Name),
			Span:    e.Span(),
		}

	default:
		panic(fmt.Sprintf("translate: unknown expression type %T", e))
	}
}
