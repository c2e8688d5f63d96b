// Package lower implements the IR-to-command lowering of spec section 4.4:
// it orders the subgraph reachable from every export and trace root into a
// linear program of EvaluateShape, EvaluateArray, Trace, Collect, and
// Export commands suitable for internal/eval to execute.
//
// Grounded on original_source/src/dtl-cmd.hpp's five command kinds and on
// sentra/internal/bytecode/chunk.go's append-with-debug-info idiom for
// building an instruction slice incrementally.
package lower

import (
	"github.com/google/uuid"

	"dtl/internal/ir"
	"dtl/internal/schema"
	"dtl/internal/translate"
)

// Command is one step of the linear program the evaluator executes.
type Command interface {
	isCommand()
}

// EvaluateShape computes and binds the length of a shape expression.
type EvaluateShape struct{ Shape ir.Expr }

func (EvaluateShape) isCommand() {}

// EvaluateArray computes and binds the values of an array expression.
type EvaluateArray struct{ Expr ir.Expr }

func (EvaluateArray) isCommand() {}

// Trace hands an expression's current value to the Tracer under a fresh
// UUID, one per (trace snapshot, column) pair (spec section 4.4 step 4).
type Trace struct {
	ArrayUUID uuid.UUID
	Expr      ir.Expr
}

func (Trace) isCommand() {}

// Collect releases an intermediate expression's materialized value once
// every consumer that needed it has run (spec section 4.4 step 5). Every
// non-root expression is collected exactly once.
type Collect struct{ Expr ir.Expr }

func (Collect) isCommand() {}

// Export assembles a schema and column values and hands them to the
// Exporter, in the order EXPORT statements were encountered.
type Export struct {
	Name    string
	Schema  schema.Schema
	Columns []ir.Expr
}

func (Export) isCommand() {}

// Program is the linear command list an evaluator executes in order.
type Program struct {
	Commands []Command
	// TraceManifest associates each Trace command's UUID with the trace
	// snapshot and column index it belongs to, so a Tracer can build its
	// record_trace calls (spec section 6, Tracer interface) without
	// re-deriving that mapping from the command stream.
	TraceManifest []TraceEntry
}

// TraceEntry names which trace snapshot and column a Trace command's UUID
// corresponds to.
type TraceEntry struct {
	SnapshotIndex int
	ColumnIndex   int
	UUID          uuid.UUID
}

// Lower orders prog's reachable subgraph and emits the command program
// that evaluates it, per spec section 4.4.
func Lower(g *ir.Graph, prog *translate.Program) *Program {
	l := &lowering{
		graph:      g,
		shapeSeen:  make(map[ir.Expr]bool),
		arraySeen:  make(map[ir.Expr]bool),
		collected:  make(map[ir.Expr]bool),
		refCount:   make(map[ir.Expr]int),
		satisfied:  make(map[ir.Expr]int),
		isRoot:     make(map[ir.Expr]bool),
	}

	// Step 1: collect roots (every expression an export or trace column
	// names directly) and count references to every reachable expression
	// so intermediate (non-root) values can be Collected once their last
	// consumer has run.
	var roots []ir.Expr
	for _, exp := range prog.Exports {
		for _, e := range exp.Columns {
			roots = append(roots, e)
			l.isRoot[e] = true
		}
	}
	for _, tr := range prog.Traces {
		for _, e := range tr.Columns {
			roots = append(roots, e)
			l.isRoot[e] = true
		}
	}
	l.countRefs(roots)

	// Step 2/3: emit shapes and arrays in dependency order (post-order
	// over each root), value-numbering in the graph guarantees each
	// expression is visited, and therefore emitted, once.
	for _, r := range roots {
		l.emit(r)
	}

	// Step 4: Trace commands, one per (trace snapshot, column) pair.
	for si, tr := range prog.Traces {
		for ci, e := range tr.Columns {
			u := uuid.New()
			l.out = append(l.out, Trace{ArrayUUID: u, Expr: e})
			l.manifest = append(l.manifest, TraceEntry{SnapshotIndex: si, ColumnIndex: ci, UUID: u})
			l.noteConsumed(e)
		}
	}

	// Step 6: Export commands in encounter order.
	for _, exp := range prog.Exports {
		l.out = append(l.out, Export{Name: exp.Name, Schema: exp.Schema, Columns: exp.Columns})
		for _, e := range exp.Columns {
			l.noteConsumed(e)
		}
	}

	return &Program{Commands: l.out, TraceManifest: l.manifest}
}

type lowering struct {
	graph *ir.Graph

	shapeSeen map[ir.Expr]bool
	arraySeen map[ir.Expr]bool
	collected map[ir.Expr]bool
	isRoot    map[ir.Expr]bool

	// refCount/satisfied implement "collect after every consumer has run"
	// (spec section 4.4 step 5): refCount is how many times e appears as
	// a dependency of some other reachable expression or root; satisfied
	// counts how many of those have executed so far.
	refCount  map[ir.Expr]int
	satisfied map[ir.Expr]int

	out      []Command
	manifest []TraceEntry
}

// countRefs walks the subgraph reachable from roots with a single shared
// visited set, incrementing refCount for every expression exactly once per
// distinct dependency edge in the reachable subgraph — matching emit's own
// arraySeen/shapeSeen dedup, since an expression shared by two roots must
// still only see its dependencies marked consumed once each, not once per
// root that happens to reach it.
func (l *lowering) countRefs(roots []ir.Expr) {
	visited := make(map[ir.Expr]bool)
	var walk func(e ir.Expr)
	walk = func(e ir.Expr) {
		if visited[e] {
			return
		}
		visited[e] = true
		for _, dep := range l.graph.Dependencies(e) {
			l.refCount[dep]++
			walk(dep)
		}
	}
	for _, r := range roots {
		walk(r)
	}
}

// emit walks e's dependencies post-order, emitting EvaluateShape or
// EvaluateArray for every reachable expression exactly once before e
// itself, then emits e's own command and runs noteConsumed for its
// dependencies.
func (l *lowering) emit(e ir.Expr) {
	if l.graph.IsTableExpr(e) {
		// Table handles have no evaluation command of their own; they are
		// only ever a dependency of an ImportShape/ReadColumn.
		return
	}
	if l.graph.IsShapeExpr(e) {
		if l.shapeSeen[e] {
			return
		}
		l.shapeSeen[e] = true
		for _, dep := range l.graph.Dependencies(e) {
			l.emit(dep)
		}
		l.out = append(l.out, EvaluateShape{Shape: e})
		for _, dep := range l.graph.Dependencies(e) {
			l.noteConsumed(dep)
		}
		return
	}
	if l.arraySeen[e] {
		return
	}
	l.arraySeen[e] = true
	for _, dep := range l.graph.Dependencies(e) {
		l.emit(dep)
	}
	l.out = append(l.out, EvaluateArray{Expr: e})
	for _, dep := range l.graph.Dependencies(e) {
		l.noteConsumed(dep)
	}
}

// noteConsumed records that one of e's consumers has finished running; once
// every reference to e has been consumed and e is not itself a root (still
// needed by an Export/Trace command later), its value is released.
func (l *lowering) noteConsumed(e ir.Expr) {
	if l.collected[e] || l.isRoot[e] || l.graph.IsShapeExpr(e) || l.graph.IsTableExpr(e) {
		return
	}
	l.satisfied[e]++
	if l.satisfied[e] >= l.refCount[e] {
		l.collected[e] = true
		l.out = append(l.out, Collect{Expr: e})
	}
}
