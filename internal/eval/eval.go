// Package eval implements the Evaluator Facade of spec section 4.5: a
// single-threaded interpreter over the command program internal/lower
// produces. It maintains the two bindings the spec names directly
// (shape_lengths, array_values) plus whatever I/O collaborators the run was
// given, and dispatches each command to a kernel implementing the operator
// semantics of spec section 3.
//
// Grounded on sentra/internal/vm/vm.go's central dispatch loop (switch on
// opcode, one case per instruction); the teacher's VM itself — its stack,
// frames, closures, opcode set — has no DTL analogue and is not reused
// beyond that dispatch shape.
package eval

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
	"dtl/internal/lower"
	"dtl/internal/schema"
	"dtl/internal/translate"
)

// Array is one column's materialized values: a BoolArray, Int64Array,
// DoubleArray, StringArray, or IndexArray. Kernels type-assert to the
// concrete slice type their operator expects.
type Array interface{}

type BoolArray []bool
type Int64Array []int64
type DoubleArray []float64
type StringArray []string

// IndexArray holds row positions (JoinLeft/JoinRight selectors, Index
// sort-permutations, Pick gather lists).
type IndexArray []int64

// Len returns the element count of a, panicking if a is not one of the
// concrete array types this package defines.
func Len(a Array) int {
	switch v := a.(type) {
	case BoolArray:
		return len(v)
	case Int64Array:
		return len(v)
	case DoubleArray:
		return len(v)
	case StringArray:
		return len(v)
	case IndexArray:
		return len(v)
	default:
		panic(fmt.Sprintf("eval: not an array value: %T", a))
	}
}

// TableHandle produces a table's column data on demand for the evaluator,
// the second half of the Importer interface of spec section 6 ("open(path)
// -> TableHandle producing column data on demand for the evaluator").
type TableHandle interface {
	Len() int
	Column(name string) (Array, error)
}

// Importer is the compiler's I/O collaborator for IMPORT, spec section 6.
// SchemaProvider is the subset translate.Program already consumes at
// compile time; Open is the evaluator's own half.
type Importer interface {
	translate.SchemaProvider
	Open(path string) (TableHandle, error)
}

// Exporter hands a completed table to the outside world, spec section 6:
// "export(path, Schema, columns)".
type Exporter interface {
	Export(name string, sch schema.Schema, columns []Array) error
}

// Tracer records compile-time and run-time provenance, spec section 6. A
// nil Tracer disables tracing entirely; Run skips every call against it.
//
// record_input and record_output are not part of this interface: the
// evaluator core only ever produces a traced value (write_array) and a
// trace snapshot (record_trace) or assembles an export, per spec section
// 4.5's literal command handling. internal/dtio's TracingImporter and
// TracingExporter call record_input/record_output themselves, wrapping
// the plain Importer/Exporter pair instead of threading that concern
// through the evaluator.
type Tracer interface {
	RecordSource(text, filename string) error
	RecordTrace(span dtlerr.Span, sch schema.Schema, arrayUUIDs []uuid.UUID) error
	// RecordMapping links a Pick result's array UUID back to its source
	// array's UUID through the index array that produced it, when both
	// happen to also be traced in the same run. Spec section 6's
	// record_mapping is the provenance edge internal/inspect walks to
	// answer "what are this output cell's source cells"; Pick is the
	// only operator in spec section 3 that reindexes one traced array
	// from another through an explicit index array, so it is the only
	// one Run derives a mapping from automatically.
	RecordMapping(srcUUID, tgtUUID uuid.UUID, srcIndexUUID, tgtIndexUUID *uuid.UUID) error
	WriteArray(id uuid.UUID, dtype ir.DType, length int, data Array) error
}

// Source names the script text being evaluated, passed through to
// Tracer.RecordSource (spec section 6) when tracing is enabled.
type Source struct {
	Text     string
	Filename string
}

// Run executes lprog against importer/exporter/tracer in command order,
// per spec section 4.5. tracer may be nil. tprog supplies the span and
// schema each TraceSnapshot was recorded against, which lprog's commands
// reference only by array UUID (spec section 4.4's TraceManifest).
func Run(g *ir.Graph, tprog *translate.Program, lprog *lower.Program, src Source, importer Importer, exporter Exporter, tracer Tracer) error {
	ev := &evaluator{
		graph:          g,
		importer:       importer,
		exporter:       exporter,
		tracer:         tracer,
		shapeLengths:   make(map[ir.Expr]int),
		arrayValues:    make(map[ir.Expr]Array),
		tableHandles:   make(map[ir.Expr]TableHandle),
		traceUUIDs:     make(map[int][]uuid.UUID),
		traceExprUUID:  make(map[ir.Expr]uuid.UUID),
	}

	// The TraceManifest and the Trace commands in lprog.Commands are
	// emitted in lockstep by internal/lower (one manifest entry per Trace
	// command, same order), so a single pass over the manifest recovers
	// both which UUID belongs to which expression and which UUIDs belong
	// to which trace snapshot, without waiting for those commands to
	// actually execute.
	manifestIdx := 0
	for _, cmd := range lprog.Commands {
		t, ok := cmd.(lower.Trace)
		if !ok {
			continue
		}
		te := lprog.TraceManifest[manifestIdx]
		manifestIdx++
		ev.traceExprUUID[t.Expr] = t.ArrayUUID
		ev.traceUUIDs[te.SnapshotIndex] = append(ev.traceUUIDs[te.SnapshotIndex], t.ArrayUUID)
	}

	if tracer != nil {
		if err := tracer.RecordSource(src.Text, src.Filename); err != nil {
			return err
		}
	}

	for _, cmd := range lprog.Commands {
		if err := ev.exec(cmd); err != nil {
			return err
		}
	}

	if tracer != nil {
		if err := ev.recordMappings(); err != nil {
			return err
		}
		for i, snap := range tprog.Traces {
			if err := tracer.RecordTrace(snap.Span, snap.Schema, ev.traceUUIDs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordMappings links every traced Pick result whose source and index
// operands are also traced back to them, in ascending expression order for
// a deterministic manifest.
func (ev *evaluator) recordMappings() error {
	var picks []ir.Expr
	for e := range ev.traceExprUUID {
		if ev.graph.TagOf(e) == ir.TagPick {
			picks = append(picks, e)
		}
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i] < picks[j] })

	for _, e := range picks {
		srcUUID, srcOK := ev.traceExprUUID[ev.graph.Source(e)]
		idxUUID, idxOK := ev.traceExprUUID[ev.graph.Indices(e)]
		if !srcOK || !idxOK {
			continue
		}
		tgtUUID := ev.traceExprUUID[e]
		if err := ev.tracer.RecordMapping(srcUUID, tgtUUID, &idxUUID, nil); err != nil {
			return err
		}
	}
	return nil
}

type evaluator struct {
	graph    *ir.Graph
	importer Importer
	exporter Exporter
	tracer   Tracer

	shapeLengths map[ir.Expr]int
	arrayValues  map[ir.Expr]Array
	tableHandles map[ir.Expr]TableHandle

	// traceUUIDs accumulates, per TraceSnapshot index, the array UUID
	// assigned to each of its columns in column order, so Run can batch
	// them into one Tracer.RecordTrace call per snapshot once evaluation
	// finishes (spec section 6: "one per trace snapshot"). traceExprUUID
	// is the same assignment keyed by expression instead, for
	// recordMappings. Both are populated from the TraceManifest before
	// any command executes.
	traceUUIDs    map[int][]uuid.UUID
	traceExprUUID map[ir.Expr]uuid.UUID
}

func (ev *evaluator) exec(cmd lower.Command) error {
	switch c := cmd.(type) {
	case lower.EvaluateShape:
		return ev.evalShape(c.Shape)
	case lower.EvaluateArray:
		return ev.evalArray(c.Expr)
	case lower.Trace:
		return ev.trace(c)
	case lower.Collect:
		delete(ev.arrayValues, c.Expr)
		return nil
	case lower.Export:
		return ev.export(c)
	default:
		return fmt.Errorf("eval: unknown command %T", cmd)
	}
}

func (ev *evaluator) tableHandle(table ir.Expr) (TableHandle, error) {
	if th, ok := ev.tableHandles[table]; ok {
		return th, nil
	}
	path := ev.graph.String(ev.graph.TableRef(table))
	th, err := ev.importer.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: opening %q: %w", path, err)
	}
	ev.tableHandles[table] = th
	return th, nil
}

func (ev *evaluator) evalShape(e ir.Expr) error {
	switch ev.graph.TagOf(e) {
	case ir.TagImportShape:
		th, err := ev.tableHandle(ev.graph.Left(e))
		if err != nil {
			return err
		}
		ev.shapeLengths[e] = th.Len()
	case ir.TagWhereShape:
		mask := ev.arrayValues[ev.graph.Left(e)].(BoolArray)
		n := 0
		for _, b := range mask {
			if b {
				n++
			}
		}
		ev.shapeLengths[e] = n
	case ir.TagJoinShape:
		left := ev.shapeLengths[ev.graph.Left(e)]
		right := ev.shapeLengths[ev.graph.Right(e)]
		ev.shapeLengths[e] = left * right
	default:
		return fmt.Errorf("eval: %s is not a shape expression", ev.graph.TagOf(e))
	}
	return nil
}

func (ev *evaluator) evalArray(e ir.Expr) error {
	n := ev.shapeLengths[ev.graph.ShapeOf(e)]
	var result Array
	var err error
	switch ev.graph.TagOf(e) {
	case ir.TagInt64Constant:
		result = broadcastInt64(ev.graph.IntValue(e), n)
	case ir.TagDoubleConstant:
		result = broadcastDouble(ev.graph.DoubleValue(e), n)
	case ir.TagReadColumn:
		result, err = ev.evalReadColumn(e)
	case ir.TagWhere:
		result = evalWhere(ev.arrayValues[ev.graph.Source(e)], ev.arrayValues[ev.graph.Mask(e)].(BoolArray))
	case ir.TagPick:
		result = evalPick(ev.arrayValues[ev.graph.Source(e)], ev.arrayValues[ev.graph.Indices(e)].(IndexArray))
	case ir.TagIndex:
		result = evalIndex(ev.arrayValues[ev.graph.Left(e)])
	case ir.TagJoinLeft:
		result = evalJoinSelector(ev.shapeLengths[ev.graph.Left(ev.graph.ShapeOf(e))], ev.shapeLengths[ev.graph.Right(ev.graph.ShapeOf(e))], true)
	case ir.TagJoinRight:
		result = evalJoinSelector(ev.shapeLengths[ev.graph.Left(ev.graph.ShapeOf(e))], ev.shapeLengths[ev.graph.Right(ev.graph.ShapeOf(e))], false)
	case ir.TagEqualTo, ir.TagLessThan, ir.TagLessEq, ir.TagGreaterThan, ir.TagGreaterEq:
		result, err = evalComparison(ev.graph.TagOf(e), ev.arrayValues[ev.graph.Left(e)], ev.arrayValues[ev.graph.Right(e)])
	case ir.TagAdd, ir.TagSubtract, ir.TagMultiply, ir.TagDivide:
		result, err = evalArithmetic(ev.graph.TagOf(e), ev.arrayValues[ev.graph.Left(e)], ev.arrayValues[ev.graph.Right(e)])
	default:
		return fmt.Errorf("eval: %s is not an array expression", ev.graph.TagOf(e))
	}
	if err != nil {
		return err
	}
	ev.arrayValues[e] = result
	return nil
}

func (ev *evaluator) evalReadColumn(e ir.Expr) (Array, error) {
	th, err := ev.tableHandle(ev.graph.ColumnTable(e))
	if err != nil {
		return nil, err
	}
	name := ev.graph.String(ev.graph.ColumnName(e))
	col, err := th.Column(name)
	if err != nil {
		return nil, fmt.Errorf("eval: reading column %q: %w", name, err)
	}
	return col, nil
}

func (ev *evaluator) trace(c lower.Trace) error {
	if ev.tracer == nil {
		return nil
	}
	value := ev.arrayValues[c.Expr]
	dtype := ev.graph.DTypeOf(c.Expr)
	if err := ev.tracer.WriteArray(c.ArrayUUID, dtype, Len(value), value); err != nil {
		return err
	}
	return nil
}

func (ev *evaluator) export(c lower.Export) error {
	columns := make([]Array, len(c.Columns))
	for i, e := range c.Columns {
		columns[i] = ev.arrayValues[e]
	}
	return ev.exporter.Export(c.Name, c.Schema, columns)
}

func broadcastInt64(v int64, n int) Int64Array {
	out := make(Int64Array, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func broadcastDouble(v float64, n int) DoubleArray {
	out := make(DoubleArray, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func evalWhere(src Array, mask BoolArray) Array {
	switch s := src.(type) {
	case BoolArray:
		out := make(BoolArray, 0, len(s))
		for i, keep := range mask {
			if keep {
				out = append(out, s[i])
			}
		}
		return out
	case Int64Array:
		out := make(Int64Array, 0, len(s))
		for i, keep := range mask {
			if keep {
				out = append(out, s[i])
			}
		}
		return out
	case DoubleArray:
		out := make(DoubleArray, 0, len(s))
		for i, keep := range mask {
			if keep {
				out = append(out, s[i])
			}
		}
		return out
	case StringArray:
		out := make(StringArray, 0, len(s))
		for i, keep := range mask {
			if keep {
				out = append(out, s[i])
			}
		}
		return out
	case IndexArray:
		out := make(IndexArray, 0, len(s))
		for i, keep := range mask {
			if keep {
				out = append(out, s[i])
			}
		}
		return out
	default:
		panic(fmt.Sprintf("eval: Where over unsupported array type %T", src))
	}
}

func evalPick(src Array, idx IndexArray) Array {
	switch s := src.(type) {
	case BoolArray:
		out := make(BoolArray, len(idx))
		for i, p := range idx {
			out[i] = s[p]
		}
		return out
	case Int64Array:
		out := make(Int64Array, len(idx))
		for i, p := range idx {
			out[i] = s[p]
		}
		return out
	case DoubleArray:
		out := make(DoubleArray, len(idx))
		for i, p := range idx {
			out[i] = s[p]
		}
		return out
	case StringArray:
		out := make(StringArray, len(idx))
		for i, p := range idx {
			out[i] = s[p]
		}
		return out
	case IndexArray:
		out := make(IndexArray, len(idx))
		for i, p := range idx {
			out[i] = s[p]
		}
		return out
	default:
		panic(fmt.Sprintf("eval: Pick over unsupported array type %T", src))
	}
}

// evalIndex computes the stable ascending sort-permutation of src.
func evalIndex(src Array) IndexArray {
	n := Len(src)
	out := make(IndexArray, n)
	for i := range out {
		out[i] = int64(i)
	}
	var less func(i, j int64) bool
	switch s := src.(type) {
	case BoolArray:
		less = func(i, j int64) bool { return !s[i] && s[j] }
	case Int64Array:
		less = func(i, j int64) bool { return s[i] < s[j] }
	case DoubleArray:
		less = func(i, j int64) bool { return s[i] < s[j] }
	case StringArray:
		less = func(i, j int64) bool { return s[i] < s[j] }
	case IndexArray:
		less = func(i, j int64) bool { return s[i] < s[j] }
	default:
		panic(fmt.Sprintf("eval: Index over unsupported array type %T", src))
	}
	sort.SliceStable(out, func(a, b int) bool { return less(out[a], out[b]) })
	return out
}

// evalJoinSelector builds the canonical left or right row selector of a
// left-rows x right-rows Cartesian join (row-major: left varies slower).
func evalJoinSelector(left, right int, selectLeft bool) IndexArray {
	out := make(IndexArray, left*right)
	for i := range out {
		if selectLeft {
			out[i] = int64(i / right)
		} else {
			out[i] = int64(i % right)
		}
	}
	return out
}

func evalComparison(tag ir.Tag, left, right Array) (BoolArray, error) {
	n := Len(left)
	out := make(BoolArray, n)
	cmp, err := compareFunc(left, right)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		c := cmp(i)
		switch tag {
		case ir.TagEqualTo:
			out[i] = c == 0
		case ir.TagLessThan:
			out[i] = c < 0
		case ir.TagLessEq:
			out[i] = c <= 0
		case ir.TagGreaterThan:
			out[i] = c > 0
		case ir.TagGreaterEq:
			out[i] = c >= 0
		}
	}
	return out, nil
}

// compareFunc returns a three-way comparator between left[i] and right[i],
// <0 / 0 / >0, for the shared concrete array type of left and right.
func compareFunc(left, right Array) (func(i int) int, error) {
	switch l := left.(type) {
	case BoolArray:
		r := right.(BoolArray)
		return func(i int) int { return boolCompare(l[i], r[i]) }, nil
	case Int64Array:
		r := right.(Int64Array)
		return func(i int) int {
			switch {
			case l[i] < r[i]:
				return -1
			case l[i] > r[i]:
				return 1
			default:
				return 0
			}
		}, nil
	case DoubleArray:
		r := right.(DoubleArray)
		return func(i int) int {
			switch {
			case l[i] < r[i]:
				return -1
			case l[i] > r[i]:
				return 1
			default:
				return 0
			}
		}, nil
	case StringArray:
		r := right.(StringArray)
		return func(i int) int {
			switch {
			case l[i] < r[i]:
				return -1
			case l[i] > r[i]:
				return 1
			default:
				return 0
			}
		}, nil
	case IndexArray:
		r := right.(IndexArray)
		return func(i int) int {
			switch {
			case l[i] < r[i]:
				return -1
			case l[i] > r[i]:
				return 1
			default:
				return 0
			}
		}, nil
	default:
		return nil, fmt.Errorf("eval: comparison over unsupported array type %T", left)
	}
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func evalArithmetic(tag ir.Tag, left, right Array) (Array, error) {
	switch l := left.(type) {
	case Int64Array:
		r := right.(Int64Array)
		out := make(Int64Array, len(l))
		for i := range out {
			var err error
			out[i], err = int64Op(tag, l[i], r[i])
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case DoubleArray:
		r := right.(DoubleArray)
		out := make(DoubleArray, len(l))
		for i := range out {
			out[i] = doubleOp(tag, l[i], r[i])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("eval: arithmetic over unsupported array type %T", left)
	}
}

func int64Op(tag ir.Tag, a, b int64) (int64, error) {
	switch tag {
	case ir.TagAdd:
		return a + b, nil
	case ir.TagSubtract:
		return a - b, nil
	case ir.TagMultiply:
		return a * b, nil
	case ir.TagDivide:
		if b == 0 {
			return 0, fmt.Errorf("eval: integer division by zero")
		}
		return a / b, nil
	default:
		panic(fmt.Sprintf("eval: %s is not an arithmetic operator", tag))
	}
}

func doubleOp(tag ir.Tag, a, b float64) float64 {
	switch tag {
	case ir.TagAdd:
		return a + b
	case ir.TagSubtract:
		return a - b
	case ir.TagMultiply:
		return a * b
	case ir.TagDivide:
		return a / b
	default:
		panic(fmt.Sprintf("eval: %s is not an arithmetic operator", tag))
	}
}
