package eval

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
	"dtl/internal/lower"
	"dtl/internal/schema"
	"dtl/internal/translate"
)

// fakeTable is an in-memory TableHandle backing fakeImporter.
type fakeTable struct {
	n       int
	columns map[string]Array
}

func (f *fakeTable) Len() int { return f.n }

func (f *fakeTable) Column(name string) (Array, error) {
	a, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("no such column %q", name)
	}
	return a, nil
}

type fakeImporter struct {
	schemas map[string]schema.Schema
	tables  map[string]*fakeTable
}

func (f *fakeImporter) Schema(path string) (schema.Schema, error) {
	sch, ok := f.schemas[path]
	if !ok {
		return schema.Schema{}, fmt.Errorf("no such table %q", path)
	}
	return sch, nil
}

func (f *fakeImporter) Open(path string) (TableHandle, error) {
	th, ok := f.tables[path]
	if !ok {
		return nil, fmt.Errorf("no such table %q", path)
	}
	return th, nil
}

// fakeExporter captures every Export call it receives.
type fakeExporter struct {
	exports map[string][]Array
	schemas map[string]schema.Schema
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{exports: make(map[string][]Array), schemas: make(map[string]schema.Schema)}
}

func (f *fakeExporter) Export(name string, sch schema.Schema, columns []Array) error {
	f.exports[name] = columns
	f.schemas[name] = sch
	return nil
}

// fakeTracer records every call it receives, mirroring the Tracer interface
// the way internal/dtio's ManifestTracer implements it against a real
// manifest file.
type fakeTracer struct {
	sourceCalls  int
	written      map[uuid.UUID]Array
	traces       []schema.Schema
	mappingCalls int
}

func newFakeTracer() *fakeTracer {
	return &fakeTracer{written: make(map[uuid.UUID]Array)}
}

func (f *fakeTracer) RecordSource(text, filename string) error {
	f.sourceCalls++
	return nil
}

func (f *fakeTracer) RecordTrace(span dtlerr.Span, sch schema.Schema, arrayUUIDs []uuid.UUID) error {
	f.traces = append(f.traces, sch)
	return nil
}

func (f *fakeTracer) RecordMapping(srcUUID, tgtUUID uuid.UUID, srcIndexUUID, tgtIndexUUID *uuid.UUID) error {
	f.mappingCalls++
	return nil
}

func (f *fakeTracer) WriteArray(id uuid.UUID, dtype ir.DType, length int, data Array) error {
	f.written[id] = data
	return nil
}

// buildIdentityProgram compiles `input = IMPORT 'in'; EXPORT input TO 'out';`
// by hand at the ir/lower layer, the way translate.Translate + lower.Lower
// would, so eval tests don't need the full pipeline wired in.
func buildIdentityProgram(t *testing.T) (*ir.Graph, *translate.Program, *lower.Program, *fakeImporter) {
	t.Helper()
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("in")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("x")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Int64, shape)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "x", DType: ir.Int64})
	require.NoError(t, err)
	tprog := &translate.Program{
		Exports: []translate.ExportRecord{{Name: "out", Schema: sch, Columns: []ir.Expr{col}}},
	}
	lprog := lower.Lower(g, tprog)

	imp := &fakeImporter{
		schemas: map[string]schema.Schema{"in": sch},
		tables: map[string]*fakeTable{
			"in": {n: 3, columns: map[string]Array{"x": Int64Array{1, 2, 3}}},
		},
	}
	return g, tprog, lprog, imp
}

func TestRunExportsIdentityColumn(t *testing.T) {
	g, tprog, lprog, imp := buildIdentityProgram(t)
	exp := newFakeExporter()

	err := Run(g, tprog, lprog, Source{Text: "src", Filename: "f.dtl"}, imp, exp, nil)
	require.NoError(t, err)

	require.Contains(t, exp.exports, "out")
	require.Len(t, exp.exports["out"], 1)
	assert.Equal(t, Int64Array{1, 2, 3}, exp.exports["out"][0])
}

func TestRunSkipsTracerCallsWhenNil(t *testing.T) {
	g, tprog, lprog, imp := buildIdentityProgram(t)
	exp := newFakeExporter()
	assert.NoError(t, Run(g, tprog, lprog, Source{}, imp, exp, nil))
}

func TestRunRecordsSourceAndTraceWhenTracerPresent(t *testing.T) {
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("in")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("x")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Int64, shape)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "x", DType: ir.Int64})
	require.NoError(t, err)
	tprog := &translate.Program{
		Exports: []translate.ExportRecord{{Name: "out", Schema: sch, Columns: []ir.Expr{col}}},
		Traces:  []translate.TraceSnapshot{{Schema: sch, Columns: []ir.Expr{col}}},
	}
	lprog := lower.Lower(g, tprog)

	imp := &fakeImporter{
		schemas: map[string]schema.Schema{"in": sch},
		tables: map[string]*fakeTable{
			"in": {n: 2, columns: map[string]Array{"x": Int64Array{7, 8}}},
		},
	}
	exp := newFakeExporter()
	tracer := newFakeTracer()

	require.NoError(t, Run(g, tprog, lprog, Source{Text: "s", Filename: "f"}, imp, exp, tracer))
	assert.Equal(t, 1, tracer.sourceCalls)
	require.Len(t, tracer.traces, 1)
	assert.Equal(t, 1, tracer.traces[0].Len())
	require.Len(t, tracer.written, 1)
	for _, v := range tracer.written {
		assert.Equal(t, Int64Array{7, 8}, v)
	}
}

// TestRunRecordsMappingForTracedPick covers spec section 6's record_mapping:
// a Pick whose source and index operands are both traced produces exactly
// one RecordMapping call.
func TestRunRecordsMappingForTracedPick(t *testing.T) {
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("in")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	impShape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("x")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Int64, impShape)
	require.NoError(t, err)
	boolName, err := g.Intern("keep")
	require.NoError(t, err)
	mask, err := g.CreateReadColumn(table, boolName, ir.Bool, impShape)
	require.NoError(t, err)
	whereShape, err := g.CreateWhereShape(mask)
	require.NoError(t, err)
	idx, err := g.CreateIndex(col)
	require.NoError(t, err)
	picked, err := g.CreatePick(whereShape, col, idx)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "x", DType: ir.Int64})
	require.NoError(t, err)
	tprog := &translate.Program{
		Traces: []translate.TraceSnapshot{
			{Schema: sch, Columns: []ir.Expr{col}},
			{Schema: sch, Columns: []ir.Expr{idx}},
			{Schema: sch, Columns: []ir.Expr{picked}},
		},
	}
	lprog := lower.Lower(g, tprog)

	imp := &fakeImporter{
		schemas: map[string]schema.Schema{"in": sch},
		tables: map[string]*fakeTable{
			"in": {n: 3, columns: map[string]Array{
				"x":    Int64Array{10, 20, 30},
				"keep": BoolArray{true, false, true},
			}},
		},
	}
	tracer := newFakeTracer()
	require.NoError(t, Run(g, tprog, lprog, Source{}, imp, newFakeExporter(), tracer))
	assert.Equal(t, 1, tracer.mappingCalls)
}

func TestEvalComparisonAndArithmeticKernels(t *testing.T) {
	left := Int64Array{1, 2, 3}
	right := Int64Array{3, 2, 1}

	cmp, err := evalComparison(ir.TagLessThan, left, right)
	require.NoError(t, err)
	assert.Equal(t, BoolArray{true, false, false}, cmp)

	sum, err := evalArithmetic(ir.TagAdd, left, right)
	require.NoError(t, err)
	assert.Equal(t, Int64Array{4, 4, 4}, sum)

	_, err = evalArithmetic(ir.TagDivide, Int64Array{1}, Int64Array{0})
	assert.Error(t, err, "integer division by zero must fail, not panic")
}

func TestEvalJoinSelectorIsRowMajorWithLeftSlower(t *testing.T) {
	left := evalJoinSelector(2, 3, true)
	right := evalJoinSelector(2, 3, false)
	assert.Equal(t, IndexArray{0, 0, 0, 1, 1, 1}, left)
	assert.Equal(t, IndexArray{0, 1, 2, 0, 1, 2}, right)
}

func TestEvalIndexIsStableAscendingPermutation(t *testing.T) {
	perm := evalIndex(Int64Array{30, 10, 20, 10})
	// Two equal values (both 10) at positions 1 and 3 must keep their
	// relative order: 1 before 3.
	assert.Equal(t, IndexArray{1, 3, 2, 0}, perm)
}

func TestLenPanicsOnUnknownType(t *testing.T) {
	assert.Panics(t, func() { Len(42) })
}
