package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtl/internal/ir"
	"dtl/internal/schema"
	"dtl/internal/translate"
)

// build assembles a graph with a single imported column shared by two
// exports, so Lower has to dedupe its EvaluateShape/EvaluateArray
// emission across two roots that happen to reach the same expression.
func buildSharedColumnProgram(t *testing.T) (*ir.Graph, *translate.Program, ir.Expr, ir.Expr) {
	t.Helper()
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("amount")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Int64, shape)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "amount", DType: ir.Int64})
	require.NoError(t, err)

	prog := &translate.Program{
		Exports: []translate.ExportRecord{
			{Name: "out1", Schema: sch, Columns: []ir.Expr{col}},
			{Name: "out2", Schema: sch, Columns: []ir.Expr{col}},
		},
	}
	return g, prog, col, shape
}

func TestLowerEmitsEachExpressionOnce(t *testing.T) {
	g, prog, col, shape := buildSharedColumnProgram(t)
	lp := Lower(g, prog)

	var shapeCount, arrayCount int
	for _, cmd := range lp.Commands {
		switch c := cmd.(type) {
		case EvaluateShape:
			assert.Equal(t, shape, c.Shape)
			shapeCount++
		case EvaluateArray:
			assert.Equal(t, col, c.Expr)
			arrayCount++
		}
	}
	assert.Equal(t, 1, shapeCount, "a shape shared by two exports must be evaluated once")
	assert.Equal(t, 1, arrayCount, "an array shared by two exports must be evaluated once")
}

func TestLowerOrdersShapeBeforeArray(t *testing.T) {
	g, prog, col, shape := buildSharedColumnProgram(t)
	lp := Lower(g, prog)

	shapeIdx, arrayIdx := -1, -1
	for i, cmd := range lp.Commands {
		switch c := cmd.(type) {
		case EvaluateShape:
			if c.Shape == shape {
				shapeIdx = i
			}
		case EvaluateArray:
			if c.Expr == col {
				arrayIdx = i
			}
		}
	}
	require.NotEqual(t, -1, shapeIdx)
	require.NotEqual(t, -1, arrayIdx)
	assert.Less(t, shapeIdx, arrayIdx, "a shape must be evaluated before any array using it")
}

func TestLowerExportsInEncounterOrder(t *testing.T) {
	_, prog, _, _ := buildSharedColumnProgram(t)
	g, _, _, _ := buildSharedColumnProgram(t)
	lp := Lower(g, prog)

	var names []string
	for _, cmd := range lp.Commands {
		if e, ok := cmd.(Export); ok {
			names = append(names, e.Name)
		}
	}
	assert.Equal(t, []string{"out1", "out2"}, names)
}

// TestLowerNeverCollectsARoot verifies spec section 4.4 step 5: an
// expression that is itself an export/trace root is never issued a
// Collect command, since a later command (the Export itself) still needs
// its value.
func TestLowerNeverCollectsARoot(t *testing.T) {
	g, prog, col, _ := buildSharedColumnProgram(t)
	lp := Lower(g, prog)
	for _, cmd := range lp.Commands {
		if c, ok := cmd.(Collect); ok {
			assert.NotEqual(t, col, c.Expr, "a root expression must never be collected")
		}
	}
}

// TestLowerCollectsIntermediateAfterLastConsumer builds a Where over a
// ReadColumn so the ReadColumn is an intermediate (non-root) value: it
// must be Collected exactly once, after its sole consumer (the Where) has
// been evaluated.
func TestLowerCollectsIntermediateAfterLastConsumer(t *testing.T) {
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("active")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Bool, shape)
	require.NoError(t, err)
	newShape, err := g.CreateWhereShape(col)
	require.NoError(t, err)
	filtered, err := g.CreateWhere(newShape, col, col)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "active", DType: ir.Bool})
	require.NoError(t, err)
	prog := &translate.Program{
		Exports: []translate.ExportRecord{{Name: "out", Schema: sch, Columns: []ir.Expr{filtered}}},
	}
	lp := Lower(g, prog)

	var collectIdx, whereIdx int = -1, -1
	collectCount := 0
	for i, cmd := range lp.Commands {
		switch c := cmd.(type) {
		case Collect:
			if c.Expr == col {
				collectIdx = i
				collectCount++
			}
		case EvaluateArray:
			if c.Expr == filtered {
				whereIdx = i
			}
		}
	}
	assert.Equal(t, 1, collectCount, "an intermediate expression is collected exactly once")
	require.NotEqual(t, -1, collectIdx)
	require.NotEqual(t, -1, whereIdx)
	assert.Less(t, whereIdx, collectIdx, "Collect must run after the last command that consumes the value")
}

// TestLowerHandlesJoinSelectors builds the S5 join shape (spec section 8
// scenario S5) directly against the graph so Lower walks JoinLeft/JoinRight
// dependencies: both have no operand besides their JoinShape, so this
// guards against treating their unused operand slots as real dependencies.
func TestLowerHandlesJoinSelectors(t *testing.T) {
	g := ir.NewGraph(0, 0)
	lName, err := g.Intern("l")
	require.NoError(t, err)
	lTable, err := g.CreateOpenTable(lName)
	require.NoError(t, err)
	lShape, err := g.CreateImportShape(lTable)
	require.NoError(t, err)
	aName, err := g.Intern("a")
	require.NoError(t, err)
	a, err := g.CreateReadColumn(lTable, aName, ir.Int64, lShape)
	require.NoError(t, err)

	rName, err := g.Intern("r")
	require.NoError(t, err)
	rTable, err := g.CreateOpenTable(rName)
	require.NoError(t, err)
	rShape, err := g.CreateImportShape(rTable)
	require.NoError(t, err)
	bName, err := g.Intern("b")
	require.NoError(t, err)
	b, err := g.CreateReadColumn(rTable, bName, ir.Int64, rShape)
	require.NoError(t, err)

	js, err := g.CreateJoinShape(lShape, rShape)
	require.NoError(t, err)
	jl, err := g.CreateJoinLeft(js)
	require.NoError(t, err)
	jr, err := g.CreateJoinRight(js)
	require.NoError(t, err)
	pickedA, err := g.CreatePick(js, a, jl)
	require.NoError(t, err)
	pickedB, err := g.CreatePick(js, b, jr)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "a", DType: ir.Int64}, schema.Column{Name: "b", DType: ir.Int64})
	require.NoError(t, err)
	prog := &translate.Program{
		Exports: []translate.ExportRecord{{Name: "out", Schema: sch, Columns: []ir.Expr{pickedA, pickedB}}},
	}

	require.NotPanics(t, func() { Lower(g, prog) })

	lp := Lower(g, prog)
	var sawJL, sawJR bool
	for _, cmd := range lp.Commands {
		if c, ok := cmd.(EvaluateArray); ok {
			switch c.Expr {
			case jl:
				sawJL = true
			case jr:
				sawJR = true
			}
		}
	}
	assert.True(t, sawJL, "JoinLeft selector must be evaluated")
	assert.True(t, sawJR, "JoinRight selector must be evaluated")
}

func TestLowerAssignsOneUUIDPerTraceColumn(t *testing.T) {
	g := ir.NewGraph(0, 0)
	tableName, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(tableName)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	colName, err := g.Intern("amount")
	require.NoError(t, err)
	col, err := g.CreateReadColumn(table, colName, ir.Int64, shape)
	require.NoError(t, err)

	sch, err := schema.New(schema.Column{Name: "amount", DType: ir.Int64})
	require.NoError(t, err)
	prog := &translate.Program{
		Traces: []translate.TraceSnapshot{{Schema: sch, Columns: []ir.Expr{col}}},
	}
	lp := Lower(g, prog)

	require.Len(t, lp.TraceManifest, 1)
	var traceCount int
	for _, cmd := range lp.Commands {
		if tr, ok := cmd.(Trace); ok {
			assert.Equal(t, lp.TraceManifest[0].UUID, tr.ArrayUUID)
			traceCount++
		}
	}
	assert.Equal(t, 1, traceCount)
	assert.Equal(t, 0, lp.TraceManifest[0].SnapshotIndex)
	assert.Equal(t, 0, lp.TraceManifest[0].ColumnIndex)
}
