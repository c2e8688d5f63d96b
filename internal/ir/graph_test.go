package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueNumberingDedupesIdenticalExpressions(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)

	table1, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	table2, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	assert.Equal(t, table1, table2, "two OpenTable expressions for the same table name must be the same node")

	shape1, err := g.CreateImportShape(table1)
	require.NoError(t, err)
	shape2, err := g.CreateImportShape(table2)
	require.NoError(t, err)
	assert.Equal(t, shape1, shape2)

	assert.Equal(t, 2, g.NumExpressions(), "deduped graph should hold exactly the table and its shape")
}

func TestDependenciesPrecedeDependent(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	col, err := g.Intern("amount")
	require.NoError(t, err)
	amount, err := g.CreateReadColumn(table, col, Int64, shape)
	require.NoError(t, err)
	five, err := g.CreateInt64Constant(shape, 5)
	require.NoError(t, err)
	mask, err := g.CreateGreaterThan(shape, amount, five)
	require.NoError(t, err)

	g.ForEachExpression(func(e Expr) {
		for _, dep := range g.Dependencies(e) {
			assert.Less(t, int(dep), int(e), "dependency %v of %v must precede it", dep, e)
		}
	})
	assert.True(t, g.IsArrayExpr(mask))
	assert.Equal(t, BoolArray, g.DTypeOf(mask))
}

func TestReadColumnRejectsArrayDType(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	col, err := g.Intern("amount")
	require.NoError(t, err)

	_, err = g.CreateReadColumn(table, col, Int64Array, shape)
	assert.Error(t, err, "ReadColumn must reject an array-tier dtype argument")
}

func TestArithmeticRequiresMatchingNumericDType(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	col, err := g.Intern("amount")
	require.NoError(t, err)
	amount, err := g.CreateReadColumn(table, col, Int64, shape)
	require.NoError(t, err)
	price, err := g.CreateReadColumn(table, col, Double, shape)
	require.NoError(t, err)

	_, err = g.CreateAdd(shape, amount, price)
	assert.Error(t, err, "Add must reject mismatched dtypes")

	name2, err := g.Intern("name")
	require.NoError(t, err)
	strcol, err := g.CreateReadColumn(table, name2, String, shape)
	require.NoError(t, err)
	_, err = g.CreateAdd(shape, strcol, strcol)
	assert.Error(t, err, "Add must reject non-numeric dtypes")
}

func TestWhereRequiresSharedShape(t *testing.T) {
	g := NewGraph(0, 0)
	nameA, err := g.Intern("orders")
	require.NoError(t, err)
	tableA, err := g.CreateOpenTable(nameA)
	require.NoError(t, err)
	shapeA, err := g.CreateImportShape(tableA)
	require.NoError(t, err)

	nameB, err := g.Intern("customers")
	require.NoError(t, err)
	tableB, err := g.CreateOpenTable(nameB)
	require.NoError(t, err)
	shapeB, err := g.CreateImportShape(tableB)
	require.NoError(t, err)

	col, err := g.Intern("active")
	require.NoError(t, err)
	amount, err := g.CreateReadColumn(tableA, col, Int64, shapeA)
	require.NoError(t, err)
	five, err := g.CreateInt64Constant(shapeA, 5)
	require.NoError(t, err)
	mask, err := g.CreateGreaterThan(shapeA, amount, five)
	require.NoError(t, err)

	otherCol, err := g.CreateReadColumn(tableB, col, Int64, shapeB)
	require.NoError(t, err)

	whereShape, err := g.CreateWhereShape(mask)
	require.NoError(t, err)

	_, err = g.CreateWhere(whereShape, otherCol, mask)
	assert.Error(t, err, "Where must reject operands with different shapes")
}

func TestGraphFullStopsInsertion(t *testing.T) {
	g := NewGraph(1, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	_, err = g.CreateOpenTable(name)
	require.NoError(t, err)

	name2, err := g.Intern("customers")
	require.NoError(t, err)
	_, err = g.CreateOpenTable(name2)
	assert.Error(t, err, "a second distinct node must fail once capacity is reached")
}

func TestCollectCompactsAndPreservesOrder(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)
	col, err := g.Intern("amount")
	require.NoError(t, err)
	amount, err := g.CreateReadColumn(table, col, Int64, shape)
	require.NoError(t, err)

	// An orphan expression nothing roots.
	orphanCol, err := g.Intern("unused")
	require.NoError(t, err)
	orphan, err := g.CreateReadColumn(table, orphanCol, Int64, shape)
	require.NoError(t, err)
	require.NotEqual(t, InvalidExpr, orphan)

	g.MarkRoot(amount)
	remap := g.Collect()

	assert.Equal(t, 3, g.NumExpressions(), "compaction should drop the unrooted ReadColumn")
	newAmount := remap[amount]
	require.NotEqual(t, InvalidExpr, newAmount)
	assert.Equal(t, TagReadColumn, g.TagOf(newAmount))

	g.ForEachExpression(func(e Expr) {
		for _, dep := range g.Dependencies(e) {
			assert.Less(t, int(dep), int(e))
		}
	})

	assert.Equal(t, InvalidExpr, g.Remap(orphan), "a collected expression must remap to InvalidExpr")
}

func TestMarkRootIsTransitive(t *testing.T) {
	g := NewGraph(0, 0)
	name, err := g.Intern("orders")
	require.NoError(t, err)
	table, err := g.CreateOpenTable(name)
	require.NoError(t, err)
	shape, err := g.CreateImportShape(table)
	require.NoError(t, err)

	g.MarkRoot(shape)
	assert.True(t, g.Marked(table), "marking a shape must transitively mark the table it depends on")
}
