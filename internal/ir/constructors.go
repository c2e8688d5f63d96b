package ir

// This file holds every Create* constructor for the expression graph. Each
// constructor enforces the structural precondition spec section 4
// associates with its variant (shape agreement, dtype agreement, table
// membership) before calling insert, so a Graph can never hold a
// structurally invalid node.

// CreateImportShape creates the shape expression naming an imported table's
// row count. table must be an OpenTable expression.
func (g *Graph) CreateImportShape(table Expr) (Expr, error) {
	if !g.IsTableExpr(table) {
		return InvalidExpr, errShapeMismatch("ImportShape operand must be a table expression, got %s", g.TagOf(table))
	}
	return g.insert(node{tag: TagImportShape, a: table, b: InvalidExpr, shape: InvalidExpr})
}

// CreateWhereShape creates the shape of the rows selected by a boolean mask
// array. mask must have dtype BoolArray.
func (g *Graph) CreateWhereShape(mask Expr) (Expr, error) {
	if !g.IsArrayExpr(mask) || g.DTypeOf(mask) != BoolArray {
		return InvalidExpr, errTypeMismatch("WhereShape operand must be a BoolArray, got %s", g.describeOperand(mask))
	}
	return g.insert(node{tag: TagWhereShape, a: mask, b: InvalidExpr, shape: InvalidExpr})
}

// CreateJoinShape creates the staging shape of the unfiltered Cartesian
// product of leftShape and rightShape (spec section 3: "length = |left| x
// |right|"). The ON/USING predicate is applied afterward by a Where over
// this shape; this constructor only establishes the cross-product staging
// shape itself.
func (g *Graph) CreateJoinShape(leftShape, rightShape Expr) (Expr, error) {
	if !g.IsShapeExpr(leftShape) || !g.IsShapeExpr(rightShape) {
		return InvalidExpr, errShapeMismatch("JoinShape operands must be shape expressions")
	}
	return g.insert(node{tag: TagJoinShape, a: leftShape, b: rightShape, shape: InvalidExpr})
}

// CreateOpenTable creates the opaque handle produced by importing a table
// named by ref through some Importer.
func (g *Graph) CreateOpenTable(ref StringRef) (Expr, error) {
	return g.insert(node{tag: TagOpenTable, str: ref, a: InvalidExpr, b: InvalidExpr, shape: InvalidExpr})
}

// CreateInt64Constant creates a rank-0-broadcast Int64Array of value,
// conforming to shape.
func (g *Graph) CreateInt64Constant(shape Expr, value int64) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("Int64Constant shape operand must be a shape expression")
	}
	return g.insert(node{tag: TagInt64Constant, dtype: Int64Array, shape: shape, i64: value, a: InvalidExpr, b: InvalidExpr})
}

// CreateDoubleConstant creates a rank-0-broadcast DoubleArray of value,
// conforming to shape.
func (g *Graph) CreateDoubleConstant(shape Expr, value float64) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("DoubleConstant shape operand must be a shape expression")
	}
	return g.insert(node{tag: TagDoubleConstant, dtype: DoubleArray, shape: shape, f64: value, a: InvalidExpr, b: InvalidExpr})
}

// CreateReadColumn creates the array obtained by reading column name out of
// table. shape must be table's ImportShape (or an equal one by value
// numbering).
func (g *Graph) CreateReadColumn(table Expr, name StringRef, dtype DType, shape Expr) (Expr, error) {
	if !g.IsTableExpr(table) {
		return InvalidExpr, errShapeMismatch("ReadColumn operand must be a table expression")
	}
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("ReadColumn shape operand must be a shape expression")
	}
	if dtype.IsArray() {
		return InvalidExpr, errTypeMismatch("ReadColumn dtype must be a scalar-tier dtype naming the column's element type, got %s", dtype)
	}
	return g.insert(node{tag: TagReadColumn, dtype: arrayDTypeOf(dtype), shape: shape, a: table, str: name, b: InvalidExpr})
}

// CreateWhere creates the array produced by filtering array by mask. array
// and mask must share a shape; the result's shape is WhereShape(mask).
func (g *Graph) CreateWhere(shape, array, mask Expr) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("Where shape operand must be a shape expression")
	}
	if !g.IsArrayExpr(mask) || g.DTypeOf(mask) != BoolArray {
		return InvalidExpr, errTypeMismatch("Where mask operand must be a BoolArray, got %s", g.describeOperand(mask))
	}
	if !g.IsArrayExpr(array) {
		return InvalidExpr, errShapeMismatch("Where array operand must be an array expression")
	}
	if g.ShapeOf(array) != g.ShapeOf(mask) {
		return InvalidExpr, errShapeMismatch("Where operands must share a shape")
	}
	return g.insert(node{tag: TagWhere, dtype: g.DTypeOf(array), shape: shape, a: array, b: mask})
}

// CreatePick creates the array produced by gathering array at the positions
// named by indices (an IndexArray). The result's shape is indices' shape.
func (g *Graph) CreatePick(shape, array, indices Expr) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("Pick shape operand must be a shape expression")
	}
	if !g.IsArrayExpr(indices) || g.DTypeOf(indices) != IndexArray {
		return InvalidExpr, errTypeMismatch("Pick indices operand must be an IndexArray, got %s", g.describeOperand(indices))
	}
	if !g.IsArrayExpr(array) {
		return InvalidExpr, errShapeMismatch("Pick array operand must be an array expression")
	}
	return g.insert(node{tag: TagPick, dtype: g.DTypeOf(array), shape: shape, a: array, b: indices})
}

// CreateIndex creates the IndexArray that stably sorts source ascending
// (spec section 3: "Index(source) - sort-permutation: indices that sort
// source ascending (stable)"). The result shares source's shape.
func (g *Graph) CreateIndex(source Expr) (Expr, error) {
	if !g.IsArrayExpr(source) {
		return InvalidExpr, errShapeMismatch("Index operand must be an array expression")
	}
	return g.insert(node{tag: TagIndex, dtype: IndexArray, shape: g.ShapeOf(source), a: source, b: InvalidExpr})
}

// CreateJoinLeft creates the IndexArray mapping each row of a JoinShape to
// its source row in the left input.
func (g *Graph) CreateJoinLeft(joinShape Expr) (Expr, error) {
	if !g.IsShapeExpr(joinShape) || g.TagOf(joinShape) != TagJoinShape {
		return InvalidExpr, errShapeMismatch("JoinLeft operand must be a JoinShape expression")
	}
	return g.insert(node{tag: TagJoinLeft, dtype: IndexArray, shape: joinShape, a: InvalidExpr, b: InvalidExpr})
}

// CreateJoinRight creates the IndexArray mapping each row of a JoinShape to
// its source row in the right input.
func (g *Graph) CreateJoinRight(joinShape Expr) (Expr, error) {
	if !g.IsShapeExpr(joinShape) || g.TagOf(joinShape) != TagJoinShape {
		return InvalidExpr, errShapeMismatch("JoinRight operand must be a JoinShape expression")
	}
	return g.insert(node{tag: TagJoinRight, dtype: IndexArray, shape: joinShape, a: InvalidExpr, b: InvalidExpr})
}

func (g *Graph) createComparison(tag Tag, shape, left, right Expr) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("%s shape operand must be a shape expression", tag)
	}
	if !g.IsArrayExpr(left) || !g.IsArrayExpr(right) {
		return InvalidExpr, errShapeMismatch("%s operands must be array expressions", tag)
	}
	if g.DTypeOf(left) != g.DTypeOf(right) {
		return InvalidExpr, errTypeMismatch("%s operands must share a dtype, got %s and %s", tag, g.DTypeOf(left), g.DTypeOf(right))
	}
	return g.insert(node{tag: tag, dtype: BoolArray, shape: shape, a: left, b: right})
}

// CreateEqualTo, CreateLessThan, CreateLessEq, CreateGreaterThan and
// CreateGreaterEq each create the BoolArray comparing left against right
// element-wise. left and right must share a dtype.
func (g *Graph) CreateEqualTo(shape, left, right Expr) (Expr, error) {
	return g.createComparison(TagEqualTo, shape, left, right)
}

func (g *Graph) CreateLessThan(shape, left, right Expr) (Expr, error) {
	return g.createComparison(TagLessThan, shape, left, right)
}

func (g *Graph) CreateLessEq(shape, left, right Expr) (Expr, error) {
	return g.createComparison(TagLessEq, shape, left, right)
}

func (g *Graph) CreateGreaterThan(shape, left, right Expr) (Expr, error) {
	return g.createComparison(TagGreaterThan, shape, left, right)
}

func (g *Graph) CreateGreaterEq(shape, left, right Expr) (Expr, error) {
	return g.createComparison(TagGreaterEq, shape, left, right)
}

func (g *Graph) createArithmetic(tag Tag, shape, left, right Expr) (Expr, error) {
	if !g.IsShapeExpr(shape) {
		return InvalidExpr, errShapeMismatch("%s shape operand must be a shape expression", tag)
	}
	if !g.IsArrayExpr(left) || !g.IsArrayExpr(right) {
		return InvalidExpr, errShapeMismatch("%s operands must be array expressions", tag)
	}
	ldt, rdt := g.DTypeOf(left), g.DTypeOf(right)
	if ldt != rdt {
		return InvalidExpr, errTypeMismatch("%s operands must share a dtype, got %s and %s", tag, ldt, rdt)
	}
	if ldt != Int64Array && ldt != DoubleArray {
		return InvalidExpr, errTypeMismatch("%s operands must be numeric, got %s", tag, ldt)
	}
	return g.insert(node{tag: tag, dtype: ldt, shape: shape, a: left, b: right})
}

// CreateAdd, CreateSubtract, CreateMultiply and CreateDivide each create the
// numeric array produced element-wise from left and right, which must
// share a numeric dtype (Int64Array or DoubleArray).
func (g *Graph) CreateAdd(shape, left, right Expr) (Expr, error) {
	return g.createArithmetic(TagAdd, shape, left, right)
}

func (g *Graph) CreateSubtract(shape, left, right Expr) (Expr, error) {
	return g.createArithmetic(TagSubtract, shape, left, right)
}

func (g *Graph) CreateMultiply(shape, left, right Expr) (Expr, error) {
	return g.createArithmetic(TagMultiply, shape, left, right)
}

func (g *Graph) CreateDivide(shape, left, right Expr) (Expr, error) {
	return g.createArithmetic(TagDivide, shape, left, right)
}

// arrayDTypeOf maps a scalar-tier dtype to its array-tier counterpart.
func arrayDTypeOf(scalar DType) DType {
	switch scalar {
	case Bool:
		return BoolArray
	case Int64:
		return Int64Array
	case Double:
		return DoubleArray
	case String:
		return StringArray
	case Index:
		return IndexArray
	default:
		return InvalidDType
	}
}

func (g *Graph) describeOperand(e Expr) string {
	if !g.IsArrayExpr(e) {
		return g.TagOf(e).String()
	}
	return g.DTypeOf(e).String()
}

// TableRef returns the StringRef naming an OpenTable expression.
func (g *Graph) TableRef(e Expr) StringRef {
	n := g.nodes[e]
	if n.tag != TagOpenTable {
		panic("ir: TableRef called on non-table expression")
	}
	return n.str
}

// ColumnName returns the StringRef naming a ReadColumn expression's column.
func (g *Graph) ColumnName(e Expr) StringRef {
	n := g.nodes[e]
	if n.tag != TagReadColumn {
		panic("ir: ColumnName called on non-ReadColumn expression")
	}
	return n.str
}

// ColumnTable returns the table operand of a ReadColumn expression.
func (g *Graph) ColumnTable(e Expr) Expr {
	n := g.nodes[e]
	if n.tag != TagReadColumn {
		panic("ir: ColumnTable called on non-ReadColumn expression")
	}
	return n.a
}

// IntValue returns the constant value of an Int64Constant expression.
func (g *Graph) IntValue(e Expr) int64 {
	n := g.nodes[e]
	if n.tag != TagInt64Constant {
		panic("ir: IntValue called on non-Int64Constant expression")
	}
	return n.i64
}

// DoubleValue returns the constant value of a DoubleConstant expression.
func (g *Graph) DoubleValue(e Expr) float64 {
	n := g.nodes[e]
	if n.tag != TagDoubleConstant {
		panic("ir: DoubleValue called on non-DoubleConstant expression")
	}
	return n.f64
}

// Mask returns the boolean-mask operand of a Where expression.
func (g *Graph) Mask(e Expr) Expr {
	n := g.nodes[e]
	if n.tag != TagWhere {
		panic("ir: Mask called on non-Where expression")
	}
	return n.b
}

// Source returns the source-array operand of a Where or Pick expression.
func (g *Graph) Source(e Expr) Expr {
	n := g.nodes[e]
	switch n.tag {
	case TagWhere, TagPick:
		return n.a
	default:
		panic("ir: Source called on an expression with no single source operand")
	}
}

// Indices returns the index-array operand of a Pick expression.
func (g *Graph) Indices(e Expr) Expr {
	n := g.nodes[e]
	if n.tag != TagPick {
		panic("ir: Indices called on non-Pick expression")
	}
	return n.b
}

// Left returns the left operand of a binary (comparison, arithmetic or
// JoinShape) expression.
func (g *Graph) Left(e Expr) Expr {
	return g.nodes[e].a
}

// Right returns the right operand of a binary (comparison, arithmetic or
// JoinShape) expression.
func (g *Graph) Right(e Expr) Expr {
	return g.nodes[e].b
}
