package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
)

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(Column{Name: "id", DType: ir.Int64}, Column{Name: "id", DType: ir.String})
	require.Error(t, err)
	derr, ok := err.(*dtlerr.Error)
	require.True(t, ok)
	assert.Equal(t, dtlerr.AmbiguousName, derr.Kind)
}

func TestLookupPreservesOrder(t *testing.T) {
	s, err := New(
		Column{Name: "id", DType: ir.Int64},
		Column{Name: "name", DType: ir.String},
	)
	require.NoError(t, err)

	col, idx, ok := s.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, ir.String, col.DType)

	_, _, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestConcatRejectsOverlap(t *testing.T) {
	left, err := New(Column{Name: "id", DType: ir.Int64})
	require.NoError(t, err)
	right, err := New(Column{Name: "id", DType: ir.Int64})
	require.NoError(t, err)

	_, err = left.Concat(right)
	assert.Error(t, err, "joining two schemas sharing a column name must fail without aliasing")
}

func TestConcatOrdersLeftThenRight(t *testing.T) {
	left, err := New(Column{Name: "id", DType: ir.Int64})
	require.NoError(t, err)
	right, err := New(Column{Name: "name", DType: ir.String})
	require.NoError(t, err)

	combined, err := left.Concat(right)
	require.NoError(t, err)
	require.Equal(t, 2, combined.Len())
	assert.Equal(t, "id", combined.Columns()[0].Name)
	assert.Equal(t, "name", combined.Columns()[1].Name)
}
