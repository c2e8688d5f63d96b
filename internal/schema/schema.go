// Package schema represents the ordered column list a table expression
// produces: a sequence of (name, dtype) pairs, per spec section 5.
package schema

import (
	"fmt"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
)

// Column names one output column of a table expression.
type Column struct {
	Name  string
	DType ir.DType
}

// Schema is an ordered list of columns. Order is significant: it is the
// column order a CSV or SQL exporter writes.
type Schema struct {
	columns []Column
}

// New builds a Schema from columns in the given order. Column names must be
// unique; New returns an AmbiguousName error otherwise.
func New(columns ...Column) (Schema, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c.Name]; dup {
			return Schema{}, &dtlerr.Error{
				Kind:    dtlerr.AmbiguousName,
				Message: fmt.Sprintf("duplicate column name %q in schema", c.Name),
			}
		}
		seen[c.Name] = struct{}{}
	}
	out := make([]Column, len(columns))
	copy(out, columns)
	return Schema{columns: out}, nil
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Columns returns the schema's columns in order. The returned slice must
// not be mutated by the caller.
func (s Schema) Columns() []Column { return s.columns }

// Lookup returns the column named name and its index, or ok=false if no
// such column exists.
func (s Schema) Lookup(name string) (col Column, index int, ok bool) {
	for i, c := range s.columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// Concat returns the schema produced by appending other's columns after
// s's. A name present in both is an AmbiguousName error, as in New.
func (s Schema) Concat(other Schema) (Schema, error) {
	combined := make([]Column, 0, len(s.columns)+len(other.columns))
	combined = append(combined, s.columns...)
	combined = append(combined, other.columns...)
	return New(combined...)
}
