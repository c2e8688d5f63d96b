// Package scope implements the ordered, namespace-aware name resolution
// environment the AST-to-IR translator threads through table and
// expression translation (spec section 5). A Scope is an immutable value:
// every mutating operation returns a new Scope rather than mutating the
// receiver, so a caller can fork a Scope across two branches of a
// translation (e.g. the two sides of a join) without one side's bindings
// leaking into the other's.
package scope

import (
	"fmt"

	"dtl/internal/dtlerr"
	"dtl/internal/ir"
)

type entry struct {
	name      string
	namespace string // "" means unqualified / no namespace
	expr      ir.Expr
}

// Scope is an ordered list of (name, namespace) -> expression bindings,
// plus the shape every bound expression in it is understood to share (the
// row set of the table expression this scope was built for).
type Scope struct {
	entries []entry
	shape   ir.Expr
}

// Empty returns a scope with no bindings and no shape, the starting point
// for translating a FROM-less context.
func Empty() Scope {
	return Scope{shape: ir.InvalidExpr}
}

// WithShape returns a copy of s with its shape set to shape. Used once a
// table expression's shape is known, before columns are added.
func (s Scope) WithShape(shape ir.Expr) Scope {
	dup := s.Duplicate()
	dup.shape = shape
	return dup
}

// Shape returns the expression every binding in s is understood to share.
func (s Scope) Shape() ir.Expr {
	return s.shape
}

// Duplicate returns an independent copy of s: appending to the copy never
// affects s, and vice versa.
func (s Scope) Duplicate() Scope {
	out := Scope{shape: s.shape}
	if len(s.entries) > 0 {
		out.entries = make([]entry, len(s.entries))
		copy(out.entries, s.entries)
	}
	return out
}

// AddOrReplace returns a copy of s binding name (optionally qualified by
// namespace) to e, replacing any existing binding with the same name and
// namespace. Used for a SELECT statement's own output bindings, where a
// later column is allowed to shadow an earlier one of the same name.
func (s Scope) AddOrReplace(name, namespace string, e ir.Expr) Scope {
	out := s.Duplicate()
	for i := range out.entries {
		if out.entries[i].name == name && out.entries[i].namespace == namespace {
			out.entries[i].expr = e
			return out
		}
	}
	out.entries = append(out.entries, entry{name: name, namespace: namespace, expr: e})
	return out
}

// AddUnchecked returns a copy of s with a new binding appended unconditionally,
// even if name/namespace already resolves to something else. Used to union
// a join's two sides into one scope, where both sides may share column
// names distinguished only by namespace.
func (s Scope) AddUnchecked(name, namespace string, e ir.Expr) Scope {
	out := s.Duplicate()
	out.entries = append(out.entries, entry{name: name, namespace: namespace, expr: e})
	return out
}

// Lookup resolves name, optionally qualified by namespace, to a bound
// expression. If namespace is "" and name is bound to more than one
// distinct expression, Lookup returns an AmbiguousName error (the same
// expression bound under several namespaces is not ambiguous); the caller
// (source syntax `alias.column`) must supply namespace to disambiguate.
func (s Scope) Lookup(name, namespace string) (ir.Expr, error) {
	if namespace != "" {
		for i := len(s.entries) - 1; i >= 0; i-- {
			e := s.entries[i]
			if e.name == name && e.namespace == namespace {
				return e.expr, nil
			}
		}
		return ir.InvalidExpr, &dtlerr.Error{
			Kind:    dtlerr.UnresolvedCol,
			Message: fmt.Sprintf("no column %q in table %q", name, namespace),
		}
	}

	var match ir.Expr
	found := false
	ambiguous := false
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.name != name {
			continue
		}
		if found && e.expr != match {
			ambiguous = true
		}
		if !found {
			match = e.expr
			found = true
		}
	}
	if !found {
		return ir.InvalidExpr, &dtlerr.Error{
			Kind:    dtlerr.UnresolvedCol,
			Message: fmt.Sprintf("no column %q in scope", name),
		}
	}
	if ambiguous {
		return ir.InvalidExpr, &dtlerr.Error{
			Kind:    dtlerr.AmbiguousName,
			Message: fmt.Sprintf("column %q is ambiguous; qualify it with a table alias", name),
		}
	}
	return match, nil
}

// FilterByNamespace returns the sub-scope with every binding qualified by
// namespace removed; bindings under any other namespace (including "") are
// kept, still qualified. Used to drop a table's columns from the globals
// scope before re-adding its replacement under the same name (spec
// section 4.3.4, the `table_name = <expr>` statement).
func (s Scope) FilterByNamespace(namespace string) Scope {
	out := Scope{shape: s.shape}
	for _, e := range s.entries {
		if e.namespace != namespace {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// PickNamespace returns the sub-scope containing only bindings qualified by
// namespace, with the namespace stripped so they become unqualified names
// in the result. Used to resolve a bare table name against the globals
// scope, where each assigned table's columns are bound under its name.
func (s Scope) PickNamespace(namespace string) Scope {
	out := Scope{shape: s.shape}
	for _, e := range s.entries {
		if e.namespace == namespace {
			out.entries = append(out.entries, entry{name: e.name, namespace: "", expr: e.expr})
		}
	}
	return out
}

// Names returns the column name of every binding in s, without its
// namespace, in binding order.
func (s Scope) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.name)
	}
	return names
}

// Entry is one exported (name, namespace, expression) binding, in binding
// order.
type Entry struct {
	Name      string
	Namespace string
	Expr      ir.Expr
}

// Entries returns every binding in s, in binding order. The translator
// walks these to build a derived scope (e.g. a SELECT's output bindings or
// a join's concatenated columns) without reaching into Scope's internals.
func (s Scope) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = Entry{Name: e.name, Namespace: e.namespace, Expr: e.expr}
	}
	return out
}

// Requalify returns a copy of s with every binding's namespace set to
// namespace, discarding whatever namespace (if any) it had. Used when a
// table binding introduces an alias (`FROM orders AS o`) or when a bare
// table reference's own name becomes the implicit namespace later column
// references qualify against (spec section 4.3.2's join-side compilation).
func (s Scope) Requalify(namespace string) Scope {
	out := Scope{shape: s.shape}
	if len(s.entries) > 0 {
		out.entries = make([]entry, len(s.entries))
		for i, e := range s.entries {
			out.entries[i] = entry{name: e.name, namespace: namespace, expr: e.expr}
		}
	}
	return out
}
