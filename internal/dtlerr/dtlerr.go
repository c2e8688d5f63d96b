// Package dtlerr defines the error kinds and source-span reporting used
// throughout the compiler core.
package dtlerr

import (
	"fmt"
	"strings"
)

// Kind identifies the category of a compiler error, per spec section 7.
type Kind string

const (
	Lexical        Kind = "LexicalError"
	Syntax         Kind = "SyntaxError"
	UnresolvedCol  Kind = "UnresolvedColumn"
	UnresolvedTbl  Kind = "UnresolvedTable"
	AmbiguousName  Kind = "AmbiguousName"
	TypeMismatch   Kind = "TypeMismatch"
	ShapeMismatch  Kind = "ShapeMismatch"
	Import         Kind = "ImportError"
	NotImplemented Kind = "NotImplemented"
	GraphFull      Kind = "GraphFull"
	OutOfMemory    Kind = "OutOfMemory"
)

// Location is a single point in source: byte offset plus 1-based line/column.
type Location struct {
	File   string
	Offset int
	Line   int
	Column int
}

// Span is the tightest enclosing range for an AST node or error.
type Span struct {
	Start Location
	End   Location
}

// Error is a compiler error carrying a kind, message, and source span.
type Error struct {
	Kind    Kind
	Message string
	Span    Span
	Source  string // the source line the span starts on, if known
}

func New(kind Kind, span Span, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Span:    span,
	}
}

// WithSource attaches the source line text for caret rendering.
func (e *Error) WithSource(line string) *Error {
	e.Source = line
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Kind, e.Message)
	if e.Span.Start.File != "" {
		fmt.Fprintf(&sb, "\n  at %s:%d:%d", e.Span.Start.File, e.Span.Start.Line, e.Span.Start.Column)
		if e.Source != "" {
			prefix := fmt.Sprintf("  %d | ", e.Span.Start.Line)
			fmt.Fprintf(&sb, "\n%s%s\n", prefix, e.Source)
			sb.WriteString(strings.Repeat(" ", len(prefix)))
			if e.Span.Start.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Span.Start.Column-1))
			}
			sb.WriteString("^")
		}
	}
	return sb.String()
}

// Narrow replaces the error's span with a tighter enclosing span, per
// spec section 7 ("errors shrink their span to the narrowest enclosing
// AST node during propagation").
func (e *Error) Narrow(span Span) *Error {
	e.Span = span
	return e
}
