// Package explain renders a compiled script's IR graph and lowered
// command program for human inspection, backing the `dtl explain` and
// `dtl stats` subcommands.
//
// Grounded on sentra/internal/formatter/formatter.go's indent-tracking
// printer, recast here from re-printing Sentra source back to itself into
// dumping IR expressions and lowered commands. IsTerminal exposes
// sentra/internal/repl/repl.go's terminal check; Graph, Program and Stats
// do not consult it, so their output is the same on a terminal or a pipe.
package explain

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/kr/text"
	"github.com/mattn/go-isatty"

	"dtl/internal/ir"
	"dtl/internal/lower"
	"dtl/internal/translate"
)

// Graph writes one line per expression in g, in index order: its index,
// variant tag, dtype (array expressions only), and dependency list — the
// usual way an expression arena is dumped for debugging.
func Graph(w io.Writer, g *ir.Graph) {
	g.ForEachExpression(func(e ir.Expr) {
		line := fmt.Sprintf("%4d  %-14s", int(e), g.TagOf(e).String())
		if g.IsArrayExpr(e) {
			line += fmt.Sprintf(" %-12s", g.DTypeOf(e).String())
		} else {
			line += strings.Repeat(" ", 13)
		}
		if deps := g.Dependencies(e); len(deps) > 0 {
			line += " <- " + joinExprs(deps)
		}
		fmt.Fprintln(w, line)
	})
}

func joinExprs(es []ir.Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = fmt.Sprintf("%d", int(e))
	}
	return strings.Join(parts, ", ")
}

// Program writes lprog's command list, one command per line plus a
// kr/pretty dump of its fields indented under it with kr/text, the same
// shape a REPL uses to print a returned value.
func Program(w io.Writer, lprog *lower.Program) {
	fmt.Fprintf(w, "program: %d commands, %d trace manifest entries\n",
		len(lprog.Commands), len(lprog.TraceManifest))
	for i, cmd := range lprog.Commands {
		fmt.Fprintf(w, "%4d  %T\n", i, cmd)
		fmt.Fprint(w, text.Indent(pretty.Sprint(cmd), "        "))
		fmt.Fprintln(w)
	}
}

// Stats prints arena/graph/program statistics with go-humanize's
// comma-grouping, the way a CLI reports resource usage rather than
// printing raw counters.
func Stats(w io.Writer, g *ir.Graph, tprog *translate.Program, lprog *lower.Program) {
	row := func(label string, n int) {
		fmt.Fprintf(w, "%-24s %s\n", label, humanize.Comma(int64(n)))
	}
	row("expressions", g.NumExpressions())
	row("exports", len(tprog.Exports))
	row("trace snapshots", len(tprog.Traces))
	row("commands", len(lprog.Commands))
	row("trace manifest entries", len(lprog.TraceManifest))
}

// IsTerminal reports whether fd is attached to an interactive terminal,
// the same check sentra's REPL prompt makes before deciding how to format
// its output.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
