package main

import (
	"fmt"
	"os"

	"dtl/internal/dtio"
	"dtl/internal/ir"
	"dtl/internal/lexer"
	"dtl/internal/lower"
	"dtl/internal/parser"
	"dtl/internal/translate"
)

// compileScript lexes, parses, translates, and lowers the script at path,
// collecting the graph once between translation and lowering with roots
// equal to every export and trace column (spec section 5's resource
// policy), so run/explain/stats share one front end.
func compileScript(path string, importer translate.SchemaProvider) (g *ir.Graph, source string, tprog *translate.Program, lprog *lower.Program, err error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, "", nil, nil, err
	}
	source = string(body)

	lex := lexer.New(source, path)
	tokens, err := lex.ScanTokens()
	if err != nil {
		return nil, source, nil, nil, err
	}

	prog, err := parser.Parse(tokens)
	if err != nil {
		return nil, source, nil, nil, err
	}

	g = ir.NewGraph(0, 0)
	tprog, err = translate.Translate(prog, importer, g)
	if err != nil {
		return g, source, nil, nil, err
	}

	for _, exp := range tprog.Exports {
		for _, e := range exp.Columns {
			g.MarkRoot(e)
		}
	}
	for _, tr := range tprog.Traces {
		for _, e := range tr.Columns {
			g.MarkRoot(e)
		}
	}
	applyRemap(tprog, g.Collect())

	lprog = lower.Lower(g, tprog)
	return g, source, tprog, lprog, nil
}

// applyRemap translates every expression reference tprog holds through
// remap, the table Graph.Collect returns, since translate.Program's
// ExportRecord/TraceSnapshot columns are the only Exprs a caller outside
// internal/ir keeps across a Collect call.
func applyRemap(tprog *translate.Program, remap map[ir.Expr]ir.Expr) {
	for i := range tprog.Exports {
		for j, e := range tprog.Exports[i].Columns {
			tprog.Exports[i].Columns[j] = remap[e]
		}
	}
	for i := range tprog.Traces {
		for j, e := range tprog.Traces[i].Columns {
			tprog.Traces[i].Columns[j] = remap[e]
		}
	}
}

func runCompile(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dtl compile <script.dtl>")
	}
	_, _, _, _, err := compileScript(args[0], dtio.NewCSVImporter())
	return err
}
