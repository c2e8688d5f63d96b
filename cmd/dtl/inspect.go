package main

import (
	"flag"
	"fmt"
	"os"

	"dtl/internal/inspect"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	cell := fs.String("cell", "", "output.column[row] to trace provenance for")
	at := fs.Int("at", 0, "source line to show a trace snapshot for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dtl inspect <manifest-dir> [--cell name.col[row]] [--at line]")
	}
	dir := fs.Arg(0)
	// Flags may also follow the manifest directory.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: dtl inspect <manifest-dir> [--cell name.col[row]] [--at line]")
	}

	m, err := inspect.Load(dir)
	if err != nil {
		return err
	}

	switch {
	case *cell != "":
		output, column, row, err := inspect.ParseCell(*cell)
		if err != nil {
			return err
		}
		chain, err := m.CellSources(output, column, row)
		if err != nil {
			return err
		}
		inspect.PrintChain(os.Stdout, chain)
	case *at != 0:
		view, err := m.TraceAt(*at)
		if err != nil {
			return err
		}
		inspect.PrintView(os.Stdout, view)
	default:
		m.RunInteractive(os.Stdin, os.Stdout)
	}
	return nil
}
