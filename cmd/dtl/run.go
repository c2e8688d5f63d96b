package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"dtl/internal/dtio"
	"dtl/internal/eval"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dsn := fs.String("dsn", "", "driver|dsn to use a SQL Importer/Exporter pair instead of CSV")
	traceDir := fs.String("trace", "", "directory to write a trace manifest into (\"auto\" to generate one)")
	traceWS := fs.String("trace-ws", "", "websocket address to additionally mirror the trace to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dtl run <script.dtl> [--dsn driver|dsn] [--trace dir] [--trace-ws addr]")
	}
	path := fs.Arg(0)
	// Flags may also follow the script path.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: dtl run <script.dtl> [--dsn driver|dsn] [--trace dir] [--trace-ws addr]")
	}

	var importer eval.Importer
	var exporter eval.Exporter
	if *dsn != "" {
		driver, conn, ok := strings.Cut(*dsn, "|")
		if !ok {
			return fmt.Errorf("--dsn must look like driver|dsn, got %q", *dsn)
		}
		imp, err := dtio.NewSQLImporter(driver, conn)
		if err != nil {
			return err
		}
		exp, err := dtio.NewSQLExporter(driver, conn)
		if err != nil {
			return err
		}
		importer, exporter = imp, exp
	} else {
		importer, exporter = dtio.NewCSVImporter(), dtio.NewCSVExporter()
	}

	g, source, tprog, lprog, err := compileScript(path, importer)
	if err != nil {
		return err
	}

	var tracer eval.Tracer
	if *traceDir != "" {
		dir := *traceDir
		if dir == "auto" {
			dir = dtio.TraceDirName()
			fmt.Fprintf(os.Stderr, "dtl: tracing to %s\n", dir)
		}
		mt, err := dtio.NewManifestTracer(dir)
		if err != nil {
			return err
		}
		defer mt.Flush()

		var full dtio.FullTracer = mt
		if *traceWS != "" {
			ws, err := dtio.NewWSTracer(full, *traceWS)
			if err != nil {
				return err
			}
			defer ws.Close()
			full = ws
		}
		tracer = full
		importer = dtio.NewTracingImporter(importer, full)
		exporter = dtio.NewTracingExporter(exporter, full)
	}

	src := eval.Source{Text: source, Filename: path}
	return eval.Run(g, tprog, lprog, src, importer, exporter, tracer)
}
