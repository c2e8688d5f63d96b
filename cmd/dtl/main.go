// Command dtl compiles and runs DTL scripts: declarative table-transform
// pipelines that read named inputs, derive new tables via SELECT/JOIN/
// WHERE, and write named outputs while recording a fine-grained trace of
// every output cell's provenance.
//
// Grounded on sentra/cmd/sentra/main.go's alias-dispatch table, trimmed to
// the subcommands a compiler-plus-evaluator CLI needs instead of a
// general-purpose scripting language's run/repl/build/test/lint surface.
package main

import (
	"fmt"
	"os"
)

var commandAliases = map[string]string{
	"c": "compile",
	"r": "run",
	"e": "explain",
	"s": "stats",
	"i": "inspect",
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches a parsed argument list and returns the process exit code.
// Split out from main so the testscript harness in main_test.go can invoke
// the whole CLI in-process as a subcommand of the test binary.
func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}
	rest := args[1:]

	var err error
	switch cmd {
	case "compile":
		err = runCompile(rest)
	case "run":
		err = runRun(rest)
	case "explain":
		err = runExplain(rest)
	case "stats":
		err = runStats(rest)
	case "inspect":
		err = runInspect(rest)
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		usage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "dtl: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dtl <command> [arguments]

commands:
  compile <script.dtl>
      lex, parse, translate, and lower a script; print any error and exit
      nonzero, print nothing and exit 0 on success

  run <script.dtl> [--dsn driver|dsn] [--trace dir] [--trace-ws addr]
      compile and evaluate a script against its IMPORT/EXPORT paths.
      --dsn switches the Importer/Exporter from CSV files to a SQL
      driver|dsn pair (e.g. --dsn sqlite3|./warehouse.db); bare IMPORT/
      EXPORT paths are treated as table names against that connection.
      --trace additionally records a provenance manifest into dir (pass
      "auto" to generate a timestamped directory name); --trace-ws also
      mirrors every trace event to a websocket listener.

  explain <script.dtl>
      print the compiled IR graph and lowered command program

  stats <script.dtl>
      print arena/graph/program statistics

  inspect <manifest-dir> [--cell name.col[row]] [--at line]
      query a trace manifest written by 'run --trace'; with neither flag,
      start an interactive session`)
}
