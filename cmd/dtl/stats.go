package main

import (
	"fmt"
	"os"

	"dtl/internal/dtio"
	"dtl/internal/explain"
)

func runStats(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dtl stats <script.dtl>")
	}
	g, _, tprog, lprog, err := compileScript(args[0], dtio.NewCSVImporter())
	if err != nil {
		return err
	}
	explain.Stats(os.Stdout, g, tprog, lprog)
	return nil
}
