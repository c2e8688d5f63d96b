package main

import (
	"fmt"
	"os"

	"dtl/internal/dtio"
	"dtl/internal/explain"
)

func runExplain(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dtl explain <script.dtl>")
	}
	g, _, _, lprog, err := compileScript(args[0], dtio.NewCSVImporter())
	if err != nil {
		return err
	}
	fmt.Printf("-- graph (%d expressions) --\n", g.NumExpressions())
	explain.Graph(os.Stdout, g)
	fmt.Println("-- program --")
	explain.Program(os.Stdout, lprog)
	return nil
}
