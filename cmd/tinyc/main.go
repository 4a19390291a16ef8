// Command tinyc compiles a single source file to x86-64 assembly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skx/tinyc/compiler"
	"github.com/skx/tinyc/optimizer"
)

var (
	debug   bool
	optFlag string
)

func optLevelFromFlag(s string) (optimizer.Level, error) {
	switch s {
	case "0":
		return optimizer.OptNone, nil
	case "1":
		return optimizer.O1, nil
	case "2":
		return optimizer.O2, nil
	case "3":
		return optimizer.O3, nil
	}
	return optimizer.OptNone, fmt.Errorf("unknown optimization level %q (want 0, 1, 2, or 3)", s)
}

func run(cmd *cobra.Command, args []string) error {
	inPath, outPath := args[0], args[1]

	level, err := optLevelFromFlag(optFlag)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	c := compiler.New(string(src))
	c.SetDebug(debug)
	c.SetOptLevel(level)
	if debug {
		c.Dumps = cmd.OutOrStdout()
	}

	asm, err := c.Compile()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, []byte(asm), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "tinyc <input-source-path> <output-assembly-path>",
		Short:         "Compile a tinyc source file to x86-64 assembly",
		Args:          cobra.ExactArgs(2),
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().BoolVarP(&debug, "debug", "v", false, "print phase-by-phase diagnostics (tokens, AST, symbols, IR, assembly)")
	root.Flags().StringVar(&optFlag, "opt", "2", "optimization level: 0, 1, 2, or 3")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tinyc:", err)
		os.Exit(1)
	}
}
