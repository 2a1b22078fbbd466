// Command teenyat assembles and runs TeenyAT programs. It accepts a
// single source or ROM file: a .tat extension is assembled first, a
// .rom extension is loaded directly, and anything else is rejected.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emmgame221/teenyat"
	"github.com/spf13/cobra"
)

// ErrInvalidInput reports an input file whose extension is neither .tat
// nor .rom.
var ErrInvalidInput = errors.New("invalid input: expected a .tat or .rom file")

func main() {
	var debugMode bool
	var assembleOnly bool

	root := &cobra.Command{
		Use:   "teenyat <file>",
		Short: "Assemble and run TeenyAT programs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], debugMode, assembleOnly)
		},
	}
	root.Flags().BoolVarP(&debugMode, "debug", "d", false, "dump the program image and step through it interactively")
	root.Flags().BoolVarP(&assembleOnly, "assemble-only", "a", false, "assemble to a .rom file next to the source and stop")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, debugMode, assembleOnly bool) error {
	var words []teenyat.Word
	var prog teenyat.Program

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tat":
		assembled, err := teenyat.AssembleFile(path)
		if err != nil {
			return err
		}
		prog = assembled
		words = assembled.Words
		if assembleOnly {
			romPath := strings.TrimSuffix(path, ext) + ".rom"
			return writeROMFile(romPath, words)
		}
	case ".rom":
		decoded, err := readROMFile(path)
		if err != nil {
			return err
		}
		words = decoded
		prog = teenyat.Program{Words: words}
	default:
		return ErrInvalidInput
	}

	mem := teenyat.NewMemory()
	if err := mem.LoadWords(words); err != nil {
		return err
	}

	if debugMode {
		fmt.Print(prog.Disassemble())
	}

	cpu := teenyat.NewCPU(mem)

	var runErr error
	if debugMode {
		runErr = cpu.RunDebug(prog)
	} else {
		runErr = cpu.Run()
	}
	if runErr != nil {
		return runErr
	}

	os.Exit(int(cpu.ExitCode()))
	return nil
}

func writeROMFile(path string, words []teenyat.Word) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return teenyat.WriteROM(f, words)
}

func readROMFile(path string) ([]teenyat.Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return teenyat.ReadROM(f)
}
