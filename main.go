package main

import (
	"fmt"
	"os"

	"github.com/lookbusy1344/riscv-emulator/config"
	"github.com/lookbusy1344/riscv-emulator/vm"
)

// Thin demonstration driver: load a raw bare-metal image at the reset
// vector and run it. Anything richer (ELF loading, debug servers,
// option parsing) belongs to an embedding simulator.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <image.bin> [config.toml]\n", os.Args[0])
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	if len(os.Args) > 2 {
		loaded, err := config.LoadFrom(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	machine, err := vm.NewVM(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	image, err := os.ReadFile(os.Args[1]) // #nosec G304 -- user-supplied image
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := machine.Mem.LoadBytes(cfg.Execution.ResetVector, image); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := machine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintln(os.Stderr, machine.DumpState())
		os.Exit(1)
	}
	fmt.Println(machine.DumpState())
}
