package main

import (
	"fmt"
	"os"

	"github.com/errprop/errprop/cli/internal/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
