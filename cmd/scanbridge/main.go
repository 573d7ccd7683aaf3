package main

import (
	"os"

	"github.com/quantlab/scanbridge/cmd/scanbridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
