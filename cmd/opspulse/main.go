package main

import (
	"os"

	"github.com/noobrehan18/OpsPulse/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
