package main

import (
	"os"

	"github.com/ppiankov/skytap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
