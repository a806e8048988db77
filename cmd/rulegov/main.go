package main

import (
	"os"

	"github.com/finsentry/rulegov/cmd/rulegov/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
