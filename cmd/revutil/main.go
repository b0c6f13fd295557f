package main

import (
	"os"

	"github.com/reversefold/util/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
