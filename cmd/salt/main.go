package main

import (
	"os"

	"github.com/saltastro/goastrosalt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
