package main

import (
	"os"

	"github.com/cppla/habitcore/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
