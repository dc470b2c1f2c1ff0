package main

import (
	"os"

	"github.com/Leonel308/illustra-settlement/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
