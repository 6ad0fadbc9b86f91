package main

import (
	"os"

	"github.com/cargoroute/tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
