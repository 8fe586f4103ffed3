package main

import (
	"os"

	"github.com/jmellor/marginboard/cmd/marginboard/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
