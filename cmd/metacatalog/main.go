package main

import (
	"os"

	"github.com/VForWaTer/metacatalog-api/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
