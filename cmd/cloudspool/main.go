package main

import (
	"os"

	"github.com/cloudspool/cloudspool/cmd/cloudspool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
