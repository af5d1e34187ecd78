package main

import (
	"os"

	"github.com/spapi-finances-pipeline/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
