// The main package for the shopindex executable.
package main

import (
	"github.com/shopindex/shopindex/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
