// The main package for the pagescope executable.
package main

import (
	"github.com/pagescope/pagescope/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
