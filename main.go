// The main package for the analytica executable.
package main

import (
	"github.com/JakeFAU/analytica/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
