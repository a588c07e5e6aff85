// Command tabpipe inspects the passenger dataset layout and runs the table
// pipelines declared in a settings file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
