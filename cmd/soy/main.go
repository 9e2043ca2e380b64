// Command soy renders and checks closure-style templates.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %+v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}
