// Command memctl is the entry point for the memctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/memctl/memctl/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
