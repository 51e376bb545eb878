// Command vaultsearch is a local hybrid search tool for markdown
// vaults.
package main

import (
	"fmt"
	"os"

	"github.com/vaultsearch/vaultsearch/cmd/vaultsearch/cmd"
	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		os.Exit(errors.ExitCode(err))
	}
}
