// Command e2ecore drives interactive command line programs from scripts.
package main

import (
	"os"

	"github.com/opencode-ai/e2ecore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
