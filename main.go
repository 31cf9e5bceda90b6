package main

import (
	"fmt"
	"os"

	"github.com/EasterCompany/dex-scribe-service/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
