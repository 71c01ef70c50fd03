// Command p13nctl inspects the personalization deployment: the resolved
// environment, generated names, stream filters, workflow definitions and
// canaries. It never deploys.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd(os.LookupEnv).Execute()
}
