// main.go - command line client for the clickstream SDK
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(&cli{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
