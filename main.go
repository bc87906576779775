package main

import (
	"fmt"
	"os"

	"github.com/arctir/kmux/cmd"
)

func main() {
	kmuxCmd := cmd.SetupCLI()
	if err := kmuxCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
