package cmd

import (
	"github.com/spf13/cobra"
)

var kmuxCmd = &cobra.Command{
	Use:   "kmux",
	Short: "A teaching microkernel for a simulated single-CPU x86-64 machine.",
	Run:   runKmux,
}

var runCmd = &cobra.Command{
	Use:   "run [program]",
	Short: "Boot the machine and run one of the bundled user programs.",
	Run:   runRun,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the bundled user programs.",
	Run:     runList,
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Show details about the host the machine is simulated on.",
	Run:   runHost,
}
