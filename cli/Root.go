// Package cli implements the command line interface for running
// experiments
package cli

import (
	"github.com/spf13/cobra"
)

var (
	seed    uint64
	steps   uint
	dataDir string
)

// NewRootCommand returns the root command of the command line
// interface. Experiments on concrete environments are registered as
// subcommands.
func NewRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "dqn",
		Short: "Run deep Q-learning experiments",
	}
	rootCommand.PersistentFlags().Uint64Var(&seed, "seed", 42,
		"Seed for the environment and agent")
	rootCommand.PersistentFlags().UintVarP(&steps, "steps", "n", 100_000,
		"Number of environmental steps to run")
	rootCommand.PersistentFlags().StringVarP(&dataDir, "data", "d", "results",
		"Directory in which experiment data is saved")

	rootCommand.AddCommand(newCartpoleCommand())
	return rootCommand
}
