package main

import (
	"os"

	"rlworks.org/dqn/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
