package main

import (
	"os"

	"github.com/replicate/batchget/cmd"
	"github.com/replicate/batchget/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()

	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
