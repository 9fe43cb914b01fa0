package cmd

import (
	"github.com/spf13/cobra"

	"github.com/replicate/batchget/cmd/manifest"
	"github.com/replicate/batchget/cmd/root"
	"github.com/replicate/batchget/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(manifest.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
