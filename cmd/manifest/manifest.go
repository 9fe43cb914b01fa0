package manifest

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replicate/batchget/cmd/root"
	"github.com/replicate/batchget/pkg/cli"
)

const longDesc = `
'manifest' takes a manifest file as input (use '-' for stdin) and downloads every URL listed in it as a single batch.

The manifest is a newline-separated list of URLs. Blank lines and lines starting with '#' are ignored. A URL that
is listed twice is downloaded twice.
e.g.
https://example.com/file1.txt
https://example.com/file2.txt
`

const manifestExamples = `
  batchget manifest urls.txt

  batchget manifest - < urls.txt

  cat urls.txt | batchget manifest --mode queue -
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manifest [flags] <manifest-file>",
		Short:   "download every URL listed in a manifest file",
		Long:    longDesc,
		Args:    cobra.ExactArgs(1),
		RunE:    runManifestCMD,
		Example: manifestExamples,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	return cmd
}

func runManifestCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	manifestPath := args[0]
	file, err := cli.OpenManifest(manifestPath)
	if err != nil {
		return err
	}
	defer file.Close()
	urls, err := cli.ParseManifest(file)
	if err != nil {
		return fmt.Errorf("error processing manifest file %s: %w", manifestPath, err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("manifest file %s lists no URLs", manifestPath)
	}
	return root.Execute(cmd.Context(), urls)
}
