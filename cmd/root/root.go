package root

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/batchget/pkg/cli"
	"github.com/replicate/batchget/pkg/config"
	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/optname"
)

const rootLongDesc = `
batchget

batchget downloads a batch of URLs over HTTP(S) and reports the outcome of every download once the whole batch is
done. A failed download never stops the rest of the batch.

In 'parallel' mode (the default) every download starts at once. In 'queue' mode downloads run one at a time in the
order given, and --try-timeout can give each of them a shorter timeout than --timeout.

Each download is streamed straight into its output: a file in --output-dir named after the Content-Disposition
filename or the last segment of the URL, an extracted tar archive, an S3 object, stdout, or nowhere at all. Set
--max-size to abort any download that grows past a limit; partial output is discarded.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchget [flags] <url>...",
		Short: "batchget",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE: runRootCMD,
		Args: cobra.MinimumNArgs(1),
		Example: `  batchget https://example.com/a.bin https://example.com/b.bin
  batchget --mode queue --try-timeout 30s --max-size 1G -d weights/ https://example.com/model.tar
  batchget -o tar -d weights/ https://example.com/model.tar.gz`,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true
	return Execute(cmd.Context(), args)
}

// Execute downloads urls as one batch using the current configuration. It
// returns an error if any download failed.
func Execute(ctx context.Context, urls []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if path := viper.GetString(optname.PIDFile); path != "" {
		pidFile, err := cli.NewPIDFile(path)
		if err != nil {
			return fmt.Errorf("error opening pid file %s: %w", path, err)
		}
		if err := pidFile.Acquire(); err != nil {
			return fmt.Errorf("error acquiring lock on %s: %w", path, err)
		}
		defer func() {
			if err := pidFile.Release(); err != nil {
				logger := logging.GetLogger()
				logger.Warn().Err(err).Str("pid_file", path).Msg("Release")
			}
		}()
	}

	getter, err := cli.NewGetter(ctx)
	if err != nil {
		return err
	}
	_, err = getter.DownloadBatch(ctx, urls)
	return err
}
