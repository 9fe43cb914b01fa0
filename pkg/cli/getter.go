package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	batchget "github.com/replicate/batchget/pkg"
	"github.com/replicate/batchget/pkg/client"
	"github.com/replicate/batchget/pkg/config"
	"github.com/replicate/batchget/pkg/download"
	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/optname"
	"github.com/replicate/batchget/pkg/sink"
)

// NewGetter builds a Getter from flags and environment. Commands should not
// read download settings from viper anywhere else.
func NewGetter(ctx context.Context) (*batchget.Getter, error) {
	mode, err := download.ParseMode(viper.GetString(optname.Mode))
	if err != nil {
		return nil, err
	}
	maxSize, err := config.ParseMaxSize(viper.GetString(optname.MaxSize))
	if err != nil {
		return nil, err
	}
	header, err := config.HeadersFromFlags(viper.GetStringSlice(optname.Header))
	if err != nil {
		return nil, err
	}
	clientOpts, err := ClientOptions(ctx)
	if err != nil {
		return nil, err
	}
	newSink, err := SinkFactory(ctx, viper.GetString(optname.Output))
	if err != nil {
		return nil, err
	}

	logger := logging.GetLogger()
	logger.Debug().
		Str("mode", string(mode)).
		Str("output", viper.GetString(optname.Output)).
		Int64("max_size", maxSize).
		Int("retries", clientOpts.MaxRetries).
		Int("cache_hosts", len(clientOpts.CacheHosts)).
		Msg("Config")

	return &batchget.Getter{
		Config: download.Config{
			Mode: mode,
			Options: download.Options{
				Timeout:    viper.GetDuration(optname.Timeout),
				TryTimeout: viper.GetDuration(optname.TryTimeout),
				MaxSize:    maxSize,
				NewSink:    newSink,
				Header:     header,
				Client:     client.NewHTTPClient(clientOpts),
			},
		},
		MetricsFile: viper.GetString(optname.MetricsFile),
	}, nil
}

func ClientOptions(ctx context.Context) (client.Options, error) {
	resolveOverrides, err := config.ResolveOverridesToMap(viper.GetStringSlice(optname.Resolve))
	if err != nil {
		return client.Options{}, fmt.Errorf("error parsing --%s: %w", optname.Resolve, err)
	}
	cacheHosts := viper.GetStringSlice(optname.CacheHosts)
	if srvName := viper.GetString(optname.CacheHostsSRVName); srvName != "" {
		cacheHosts, err = LookupCacheHosts(ctx, srvName)
		if err != nil {
			return client.Options{}, fmt.Errorf("error looking up cache hosts from %s: %w", srvName, err)
		}
	}
	return client.Options{
		MaxRetries:       viper.GetInt(optname.Retries),
		ConnectTimeout:   viper.GetDuration(optname.ConnTimeout),
		MaxConnPerHost:   viper.GetInt(optname.MaxConnPerHost),
		ForceHTTP2:       viper.GetBool(optname.ForceHTTP2),
		ResolveOverrides: resolveOverrides,
		CacheHosts:       cacheHosts,
		CacheURIPrefixes: viper.GetStringSlice(optname.CacheURIPrefixes),
	}, nil
}

// SinkFactory returns the factory for an --output value.
func SinkFactory(ctx context.Context, output string) (sink.Factory, error) {
	dir := viper.GetString(optname.OutputDir)
	force := viper.GetBool(optname.Force)

	switch output {
	case optname.OutputFile, "":
		return sink.FileFactory(dir, force), nil
	case optname.OutputNull:
		return sink.NullFactory, nil
	case optname.OutputStdout:
		return sink.WriterFactory(os.Stdout), nil
	case optname.OutputTar:
		return sink.TarFactory(dir, force), nil
	case optname.OutputS3:
		cfg := sink.S3Config{
			Bucket:          viper.GetString(optname.S3Bucket),
			Prefix:          viper.GetString(optname.S3Prefix),
			Region:          viper.GetString(optname.S3Region),
			Endpoint:        viper.GetString(optname.S3Endpoint),
			AccessKeyID:     viper.GetString(optname.S3AccessKeyID),
			SecretAccessKey: viper.GetString(optname.S3SecretAccessKey),
			UploadTimeout:   viper.GetDuration(optname.Timeout),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("--%s is required with --%s %s", optname.S3Bucket, optname.Output, optname.OutputS3)
		}
		api, err := sink.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sink.S3Factory(api, cfg), nil
	}
	return nil, fmt.Errorf("unknown output: %s", output)
}
