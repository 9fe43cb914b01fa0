package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/optname"
)

const envPrefix = "BATCHGET"

// DotEnvFiles are loaded, in order, before the environment is read. Later files
// override earlier ones.
var DotEnvFiles = []string{".env", ".env.local"}

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().String(optname.Mode, "parallel", "Scheduling mode for the batch: parallel or queue")
	cmd.PersistentFlags().Duration(optname.Timeout, 60*time.Second, "Idle timeout for each download, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().Duration(optname.TryTimeout, 0, "Timeout that replaces --timeout for every download in queue mode")
	cmd.PersistentFlags().String(optname.MaxSize, "", "Abort any download larger than this size (e.g. 10M), unlimited when empty")
	cmd.PersistentFlags().StringP(optname.Output, "o", optname.OutputFile, "Where downloads are written: file, null, stdout, tar or s3")
	cmd.PersistentFlags().StringP(optname.OutputDir, "d", ".", "Destination directory for the file and tar outputs")
	cmd.PersistentFlags().StringSliceP(optname.Header, "H", []string{}, "Extra request header, format is <name>: <value>")
	cmd.PersistentFlags().BoolP(optname.Force, "f", false, "Force download, overwriting existing files")
	cmd.PersistentFlags().Duration(optname.ConnTimeout, 5*time.Second, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().IntP(optname.Retries, "r", 0, "Number of transport level retries for each request")
	cmd.PersistentFlags().Int(optname.MaxConnPerHost, 0, "Maximum number of concurrent connections per host, unlimited when 0")
	cmd.PersistentFlags().Bool(optname.ForceHTTP2, false, "Force HTTP/2")
	cmd.PersistentFlags().StringSlice(optname.Resolve, []string{}, "Resolve hostnames to specific IPs, format is <hostname>:<port>:<ip>")
	cmd.PersistentFlags().StringSlice(optname.CacheHosts, []string{}, "Pull-through cache hosts that eligible downloads are routed to")
	cmd.PersistentFlags().String(optname.CacheHostsSRVName, "", "Look up --cache-hosts from this DNS SRV record instead")
	cmd.PersistentFlags().StringSlice(optname.CacheURIPrefixes, []string{}, "URL prefixes that are eligible for routing through --cache-hosts")
	cmd.PersistentFlags().String(optname.S3Bucket, "", "Bucket for the s3 output")
	cmd.PersistentFlags().String(optname.S3Prefix, "", "Key prefix for the s3 output")
	cmd.PersistentFlags().String(optname.S3Region, "", "Region for the s3 output, defaults to the AWS environment")
	cmd.PersistentFlags().String(optname.S3Endpoint, "", "Custom endpoint for S3 compatible storage")
	cmd.PersistentFlags().String(optname.S3AccessKeyID, "", "Static access key for the s3 output")
	cmd.PersistentFlags().String(optname.S3SecretAccessKey, "", "Static secret key for the s3 output")
	cmd.PersistentFlags().String(optname.PIDFile, "", "Hold an exclusive lock on this file while downloading")
	cmd.PersistentFlags().String(optname.MetricsFile, "", "Write Prometheus metrics for the batch to this file")
	cmd.PersistentFlags().BoolP(optname.Verbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().String(optname.LoggingLevel, "info", "Log level (debug, info, warn, error)")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}

	// Hidden: force-http2 is for benchmarking, S3 keys normally come from BATCHGET_S3_* env vars
	for _, flag := range []string{optname.ForceHTTP2, optname.S3AccessKeyID, optname.S3SecretAccessKey} {
		if err := cmd.PersistentFlags().MarkHidden(flag); err != nil {
			return fmt.Errorf("failed to hide flag %s: %w", flag, err)
		}
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if err := LoadDotEnv(DotEnvFiles...); err != nil {
		return err
	}
	if viper.GetBool(optname.Verbose) {
		viper.Set(optname.LoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(optname.LoggingLevel))
	return nil
}

// LoadDotEnv loads each existing file into the process environment. Missing
// files are skipped. Values already present in the environment win over the
// first file; subsequent files override earlier ones.
func LoadDotEnv(files ...string) error {
	logger := logging.GetLogger()
	for i, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		load := godotenv.Overload
		if i == 0 {
			load = godotenv.Load
		}
		if err := load(file); err != nil {
			return fmt.Errorf("error loading env file %s: %w", file, err)
		}
		logger.Debug().Str("file", file).Msg("Loaded env file")
	}
	return nil
}

func setLogLevel(logLevel string) {
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ResolveOverridesToMap converts `--resolve` entries of the form
// <hostname>:<port>:<ip> into a map of host:port to ip:port.
func ResolveOverridesToMap(resolveOverrides []string) (map[string]string, error) {
	logger := logging.GetLogger()
	resolveOverrideMap := make(map[string]string)

	if len(resolveOverrides) == 0 {
		return nil, nil
	}

	for _, resolveHost := range resolveOverrides {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverrideMap[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified: %s", hostPort)
		}
		resolveOverrideMap[hostPort] = target
	}
	if logger.GetLevel() <= zerolog.DebugLevel {
		for key, elem := range resolveOverrideMap {
			logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
		}
	}
	return resolveOverrideMap, nil
}

// ParseMaxSize parses a human readable size such as "10M". An empty string
// means no limit and yields 0.
func ParseMaxSize(value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", optname.MaxSize, value, err)
	}
	if size > math.MaxInt64 {
		return 0, fmt.Errorf("invalid %s %q: larger than %s", optname.MaxSize, value, humanize.IBytes(math.MaxInt64))
	}
	return int64(size), nil
}

// HeadersFromFlags turns `--header "Name: value"` entries into an http.Header.
func HeadersFromFlags(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	header := make(http.Header)
	for _, value := range values {
		name, val, ok := strings.Cut(value, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header format, expected <name>: <value>, got: %s", value)
		}
		header.Add(name, strings.TrimSpace(val))
	}
	return header, nil
}
