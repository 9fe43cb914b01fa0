package optname

const (
	CacheHosts        = "cache-hosts"
	CacheHostsSRVName = "cache-hosts-srv-name"
	CacheURIPrefixes  = "cache-uri-prefixes"
	ConnTimeout       = "connect-timeout"
	Force             = "force"
	ForceHTTP2        = "force-http2"
	Header            = "header"
	LoggingLevel      = "log-level"
	MaxConnPerHost    = "max-conn-per-host"
	MaxSize           = "max-size"
	MetricsFile       = "metrics-file"
	Mode              = "mode"
	Output            = "output"
	OutputDir         = "output-dir"
	PIDFile           = "pid-file"
	Resolve           = "resolve"
	Retries           = "retries"
	S3AccessKeyID     = "s3-access-key-id"
	S3Bucket          = "s3-bucket"
	S3Endpoint        = "s3-endpoint"
	S3Prefix          = "s3-prefix"
	S3Region          = "s3-region"
	S3SecretAccessKey = "s3-secret-access-key"
	Timeout           = "timeout"
	TryTimeout        = "try-timeout"
	Verbose           = "verbose"
)

// Values accepted by --output.
const (
	OutputFile   = "file"
	OutputNull   = "null"
	OutputS3     = "s3"
	OutputStdout = "stdout"
	OutputTar    = "tar"
)
