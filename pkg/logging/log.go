package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger installs the console logger on stderr as the global logger.
func SetupLogger() {
	SetupLoggerWithWriter(os.Stderr)
}

// SetupLoggerWithWriter is SetupLogger with an explicit destination, used by tests
// that want to inspect log output.
func SetupLoggerWithWriter(out io.Writer) {
	// Color is disabled so log output stays free of ANSI escape codes when captured by CI.
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("[ %s ]", i)
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger() zerolog.Logger {
	return log.Logger
}

// TaskLogger returns the global logger annotated with the task identity.
func TaskLogger(taskID, url string) zerolog.Logger {
	return log.Logger.With().Str("task_id", taskID).Str("url", url).Logger()
}
