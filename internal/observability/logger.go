package observability

import (
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const serviceName = "nwp-ingest"

// NewLogger builds the process logger from a level name (debug, info, warn,
// error) and a format (json or text), installs it as the slog default and
// tags every record with the service name.
func NewLogger(level, format string) *slog.Logger {
	logger := sharedobs.NewLogger(level, format).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
