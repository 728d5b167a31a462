package observability

import (
	"github.com/danmuck/tcpros/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime profile and tags the global logger with
// the node's caller id.
func InitLogger(callerID string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("caller_id", callerID).Logger()
	log.Logger = logger
	return logger
}
