package logging

import "github.com/rs/zerolog"

// CommandLogger adapts zerolog.Logger to the dispatcher's Logger interface.
type CommandLogger struct {
	logger zerolog.Logger
}

// NewCommandLogger tags every record with component=dispatcher.
func NewCommandLogger(logger zerolog.Logger) *CommandLogger {
	return &CommandLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

// Debug logs at debug level. keysAndValues alternate string keys and values;
// a trailing key without a value is dropped.
func (l *CommandLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *CommandLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l *CommandLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}
