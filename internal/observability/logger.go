package observability

import (
	"github.com/rs/zerolog"

	logs "github.com/danmuck/hcilink/internal/logging"
)

// ComponentLogger returns the process logger tagged with a component field.
func ComponentLogger(component string) zerolog.Logger {
	return logs.Logger().With().Str("component", component).Logger()
}
