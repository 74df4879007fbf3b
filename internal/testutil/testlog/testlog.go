package testlog

import (
	"testing"

	"github.com/AtDexters-Lab/sim-protocol/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and returns a logger tagged with the test name.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	return log.With().Str("test", t.Name()).Logger()
}
