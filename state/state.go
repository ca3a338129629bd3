package state

import (
	"context"
	"log/slog"
)

// Env can be read from any Goroutine
type Env struct {
	LocalCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
}
