package cmdlog

import (
	"log/slog"
	"time"

	"agentx/internal/metrics"
)

// Run executes one CLI command, counting and logging its outcome.
func Run(logger *slog.Logger, cmd string, f func() error) error {
	start := time.Now()
	err := f()
	metrics.IncCommandRun(cmd, err)
	if err != nil {
		logger.Error("command failed", "command", cmd, "duration", time.Since(start).String(), "error", err.Error())
	} else {
		logger.Info("command finished", "command", cmd, "duration", time.Since(start).String())
	}
	return err
}
