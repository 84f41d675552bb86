package notify

import (
	"context"
	"log/slog"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
)

// LogNotifier turns user-facing toasts into log lines.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.WithService("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, message string, severity models.Severity) {
	level := slog.LevelInfo
	switch severity {
	case models.SeverityWarning:
		level = slog.LevelWarn
	case models.SeverityError:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, message, "severity", severity)
}
