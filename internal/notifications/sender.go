package notifications

import (
	"context"
	"log/slog"

	"github.com/stockwatch/stockwatch/internal/push"
)

// LogSender accepts every message and only logs it. Used for dry runs and
// when push delivery is disabled; pair it with PipelineConfig.DryRun so
// nothing is recorded for messages that never left the process.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that logs instead of delivering.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg and reports it as accepted.
func (s *LogSender) Send(ctx context.Context, msg push.Message) (push.Ticket, error) {
	s.logger.Info("push send (delivery disabled)",
		"user_id", msg.Data.UserID, "type", msg.Data.Type,
		"title", msg.Title, "body", msg.Body)
	return push.Ticket{Status: "ok"}, nil
}
