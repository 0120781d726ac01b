package notify

import (
	"context"

	"buggy/internal/logger"
)

// LogNotifier writes notifications to the log. It is the only sink in memory mode.
type LogNotifier struct {
	log logger.ILogger
}

func NewLogNotifier(log logger.ILogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info("notification",
		logger.String("recipient", msg.Recipient),
		logger.String("title", msg.Title),
		logger.String("body", msg.Body),
	)
	return nil
}
