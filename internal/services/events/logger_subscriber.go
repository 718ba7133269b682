package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// NewLoggerSubscriber returns a handler that writes run events to the log
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event models.RunEvent) error {
		entry := logger.Info()
		if event.Type == models.RunEventFailed {
			entry = logger.Warn()
		}
		entry = entry.Str("run_id", event.RunID).Str("event", string(event.Type))
		if event.Tool != "" {
			entry = entry.Str("tool", event.Tool)
		}
		entry.Msg(event.Message)
		return nil
	}
}

// SubscribeLogger attaches the logger subscriber to every event type
func SubscribeLogger(service interfaces.EventService, logger arbor.ILogger) (string, error) {
	return service.Subscribe(interfaces.EventAll, NewLoggerSubscriber(logger))
}
