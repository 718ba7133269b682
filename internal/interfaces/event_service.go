package interfaces

import (
	"context"

	"github.com/ternarybob/equityresearch/internal/models"
)

// EventAll subscribes a handler to every run event type
const EventAll models.RunEventType = "*"

// EventHandler receives run events
type EventHandler func(ctx context.Context, event models.RunEvent) error

// EventService is the in-process pub/sub bus for run progress
type EventService interface {
	// Subscribe registers handler and returns a subscription ID for Unsubscribe
	Subscribe(eventType models.RunEventType, handler EventHandler) (string, error)
	Unsubscribe(subscriptionID string) error
	PublishSync(ctx context.Context, event models.RunEvent) error
	Close() error
}
