package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

type subscription struct {
	id        string
	eventType models.RunEventType
	handler   interfaces.EventHandler
}

// Service implements EventService with an in-process pub/sub pattern
type Service struct {
	subscriptions []subscription
	mu            sync.RWMutex
	logger        arbor.ILogger
}

var _ interfaces.EventService = (*Service)(nil)

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Subscribe registers a handler for an event type, or every type with interfaces.EventAll
func (s *Service) Subscribe(eventType models.RunEventType, handler interfaces.EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.subscriptions = append(s.subscriptions, subscription{id: id, eventType: eventType, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Str("subscription_id", id).
		Msg("Event handler subscribed")

	return id, nil
}

// Unsubscribe removes a subscription by ID
func (s *Service) Unsubscribe(subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscriptions {
		if sub.id == subscriptionID {
			s.subscriptions = append(s.subscriptions[:i], s.subscriptions[i+1:]...)
			s.logger.Debug().Str("subscription_id", subscriptionID).Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("subscription not found: %s", subscriptionID)
}

func (s *Service) handlersFor(eventType models.RunEventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var handlers []interfaces.EventHandler
	for _, sub := range s.subscriptions {
		if sub.eventType == eventType || sub.eventType == interfaces.EventAll {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

// PublishSync sends an event to all subscribers and waits for them, in subscription order
func (s *Service) PublishSync(ctx context.Context, event models.RunEvent) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	failed := 0
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("event handlers failed: %d errors", failed)
	}
	return nil
}

// Close drops every subscription
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions = nil
	s.logger.Info().Msg("Event service closed")
	return nil
}
