/**
 * @description
 * Collaborator contracts consumed by the authentication core and the small
 * security-event helper shared by its components.
 *
 * @dependencies
 * - github.com/google/uuid: event identifiers.
 * - github.com/rs/zerolog: logging of publish failures.
 */
package app

import (
	"context"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeviceStore is the routed device persistence (store.Router). Every method
// reports success as a value; a false result means "did not take effect".
type DeviceStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) bool
	Remove(ctx context.Context, key string) bool
	MultiGet(ctx context.Context, keys []string) (map[string]string, bool)
	MultiSet(ctx context.Context, pairs map[string]string) bool
	MultiRemove(ctx context.Context, keys []string) bool
}

// EventPublisher sends events to a topic exchange.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Clock returns the current wall-clock time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }

// SecurityEvents publishes audit events. A nil publisher disables them.
type SecurityEvents struct {
	publisher EventPublisher
	exchange  string
	now       Clock
	logger    zerolog.Logger
}

// NewSecurityEvents creates the audit publisher for exchange.
func NewSecurityEvents(publisher EventPublisher, exchange string, logger zerolog.Logger) *SecurityEvents {
	return &SecurityEvents{
		publisher: publisher,
		exchange:  exchange,
		now:       systemClock,
		logger:    logger.With().Str("component", "security_events").Logger(),
	}
}

// Emit publishes one event. Publish failures are logged and never surface to
// the authentication flow.
func (e *SecurityEvents) Emit(ctx context.Context, eventType, phone, reason string) {
	if e == nil || e.publisher == nil {
		return
	}
	event := domain.SecurityEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		PhoneNumber: phone,
		Reason:      reason,
		OccurredAt:  e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, e.exchange, eventType, event); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish security event")
	}
}
