package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
)

var activityEvents = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketUpdated,
	events.EventTicketStatusChanged,
	events.EventTicketAssigned,
	events.EventTicketDeleted,
	events.EventCommentAdded,
}

// StartActivityLog writes one structured log line per ticket event.
func StartActivityLog(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil || logger == nil {
		return
	}
	for _, eventType := range activityEvents {
		dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			logger.Info("ticket activity",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.String("actor_id", event.Actor.UserID),
				zap.String("actor_role", string(event.Actor.Role)),
				zap.Any("payload", event.Payload),
			)
			return nil
		})
	}
}
