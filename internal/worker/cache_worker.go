package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// StartCacheInvalidation drops a ticket's cached thread once the ticket is
// deleted. New comments invalidate inline in the comment service.
func StartCacheInvalidation(dispatcher events.Dispatcher, cache repository.CommentCache, logger *zap.Logger) {
	if dispatcher == nil || cache == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher.Subscribe(events.EventTicketDeleted, func(ctx context.Context, event events.Event) error {
		if err := cache.Invalidate(ctx, event.TicketID); err != nil {
			return err
		}
		logger.Debug("comment cache invalidated", zap.String("ticket_id", event.TicketID))
		return nil
	})
}
