package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/permission"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const (
	unknownAuthorName = "Unknown user"
	commentPreviewLen = 140
)

// CommentService manages ticket threads. Comments never change the ticket
// they belong to.
type CommentService struct {
	store      repository.Store
	cache      repository.CommentCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// CommentDependencies bundles collaborators for the comment service.
type CommentDependencies struct {
	Store      repository.Store
	Cache      repository.CommentCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewCommentService constructs the service. A nil cache disables caching.
func NewCommentService(deps CommentDependencies) *CommentService {
	cache := deps.Cache
	if cache == nil {
		cache = repository.NopCommentCache{}
	}
	return &CommentService{
		store:      deps.Store,
		cache:      cache,
		dispatcher: deps.Dispatcher,
		logger:     nopIfNil(deps.Logger),
	}
}

// AddComment appends a comment to the ticket thread. The author is always
// the caller.
func (s *CommentService) AddComment(ctx context.Context, caller domain.Caller, ticketID, body string) (*domain.CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("a comment cannot be empty", map[string]any{
			"body": "write something before sending",
		})
	}

	repos := s.store.Repos()
	ticket, err := s.loadTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpComment); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	authorID := caller.ID
	comment := &domain.Comment{
		TicketID: ticket.ID,
		AuthorID: &authorID,
		Body:     body,
	}
	if err := repos.Comments.Create(ctx, comment); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, internalFailure(s.logger, "create comment", err, zap.String("ticket_id", ticketID))
	}
	if err := s.cache.Invalidate(ctx, ticket.ID); err != nil {
		s.logger.Warn("invalidate comment cache", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventCommentAdded,
		TicketID: ticket.ID,
		Actor:    actorFor(caller),
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			BodyPreview: stringPreview(body, commentPreviewLen),
		},
	})

	view := domain.CommentView{Comment: *comment, AuthorName: unknownAuthorName, AuthorRole: caller.Role}
	if author, err := newNameResolver(repos).user(ctx, comment.AuthorID); err == nil && author != nil {
		view.AuthorName = author.Name
		view.AuthorRole = author.Role
	}
	return &view, nil
}

// ListComments returns the thread oldest first.
func (s *CommentService) ListComments(ctx context.Context, caller domain.Caller, ticketID string) ([]domain.CommentView, error) {
	repos := s.store.Repos()
	ticket, err := s.loadTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpRead); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	comments, hit, err := s.cache.Get(ctx, ticket.ID)
	if err != nil {
		s.logger.Warn("read comment cache", zap.String("ticket_id", ticket.ID), zap.Error(err))
		hit = false
	}
	if !hit {
		// the version is read before the store so a concurrent AddComment
		// makes this fill a no-op
		version, verErr := s.cache.Version(ctx, ticket.ID)
		if verErr != nil {
			s.logger.Warn("read comment cache version", zap.String("ticket_id", ticket.ID), zap.Error(verErr))
		}
		comments, err = repos.Comments.ListByTicket(ctx, ticket.ID)
		if err != nil {
			return nil, internalFailure(s.logger, "list comments", err, zap.String("ticket_id", ticket.ID))
		}
		if verErr == nil {
			if err := s.cache.Set(ctx, ticket.ID, version, comments); err != nil {
				s.logger.Warn("fill comment cache", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
	}

	resolver := newNameResolver(repos)
	views := make([]domain.CommentView, 0, len(comments))
	for _, comment := range comments {
		view := domain.CommentView{Comment: comment, AuthorName: unknownAuthorName}
		author, err := resolver.user(ctx, comment.AuthorID)
		if err != nil {
			return nil, internalFailure(s.logger, "resolve comment author", err, zap.String("comment_id", comment.ID))
		}
		if author != nil {
			view.AuthorName = author.Name
			view.AuthorRole = author.Role
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *CommentService) loadTicket(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, internalFailure(s.logger, "load ticket", err, zap.String("ticket_id", ticketID))
	}
	return ticket, nil
}
