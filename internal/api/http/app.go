package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

// Dependencies are the long-lived collaborators the HTTP app is built on.
type Dependencies struct {
	Store      repository.Store
	Cache      repository.CommentCache
	Dispatcher events.Dispatcher
	Auth       *service.AuthService
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Readiness  map[string]handlers.Pinger
}

// NewApp assembles services, handlers and routes into a fiber app.
func NewApp(cfg config.AppConfig, deps Dependencies) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      deps.Store,
		Dispatcher: deps.Dispatcher,
		Logger:     logger,
	})
	commentService := service.NewCommentService(service.CommentDependencies{
		Store:      deps.Store,
		Cache:      deps.Cache,
		Dispatcher: deps.Dispatcher,
		Logger:     logger,
	})
	statsService := service.NewStatsService(deps.Store, logger)
	directoryService := service.NewDirectoryService(deps.Store, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:      logger,
		Metrics:     deps.Metrics,
		Timeout:     cfg.RequestTimeout(),
		MaxInFlight: cfg.MaxInFlight,
	})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.Name, cfg.Version, deps.Readiness, deps.Metrics),
		Users:          handlers.NewUsersHandler(deps.Auth, directoryService),
		Staff:          handlers.NewStaffHandler(statsService, directoryService),
		Tickets:        handlers.NewTicketsHandler(ticketService, commentService),
		AuthMiddleware: auth.NewAuthMiddleware(deps.Auth.TokenManager(), deps.Store.Repos().Users),
	})
	return app
}
