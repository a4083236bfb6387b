package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/permission"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// StatsService aggregates the dashboard counters.
type StatsService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewStatsService constructs the service.
func NewStatsService(store repository.Store, logger *zap.Logger) *StatsService {
	return &StatsService{store: store, logger: nopIfNil(logger)}
}

// DashboardStats counts users, departments and tickets. Every status bucket
// is present and the ticket total is their sum.
func (s *StatsService) DashboardStats(ctx context.Context, caller domain.Caller) (*domain.DashboardStats, error) {
	if decision := permission.Evaluate(&caller, nil, permission.OpViewStats); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	repos := s.store.Repos()
	var (
		users, departments int64
		byStatus           map[domain.TicketStatus]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := repos.Users.Count(gctx)
		users = n
		return err
	})
	g.Go(func() error {
		n, err := repos.Departments.Count(gctx)
		departments = n
		return err
	})
	g.Go(func() error {
		m, err := repos.Tickets.CountByStatus(gctx)
		byStatus = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, internalFailure(s.logger, "aggregate dashboard stats", err)
	}

	stats := &domain.DashboardStats{
		TotalUsers:       users,
		TotalDepartments: departments,
		ByStatus:         make(map[domain.TicketStatus]int64, len(domain.TicketStatuses)),
	}
	for _, status := range domain.TicketStatuses {
		count := byStatus[status]
		stats.ByStatus[status] = count
		stats.TotalTickets += count
	}
	return stats, nil
}
