package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

type fixture struct {
	store      *memory.Store
	dispatcher *recordingDispatcher
	tickets    *TicketService
	comments   *CommentService
	stats      *StatsService
	directory  *DirectoryService

	employee domain.User
	other    domain.User
	agent    domain.User
	admin    domain.User
	dept     domain.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWithStore(t, store, store)
}

// newFixtureWithStore seeds seed and runs the services against store, which
// may wrap seed to inject failures.
func newFixtureWithStore(t *testing.T, seed *memory.Store, store repository.Store) *fixture {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	f := &fixture{
		store:      seed,
		dispatcher: dispatcher,
		tickets:    NewTicketService(TicketDependencies{Store: store, Dispatcher: dispatcher}),
		comments:   NewCommentService(CommentDependencies{Store: store, Dispatcher: dispatcher}),
		stats:      NewStatsService(store, nil),
		directory:  NewDirectoryService(store, nil),
	}
	f.employee = seed.AddUser("Lucía Gómez", "lucia@example.com", domain.RoleEmployee)
	f.other = seed.AddUser("Mateo Ruiz", "mateo@example.com", domain.RoleEmployee)
	f.agent = seed.AddUser("Agent X", "agent@example.com", domain.RoleAgent)
	f.admin = seed.AddUser("Admin", "admin@example.com", domain.RoleAdministrator)
	f.dept = seed.AddDepartment("IT", "Information technology")
	return f
}

func callerOf(u domain.User) domain.Caller {
	return domain.Caller{ID: u.ID, Role: u.Role}
}

func (f *fixture) createTicket(t *testing.T, by domain.User, title string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), callerOf(by), TicketCreateInput{
		Title:        title,
		Description:  "details for " + title,
		DepartmentID: f.dept.ID,
		Priority:     domain.TicketPriorityMedium,
	})
	require.NoError(t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func strPtr(s string) *string { return &s }

var errInjected = errors.New("injected failure")

// faultyStore wraps the memory store and swaps in failing repositories
// inside transactions.
type faultyStore struct {
	*memory.Store
	failCommentDelete bool
	failTicketDelete  bool
}

func (s *faultyStore) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.Store.InTx(ctx, func(repos repository.Repositories) error {
		if s.failCommentDelete {
			repos.Comments = failingComments{CommentRepository: repos.Comments}
		}
		if s.failTicketDelete {
			repos.Tickets = failingTickets{TicketRepository: repos.Tickets}
		}
		return fn(repos)
	})
}

type failingComments struct {
	repository.CommentRepository
}

func (failingComments) DeleteByTicket(context.Context, string) (int64, error) {
	return 0, errInjected
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) Delete(context.Context, string) error {
	return errInjected
}

type stubCache struct {
	stored      map[string][]domain.Comment
	versions    map[string]int64
	gets        int
	invalidated []string
}

func newStubCache() *stubCache {
	return &stubCache{stored: map[string][]domain.Comment{}, versions: map[string]int64{}}
}

func (c *stubCache) Get(_ context.Context, ticketID string) ([]domain.Comment, bool, error) {
	c.gets++
	comments, ok := c.stored[ticketID]
	return comments, ok, nil
}

func (c *stubCache) Version(_ context.Context, ticketID string) (int64, error) {
	return c.versions[ticketID], nil
}

func (c *stubCache) Set(_ context.Context, ticketID string, version int64, comments []domain.Comment) error {
	if c.versions[ticketID] != version {
		return nil
	}
	c.stored[ticketID] = comments
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, ticketID string) error {
	c.invalidated = append(c.invalidated, ticketID)
	c.versions[ticketID]++
	delete(c.stored, ticketID)
	return nil
}
