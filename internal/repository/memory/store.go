// Package memory provides an in-process implementation of the repository
// interfaces. It backs the service when no database is configured and is used
// throughout the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type state struct {
	tickets     map[string]domain.Ticket
	ticketSeq   map[string]int64
	comments    map[string][]domain.Comment
	users       map[string]domain.User
	departments map[string]domain.Department
	seq         int64
}

func newState() *state {
	return &state{
		tickets:     make(map[string]domain.Ticket),
		ticketSeq:   make(map[string]int64),
		comments:    make(map[string][]domain.Comment),
		users:       make(map[string]domain.User),
		departments: make(map[string]domain.Department),
	}
}

func (s *state) clone() *state {
	out := newState()
	out.seq = s.seq
	for k, v := range s.tickets {
		out.tickets[k] = copyTicket(v)
	}
	for k, v := range s.ticketSeq {
		out.ticketSeq[k] = v
	}
	for k, v := range s.comments {
		out.comments[k] = append([]domain.Comment(nil), v...)
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.departments {
		out.departments[k] = v
	}
	return out
}

// Store is a mutex-guarded in-memory Store. Transactions are serialized and
// roll back by restoring a snapshot taken when they began.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// Repos returns repositories over the shared state.
func (s *Store) Repos() repository.Repositories {
	return repository.Repositories{
		Tickets:     &ticketRepo{s: s},
		Comments:    &commentRepo{s: s},
		Users:       &userRepo{s: s},
		Departments: &departmentRepo{s: s},
	}
}

// InTx runs fn and restores the pre-transaction state if it fails.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(s.Repos()); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// AddDepartment inserts a department into the directory.
func (s *Store) AddDepartment(name, description string) domain.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept := domain.Department{ID: uuid.NewString(), Name: name, Description: description, CreatedAt: s.now()}
	s.data.departments[dept.ID] = dept
	return dept
}

// AddUser inserts an active user into the directory.
func (s *Store) AddUser(name, email string, role domain.Role) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := domain.User{ID: uuid.NewString(), Name: name, Email: email, Role: role, Active: true, CreatedAt: s.now()}
	s.data.users[user.ID] = user
	return user
}

// SetUserActive flips a user's active flag.
func (s *Store) SetUserActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.data.users[id]; ok {
		user.Active = active
		s.data.users[id] = user
	}
}

// RemoveDepartment deletes a department without touching tickets that point
// at it, leaving those references dangling.
func (s *Store) RemoveDepartment(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.departments, id)
}

// RemoveUser deletes a user without touching tickets or comments that point at it.
func (s *Store) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.users, id)
}

func (s *Store) nextSeq() int64 {
	s.data.seq++
	return s.data.seq
}

func copyTicket(t domain.Ticket) domain.Ticket {
	t.DepartmentID = copyString(t.DepartmentID)
	t.AssignedAgentID = copyString(t.AssignedAgentID)
	return t
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

type ticketRepo struct {
	s *Store
}

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.s.data.tickets[ticket.ID] = copyTicket(*ticket)
	r.s.data.ticketSeq[ticket.ID] = r.s.nextSeq()
	return nil
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.data.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Title = ticket.Title
	existing.Description = ticket.Description
	existing.Priority = ticket.Priority
	existing.Status = ticket.Status
	existing.DepartmentID = copyString(ticket.DepartmentID)
	existing.AssignedAgentID = copyString(ticket.AssignedAgentID)
	existing.UpdatedAt = r.s.now()
	r.s.data.tickets[ticket.ID] = existing
	ticket.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.data.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyTicket(ticket)
	return &out, nil
}

func (r *ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := make([]domain.Ticket, 0, len(r.s.data.tickets))
	for _, ticket := range r.s.data.tickets {
		if matchesFilter(ticket, filter) {
			matched = append(matched, copyTicket(ticket))
		}
	}
	seq := r.s.data.ticketSeq
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return seq[matched[i].ID] > seq[matched[j].ID]
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchesFilter(t domain.Ticket, f repository.TicketFilter) bool {
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.DepartmentID != nil && (t.DepartmentID == nil || *t.DepartmentID != *f.DepartmentID) {
		return false
	}
	if f.AssignedAgentID != nil && (t.AssignedAgentID == nil || *t.AssignedAgentID != *f.AssignedAgentID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, p := range list {
		if p == v {
			return true
		}
	}
	return false
}

func (r *ticketRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.data.tickets, id)
	delete(r.s.data.ticketSeq, id)
	// comments go with their ticket, like ON DELETE CASCADE
	delete(r.s.data.comments, id)
	return nil
}

func (r *ticketRepo) CountByStatus(_ context.Context) (map[domain.TicketStatus]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.TicketStatus]int64)
	for _, ticket := range r.s.data.tickets {
		counts[ticket.Status]++
	}
	return counts, nil
}

type commentRepo struct {
	s *Store
}

func (r *commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.tickets[comment.TicketID]; !ok {
		return repository.ErrNotFound
	}
	comment.ID = uuid.NewString()
	comment.CreatedAt = r.s.now()
	stored := *comment
	stored.AuthorID = copyString(comment.AuthorID)
	r.s.data.comments[comment.TicketID] = append(r.s.data.comments[comment.TicketID], stored)
	return nil
}

func (r *commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]domain.Comment{}, r.s.data.comments[ticketID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *commentRepo) DeleteByTicket(_ context.Context, ticketID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.data.comments[ticketID]))
	delete(r.s.data.comments, ticketID)
	return n, nil
}

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = r.s.now()
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, user := range r.s.data.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) ListByRole(_ context.Context, role domain.Role, activeOnly bool) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.User{}
	for _, user := range r.s.data.users {
		if user.Role != role || (activeOnly && !user.Active) {
			continue
		}
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *userRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.data.users)), nil
}

type departmentRepo struct {
	s *Store
}

func (r *departmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	dept, ok := r.s.data.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dept, nil
}

func (r *departmentRepo) List(_ context.Context) ([]domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]domain.Department, 0, len(r.s.data.departments))
	for _, dept := range r.s.data.departments {
		result = append(result, dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *departmentRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.data.departments)), nil
}
