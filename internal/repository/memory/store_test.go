package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

func newTicket(createdBy string) *domain.Ticket {
	return &domain.Ticket{
		Title:       "Title",
		Description: "Description",
		Priority:    domain.TicketPriorityLow,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   createdBy,
	}
}

func TestInTxRestoresSnapshotOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repos()
	ticket := newTicket("u-1")
	require.NoError(t, repos.Tickets.Create(ctx, ticket))
	require.NoError(t, repos.Comments.Create(ctx, &domain.Comment{TicketID: ticket.ID, Body: "hi"}))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Comments.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		if err := tx.Tickets.Delete(ctx, ticket.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repos.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	comments, err := repos.Comments.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ticket := newTicket("u-1")
	require.NoError(t, store.Repos().Tickets.Create(ctx, ticket))

	require.NoError(t, store.InTx(ctx, func(tx repository.Repositories) error {
		return tx.Tickets.Delete(ctx, ticket.ID)
	}))
	_, err := store.Repos().Tickets.GetByID(ctx, ticket.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteTicketDropsCommentsAddedMidTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repos()
	ticket := newTicket("u-1")
	require.NoError(t, repos.Tickets.Create(ctx, ticket))

	require.NoError(t, store.InTx(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Comments.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		// a writer outside the transaction still sees the ticket here
		require.NoError(t, repos.Comments.Create(ctx, &domain.Comment{TicketID: ticket.ID, Body: "late"}))
		return tx.Tickets.Delete(ctx, ticket.ID)
	}))

	comments, err := repos.Comments.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestReturnedTicketsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	dept := "d-1"
	ticket := newTicket("u-1")
	ticket.DepartmentID = &dept
	require.NoError(t, store.Repos().Tickets.Create(ctx, ticket))

	got, err := store.Repos().Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	*got.DepartmentID = "changed"
	got.Title = "changed"

	again, err := store.Repos().Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "d-1", *again.DepartmentID)
	assert.Equal(t, "Title", again.Title)
}

func TestListOrdersNewestFirstWithStableTies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	fixed := store.now()
	store.now = func() time.Time { return fixed }

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		ticket := newTicket("u-1")
		require.NoError(t, store.Repos().Tickets.Create(ctx, ticket))
		ids = append(ids, ticket.ID)
	}

	list, err := store.Repos().Tickets.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestCommentOnMissingTicket(t *testing.T) {
	err := NewStore().Repos().Comments.Create(context.Background(), &domain.Comment{TicketID: "nope", Body: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateMissingTicket(t *testing.T) {
	err := NewStore().Repos().Tickets.Update(context.Background(), &domain.Ticket{ID: "nope"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, status := range []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusOpen, domain.TicketStatusClosed} {
		ticket := newTicket("u-1")
		ticket.Status = status
		require.NoError(t, store.Repos().Tickets.Create(ctx, ticket))
	}
	counts, err := store.Repos().Tickets.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.TicketStatusOpen])
	assert.Equal(t, int64(1), counts[domain.TicketStatusClosed])
}
