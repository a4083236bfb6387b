package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	ticketA = "6f1c2a9e-0c1b-4d3e-9f5a-1b2c3d4e5f60"
	ticketB = "7a2d3b0f-1d2c-4e4f-8a6b-2c3d4e5f6071"
)

var errStop = errors.New("stop")

// recordingDB captures the last statement and fails it with the configured
// error, so the repositories can be checked without a database.
type recordingDB struct {
	sql    string
	args   []any
	rowErr error
}

func (db *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql, db.args = sql, args
	return pgconn.CommandTag{}, errStop
}

func (db *recordingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.sql, db.args = sql, args
	return nil, errStop
}

func (db *recordingDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.sql, db.args = sql, args
	return errRow{err: db.rowErr}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func whereClause(t *testing.T, query string) string {
	t.Helper()
	_, rest, ok := strings.Cut(query, " WHERE ")
	require.True(t, ok, query)
	where, _, ok := strings.Cut(rest, " ORDER BY ")
	require.True(t, ok, query)
	return where
}

func TestBuildTicketListQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	creator, dept, agent := ticketA, ticketB, ticketA
	search := "  Impresora "
	blank := "   "

	tests := []struct {
		name      string
		filter    TicketFilter
		wantWhere string
		wantArgs  []any
		wantTail  string
	}{
		{
			name:      "no filters",
			wantWhere: "1=1",
			wantArgs:  []any{},
			wantTail:  "ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0",
		},
		{
			name: "creator and statuses",
			filter: TicketFilter{
				CreatedBy: &creator,
				Statuses:  []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusClosed},
			},
			wantWhere: "1=1 AND created_by=$1 AND status IN ($2,$3)",
			wantArgs:  []any{creator, domain.TicketStatusOpen, domain.TicketStatusClosed},
			wantTail:  "LIMIT 20 OFFSET 0",
		},
		{
			name: "every filter numbers placeholders in order",
			filter: TicketFilter{
				CreatedBy:       &creator,
				DepartmentID:    &dept,
				AssignedAgentID: &agent,
				Statuses:        []domain.TicketStatus{domain.TicketStatusPending},
				Priorities:      []domain.TicketPriority{domain.TicketPriorityLow, domain.TicketPriorityHigh},
				CreatedFrom:     &from,
				CreatedTo:       &to,
				SearchTerm:      &search,
				Limit:           10,
				Offset:          30,
			},
			wantWhere: "1=1 AND created_by=$1 AND department_id=$2 AND assigned_agent_id=$3" +
				" AND status IN ($4) AND priority IN ($5,$6)" +
				" AND created_at >= $7 AND created_at <= $8" +
				" AND (LOWER(title) LIKE $9 OR LOWER(description) LIKE $9)",
			wantArgs: []any{creator, dept, agent, domain.TicketStatusPending,
				domain.TicketPriorityLow, domain.TicketPriorityHigh, from, to, "%impresora%"},
			wantTail: "LIMIT 10 OFFSET 30",
		},
		{
			name:      "blank search and out of range paging",
			filter:    TicketFilter{SearchTerm: &blank, Limit: 500, Offset: -5},
			wantWhere: "1=1",
			wantArgs:  []any{},
			wantTail:  "LIMIT 100 OFFSET 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildTicketListQuery(tt.filter)
			assert.Equal(t, tt.wantWhere, whereClause(t, query))
			assert.Equal(t, tt.wantArgs, args)
			assert.True(t, strings.HasSuffix(query, tt.wantTail), query)
		})
	}
}

func TestTicketListRunsBuiltQuery(t *testing.T) {
	db := &recordingDB{}
	creator := ticketA
	filter := TicketFilter{CreatedBy: &creator}

	_, err := NewTicketRepository(db).List(context.Background(), filter)
	require.ErrorIs(t, err, errStop)

	query, args := buildTicketListQuery(filter)
	assert.Equal(t, query, db.sql)
	assert.Equal(t, args, db.args)
}

func TestTicketListMalformedIDSkipsDatabase(t *testing.T) {
	db := &recordingDB{}
	bad := "not-a-uuid"

	tickets, err := NewTicketRepository(db).List(context.Background(), TicketFilter{AssignedAgentID: &bad})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Empty(t, db.sql)
}

func TestCommentCreateErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		ticketID string
		rowErr   error
		want     error
		hitsDB   bool
	}{
		{name: "ticket deleted before insert", ticketID: ticketA, rowErr: &pgconn.PgError{Code: foreignKeyViolation}, want: ErrNotFound, hitsDB: true},
		{name: "other constraint passes through", ticketID: ticketA, rowErr: &pgconn.PgError{Code: "23514"}, hitsDB: true},
		{name: "malformed ticket id", ticketID: "nope", want: ErrNotFound},
		{name: "success", ticketID: ticketA, hitsDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recordingDB{rowErr: tt.rowErr}
			err := NewCommentRepository(db).Create(context.Background(), &domain.Comment{TicketID: tt.ticketID, Body: "hola"})

			switch {
			case tt.want != nil:
				assert.ErrorIs(t, err, tt.want)
			case tt.rowErr != nil:
				assert.Equal(t, tt.rowErr, err)
				assert.NotErrorIs(t, err, ErrNotFound)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.hitsDB, db.sql != "")
		})
	}
}

func TestCommentListOrdersOldestFirst(t *testing.T) {
	db := &recordingDB{}
	_, err := NewCommentRepository(db).ListByTicket(context.Background(), ticketB)
	require.ErrorIs(t, err, errStop)

	assert.Contains(t, db.sql, "ORDER BY created_at ASC, seq ASC")
	assert.Equal(t, []any{ticketB}, db.args)
}
