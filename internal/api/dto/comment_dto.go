package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateCommentRequest payload. The author is taken from the token.
type CreateCommentRequest struct {
	Body string `json:"body"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID         string      `json:"id"`
	TicketID   string      `json:"ticket_id"`
	AuthorID   *string     `json:"author_id"`
	AuthorName string      `json:"author_name"`
	AuthorRole domain.Role `json:"author_role,omitempty"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewCommentResponse maps a resolved comment.
func NewCommentResponse(v *domain.CommentView) CommentResponse {
	return CommentResponse{
		ID:         v.ID,
		TicketID:   v.TicketID,
		AuthorID:   v.AuthorID,
		AuthorName: v.AuthorName,
		AuthorRole: v.AuthorRole,
		Body:       v.Body,
		CreatedAt:  v.CreatedAt,
	}
}

// DashboardStatsResponse is the staff dashboard payload.
type DashboardStatsResponse struct {
	TotalUsers       int64                         `json:"total_users"`
	TotalDepartments int64                         `json:"total_departments"`
	TotalTickets     int64                         `json:"total_tickets"`
	TicketsByStatus  map[domain.TicketStatus]int64 `json:"tickets_by_status"`
}

// NewDashboardStatsResponse maps aggregated stats.
func NewDashboardStatsResponse(s *domain.DashboardStats) DashboardStatsResponse {
	return DashboardStatsResponse{
		TotalUsers:       s.TotalUsers,
		TotalDepartments: s.TotalDepartments,
		TotalTickets:     s.TotalTickets,
		TicketsByStatus:  s.ByStatus,
	}
}
