package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NullableString tells an absent field apart from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records that the field was present.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	DepartmentID string                `json:"department_id"`
	Priority     domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest is a partial update; omitted fields are untouched and
// assigned_agent_id may be null to unassign.
type UpdateTicketRequest struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Priority        *domain.TicketPriority `json:"priority"`
	DepartmentID    *string                `json:"department_id"`
	Status          *domain.TicketStatus   `json:"status"`
	AssignedAgentID NullableString         `json:"assigned_agent_id"`
}

// TransitionRequest payload for one-click status actions.
type TransitionRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TransitionsResponse lists the status actions currently available.
type TransitionsResponse struct {
	Current   domain.TicketStatus   `json:"current"`
	Available []domain.TicketStatus `json:"available"`
}

// TicketResponse is a ticket with resolved display names.
type TicketResponse struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Priority        domain.TicketPriority `json:"priority"`
	Status          domain.TicketStatus   `json:"status"`
	CreatedBy       string                `json:"created_by"`
	CreatorName     string                `json:"creator_name,omitempty"`
	DepartmentID    *string               `json:"department_id"`
	DepartmentName  string                `json:"department_name,omitempty"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	AgentName       string                `json:"assigned_agent_name,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewTicketResponse maps a bare ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		Status:          t.Status,
		CreatedBy:       t.CreatedBy,
		DepartmentID:    t.DepartmentID,
		AssignedAgentID: t.AssignedAgentID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// NewTicketViewResponse maps a ticket together with its resolved names.
func NewTicketViewResponse(v *domain.TicketView) TicketResponse {
	resp := NewTicketResponse(&v.Ticket)
	resp.CreatorName = v.CreatorName
	resp.DepartmentName = v.DepartmentName
	resp.AgentName = v.AgentName
	return resp
}

// Pagination echoes the page that was served.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Count    int `json:"count"`
}
