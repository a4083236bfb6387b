package service

import "github.com/spec-kit/helpdesk/internal/domain"

// convenienceTransitions is the graph behind the one-click status actions.
// Direct status writes by staff through UpdateTicket are not bound by it.
var convenienceTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress},
	domain.TicketStatusPending:    {domain.TicketStatusInProgress},
	domain.TicketStatusInProgress: {domain.TicketStatusClosed, domain.TicketStatusPending},
	domain.TicketStatusClosed:     {domain.TicketStatusOpen},
}

// AllowedTransitions returns the convenience targets reachable from current.
func AllowedTransitions(current domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus{}, convenienceTransitions[current]...)
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range convenienceTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
