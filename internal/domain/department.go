package domain

import "time"

// Department represents a routing target for tickets.
type Department struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}
