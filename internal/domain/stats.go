package domain

// DashboardStats aggregates headcounts and ticket counts by status.
type DashboardStats struct {
	TotalUsers       int64
	TotalDepartments int64
	TotalTickets     int64
	ByStatus         map[TicketStatus]int64
}
