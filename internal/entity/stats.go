package entity

import "time"

// DashboardStats is one snapshot of the aggregate counters.
type DashboardStats struct {
	PendingPayments      int       `json:"pendingPayments"`
	PendingConfirmations int       `json:"pendingConfirmations"`
	TotalStaff           int       `json:"totalStaff"`
	TodayPayments        int       `json:"todayPayments"`
	TotalTickets         int       `json:"totalTickets"`
	AvailableTickets     int       `json:"availableTickets"`
	CarsParked           int       `json:"carsParked"`
	PaidTickets          int       `json:"paidTickets"`
	Timestamp            time.Time `json:"timestamp"`
}

// SameCounts compares two snapshots ignoring the timestamp.
func (s *DashboardStats) SameCounts(o *DashboardStats) bool {
	if s == nil || o == nil {
		return s == o
	}
	a, b := *s, *o
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return a == b
}
