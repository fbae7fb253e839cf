package models

import "time"

type Session struct {
	SessionID      string     `json:"sessionId"`
	BillID         string     `json:"billId"`
	RestaurantID   string     `json:"restaurantId"`
	TableID        string     `json:"tableId"`
	CustomerNumber string     `json:"customerNumber"`
	SessionStart   time.Time  `json:"sessionStart"`
	SessionEnd     *time.Time `json:"sessionEnd,omitempty"`
	SessionStatus  string     `json:"sessionStatus"`
	PaymentStatus  string     `json:"paymentStatus"`
}

const (
	SessionActive    = "Active"
	SessionExpired   = "Expired"
	SessionCompleted = "Completed"
)

const (
	PaymentPending      = "Pending"
	PaymentConfirmed    = "Confirmed"
	PaymentFailed       = "Failed"
	PaymentNotCompleted = "NotCompleted"
)

// IsTerminal reports whether the session can no longer transition.
func (s Session) IsTerminal() bool {
	return IsTerminalStatus(s.SessionStatus)
}

func IsTerminalStatus(status string) bool {
	return status == SessionExpired || status == SessionCompleted
}
