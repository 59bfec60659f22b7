package entity

import "time"

// AttemptRecord is one verification attempt as seen by the audit trail.
// Rows live in the database until the archiver moves them to object storage.
type AttemptRecord struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"account_id"`
	Method     string    `json:"method"`
	Accepted   bool      `json:"accepted"`
	OccurredAt time.Time `json:"occurred_at"`
}
