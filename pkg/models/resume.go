package models

import "time"

// ResumeRecord is the durable continuation of an execution suspended by wait_delay.
type ResumeRecord struct {
	ExecutionID string    `json:"execution_id"`
	ResumeAt    time.Time `json:"resume_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsDue reports whether the execution should be resumed at now.
func (r *ResumeRecord) IsDue(now time.Time) bool {
	return !r.ResumeAt.After(now)
}
