package models

// SubmissionStatus represents the lifecycle of one submission attempt.
type SubmissionStatus string

const (
	SubmissionStatusIdle      SubmissionStatus = "idle"
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusSucceeded SubmissionStatus = "succeeded"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// CanSubmit reports whether a new submission may start from this status.
func (s SubmissionStatus) CanSubmit() bool {
	return s != SubmissionStatusPending
}

// StatusEvent is published whenever a form changes status.
type StatusEvent struct {
	SessionID string           `json:"sessionId" msgpack:"sessionId"`
	Status    SubmissionStatus `json:"status" msgpack:"status"`
	Error     string           `json:"error,omitempty" msgpack:"error,omitempty"`
	Timestamp int64            `json:"timestamp" msgpack:"timestamp"` // Unix ms
}
