package model

import (
	"fmt"
	"time"
)

type BatchState string

const (
	BatchQueued    BatchState = "queued"
	BatchRunning   BatchState = "running"
	BatchCompleted BatchState = "completed"
)

type BatchItemError struct {
	SessionID uint   `json:"sessionId"`
	Message   string `json:"message"`
}

// BatchStatus is the short-lived monitoring record of a marking batch.
type BatchStatus struct {
	BatchID    string           `json:"batchId"`
	State      BatchState       `json:"state"`
	Total      int              `json:"total"`
	Processed  int              `json:"processed"`
	Successful int              `json:"successful"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Errors     []BatchItemError `json:"errors,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

func (s *BatchStatus) Progress() string {
	return fmt.Sprintf("%d/%d processed", s.Processed, s.Total)
}

// MarkingJob is one queued marking task. A nil SchemeID means the
// assessment's active scheme.
type MarkingJob struct {
	BatchID   string `json:"batchId,omitempty"`
	SessionID uint   `json:"sessionId"`
	SchemeID  *uint  `json:"schemeId,omitempty"`
}

// IdempotencyKey identifies the job independently of retries.
func (j MarkingJob) IdempotencyKey() string {
	if j.SchemeID == nil {
		return fmt.Sprintf("session:%d:scheme:active", j.SessionID)
	}
	return fmt.Sprintf("session:%d:scheme:%d", j.SessionID, *j.SchemeID)
}
