package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	CycleID     string          `json:"cycle_id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Locations   int             `json:"locations"`
	RunsFetched []time.Time     `json:"runs_fetched"`
	RunsSkipped []time.Time     `json:"runs_skipped"`
	Inserted    [GroupCount]int `json:"inserted"`
	Err         string          `json:"error,omitempty"`
}

// NewCycleReport starts a report with a fresh cycle identifier.
func NewCycleReport(startedAt time.Time) CycleReport {
	return CycleReport{
		CycleID:     uuid.NewString(),
		StartedAt:   startedAt.UTC(),
		RunsFetched: []time.Time{},
		RunsSkipped: []time.Time{},
	}
}

// TotalInserted sums the inserted rows across every table.
func (r CycleReport) TotalInserted() int {
	total := 0
	for _, n := range r.Inserted {
		total += n
	}
	return total
}

// Message is a transport-agnostic representation of a published report.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeReport encodes a report as a keyed JSON message.
func SerializeReport(r CycleReport) (Message, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return Message{}, err
	}
	status := "ok"
	if r.Err != "" {
		status = "failed"
	}
	return Message{
		Key:   []byte(r.CycleID),
		Value: value,
		Headers: map[string]string{
			"status":       status,
			"completed_at": r.CompletedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
