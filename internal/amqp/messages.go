package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gastos/internal/core"
)

// ReportRequest asks the report worker to run the monthly summary.
// Period is an optional "YYYY-MM" key; when empty the worker resolves the
// previous month itself.
type ReportRequest struct {
	Force       bool      `json:"force"`
	Period      string    `json:"period,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReportRequest creates a request stamped with the current time
func NewReportRequest(period string, force bool, requestedBy string) *ReportRequest {
	return &ReportRequest{
		Force:       force,
		Period:      period,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

// Validate checks that Period, when set, is a valid month key
func (m *ReportRequest) Validate() error {
	if m.Period == "" {
		return nil
	}
	if _, err := core.ParsePeriodKey(m.Period, time.UTC); err != nil {
		return fmt.Errorf("invalid period %q: %w", m.Period, err)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ReportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRequestFromJSON decodes and validates a request
func ReportRequestFromJSON(data []byte) (*ReportRequest, error) {
	var msg ReportRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
