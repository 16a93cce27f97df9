// Package queue carries analysis events over RabbitMQ: the publisher used
// by the analysis service and the consumer that keeps the per-user stats
// projection current.
package queue

import "time"

// QueueName is the durable queue analysis events are routed to.
const QueueName = "analysis.events"

// Event types.
const (
	AnalysisSaved   = "analysis.saved"
	AnalysisDeleted = "analysis.deleted"
)

// AnalysisEvent is published whenever an analysis is saved or deleted.  It
// carries enough for consumers to react without reading the record back.
type AnalysisEvent struct {
	Type       string    `json:"type"`
	AnalysisID string    `json:"analysisId"`
	UserID     string    `json:"userId"`
	EGFR       float64   `json:"eGFR,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
