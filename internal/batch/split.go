// Package batch partitions chronologically sorted log events into
// PutLogEvents-sized requests.
package batch

import (
	"time"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
)

// PutLogEvents request constraints.
// https://docs.aws.amazon.com/AmazonCloudWatchLogs/latest/APIReference/API_PutLogEvents.html
const (
	// MaxBatchBytes is the maximum total payload of one request, where each
	// event costs its UTF-8 message length plus EventOverheadBytes.
	MaxBatchBytes = 1_048_576

	// EventOverheadBytes is the per-event padding CloudWatch Logs adds when
	// accounting request size.
	EventOverheadBytes = 26

	// MaxBatchSpan bounds the spread between the oldest and newest event in
	// one request; a batch must span strictly less than 24 hours.
	MaxBatchSpan = 24 * time.Hour

	// DefaultMaxBatchEvents is the service's event-count cap per request.
	DefaultMaxBatchEvents = 10_000
)

// EventSize returns the accounted request cost of a single event.
func EventSize(message string) int {
	return len(message) + EventOverheadBytes
}

// Splitter partitions event lists under the three request constraints.
type Splitter struct {
	maxEvents int
}

// NewSplitter returns a Splitter capping batches at maxEvents events.
// Values outside (0, DefaultMaxBatchEvents] fall back to the default.
func NewSplitter(maxEvents int) Splitter {
	if maxEvents <= 0 || maxEvents > DefaultMaxBatchEvents {
		maxEvents = DefaultMaxBatchEvents
	}
	return Splitter{maxEvents: maxEvents}
}

// Split partitions events, which must be sorted ascending by timestamp,
// into batches that each satisfy the size, span, and count constraints.
// Events keep their relative order and every batch is non-empty. Admission
// is greedy and single-pass: a batch is sealed exactly when the next event
// would push it over a limit, so no earlier batch could have absorbed the
// first event of its successor.
func (s Splitter) Split(events []model.LogEvent) [][]model.LogEvent {
	if len(events) == 0 {
		return nil
	}
	var batches [][]model.LogEvent
	var current []model.LogEvent
	var currentBytes int
	var first time.Time

	for _, e := range events {
		if len(current) > 0 {
			overSpan := e.Timestamp.Sub(first) >= MaxBatchSpan
			overSize := currentBytes+EventSize(e.Message) > MaxBatchBytes
			overCount := len(current) >= s.maxEvents
			if overSpan || overSize || overCount {
				batches = append(batches, current)
				current = nil
				currentBytes = 0
			}
		}
		if len(current) == 0 {
			first = e.Timestamp
		}
		current = append(current, e)
		currentBytes += EventSize(e.Message)
	}
	return append(batches, current)
}
