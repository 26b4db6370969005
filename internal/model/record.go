package model

import "time"

// Record is one buffered entry delivered by the upstream collector: a
// routing tag, the event time, and the decoded record body.
type Record struct {
	Tag  string
	Time time.Time
	Data map[string]any
}

// LogEvent is a single timestamped message destined for one log stream.
// Timestamps carry millisecond precision; conversion to epoch milliseconds
// happens only at the PutLogEvents boundary.
type LogEvent struct {
	Timestamp time.Time
	Message   string
}

// DestinationKey identifies a log stream within a log group. It is computed
// once per record during classification and never changes afterwards.
type DestinationKey struct {
	Group  string
	Stream string
}

func (k DestinationKey) String() string { return k.Group + "/" + k.Stream }
