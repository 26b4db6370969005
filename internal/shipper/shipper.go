// Package shipper delivers buffered log records to CloudWatch Logs.
//
// One call to ShipCycle processes one flush cycle: records are classified
// into destinations, each destination's events are sorted and split into
// request-sized batches, and batches are appended strictly in order, with
// destinations and sequence tokens memoized across cycles.
package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/batch"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/classify"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/client"
	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
)

// Config carries the shipper's delivery options.
type Config struct {
	// AutoCreate enables lazy creation of missing groups and streams.
	// When disabled, records for a missing destination are dropped with a
	// warning.
	AutoCreate bool

	// MessageKey selects a record field to use as the event message.
	// Empty means the whole record is JSON-encoded.
	MessageKey string

	// MaxMessageBytes truncates messages longer than this many UTF-8
	// bytes before batching. Zero disables truncation.
	MaxMessageBytes int

	// MaxBatchEvents caps events per PutLogEvents request. Zero means the
	// service maximum.
	MaxBatchEvents int
}

// Shipper owns the destination and sequence-token caches and performs all
// remote calls. It is not safe for concurrent use; callers invoke cycles
// one at a time.
type Shipper struct {
	api        client.LogsAPI
	classifier *classify.Classifier
	splitter   batch.Splitter
	cache      *destinationCache

	autoCreate      bool
	messageKey      string
	maxMessageBytes int
	log             zerolog.Logger
}

// New creates a Shipper with empty caches.
func New(api client.LogsAPI, classifier *classify.Classifier, cfg Config, log zerolog.Logger) *Shipper {
	return &Shipper{
		api:             api,
		classifier:      classifier,
		splitter:        batch.NewSplitter(cfg.MaxBatchEvents),
		cache:           newDestinationCache(),
		autoCreate:      cfg.AutoCreate,
		messageKey:      cfg.MessageKey,
		maxMessageBytes: cfg.MaxMessageBytes,
		log:             log,
	}
}

// ShipCycle delivers one cycle's records. Records that fail classification
// are skipped with a warning. A failing destination does not abort the
// others; the per-destination errors are joined in the return value, and
// the caller is expected to redeliver the cycle's records when it is
// non-nil.
func (s *Shipper) ShipCycle(ctx context.Context, records []model.Record) error {
	destinations := make(map[model.DestinationKey][]model.LogEvent)
	for _, r := range records {
		key, data, err := s.classifier.Classify(r.Tag, r.Data)
		if err != nil {
			s.log.Warn().Str("tag", r.Tag).Err(err).Msg("dropping unclassifiable record")
			continue
		}
		msg, err := s.renderMessage(data)
		if err != nil {
			s.log.Warn().Str("tag", r.Tag).Err(err).Msg("dropping unrenderable record")
			continue
		}
		destinations[key] = append(destinations[key], model.LogEvent{
			Timestamp: r.Time,
			Message:   truncateMessage(msg, s.maxMessageBytes),
		})
	}

	var errs []error
	for key, events := range destinations {
		if err := s.shipDestination(ctx, key, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Shipper) shipDestination(ctx context.Context, key model.DestinationKey, events []model.LogEvent) error {
	ok, err := s.ensureDestination(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		// Intentional data loss: the destination is missing and
		// auto-creation is off, so these events have nowhere to go.
		s.log.Warn().Str("destination", key.String()).Int("events", len(events)).
			Msg("destination missing and auto-create disabled, dropping events")
		return nil
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	batches := s.splitter.Split(events)
	for _, b := range batches {
		// Each append depends on the token produced or cleared by the
		// previous one, so the remaining batches cannot proceed on error.
		if err := s.putBatch(ctx, key, b); err != nil {
			return err
		}
	}
	s.log.Debug().Str("destination", key.String()).
		Int("events", len(events)).Int("batches", len(batches)).
		Msg("cycle delivered")
	return nil
}

func (s *Shipper) renderMessage(data map[string]any) (string, error) {
	if s.messageKey == "" {
		b, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encode record: %w", err)
		}
		return string(b), nil
	}
	v, ok := data[s.messageKey]
	if !ok {
		return "", fmt.Errorf("record has no %q field", s.messageKey)
	}
	if str, ok := v.(string); ok {
		return str, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %q field: %w", s.messageKey, err)
	}
	return string(b), nil
}

// truncateMessage cuts msg to at most max bytes without splitting a rune.
func truncateMessage(msg string, max int) string {
	if max <= 0 || len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
