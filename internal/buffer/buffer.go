// Package buffer accumulates tagged records and flushes them through the
// shipper in cycles, triggered by interval or by size.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
)

// ShipFunc delivers one cycle's records. It is the shipper's ShipCycle in
// production and a fake in tests.
type ShipFunc func(ctx context.Context, records []model.Record) error

// Buffer collects records from producers and hands them to a single flush
// worker. A failed cycle's records are kept and redelivered on the next
// flush, up to MaxPending records; beyond that the oldest are dropped with
// a warning.
type Buffer struct {
	ship          ShipFunc
	flushInterval time.Duration
	flushSize     int
	maxPending    int
	log           zerolog.Logger

	mu      sync.Mutex
	pending []model.Record
	kick    chan struct{}
}

// Options configure a Buffer. Zero values fall back to defaults.
type Options struct {
	FlushInterval time.Duration // default 5s
	FlushSize     int           // records that trigger an early flush, default 1000
	MaxPending    int           // retained records across failed cycles, default 100000
}

// New creates a Buffer that flushes through ship.
func New(ship ShipFunc, opts Options, log zerolog.Logger) *Buffer {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = 1000
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 100_000
	}
	return &Buffer{
		ship:          ship,
		flushInterval: opts.FlushInterval,
		flushSize:     opts.FlushSize,
		maxPending:    opts.MaxPending,
		log:           log,
		kick:          make(chan struct{}, 1),
	}
}

// Add queues one record. Safe for concurrent use.
func (b *Buffer) Add(rec model.Record) {
	b.mu.Lock()
	b.pending = append(b.pending, rec)
	full := len(b.pending) >= b.flushSize
	b.mu.Unlock()
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes on the configured interval (or earlier when the size trigger
// fires) until ctx is cancelled, then performs a final flush. It is the
// only goroutine that invokes ship, so the shipper sees strictly
// sequential cycles.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}

// Flush delivers everything pending as one cycle. On failure the records
// are requeued ahead of anything added meanwhile.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	records := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(records) == 0 {
		return
	}

	if err := b.ship(ctx, records); err != nil {
		b.log.Warn().Err(err).Int("records", len(records)).Msg("cycle failed, retaining records for redelivery")
		b.requeue(records)
		return
	}
}

func (b *Buffer) requeue(records []model.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(records, b.pending...)
	if over := len(b.pending) - b.maxPending; over > 0 {
		b.log.Warn().Int("dropped", over).Msg("pending buffer overflow, dropping oldest records")
		b.pending = b.pending[over:]
	}
}

// Len reports the number of pending records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
