// Package indexer implements the indexer driver (C8): it polls each
// registered indexer on its own ticker, asks the range scheduler (C4) for
// a window, runs the correlation pipeline (C5) over it, and commits the
// result plus the advanced cursor through the checkpoint store (C3) in
// one transaction. It is the only component that wires C3 through C7
// together end to end.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/proposalsapp/govindexer/internal/chain"
	"github.com/proposalsapp/govindexer/internal/correlate"
	"github.com/proposalsapp/govindexer/internal/governor"
	"github.com/proposalsapp/govindexer/internal/schedule"
	"github.com/proposalsapp/govindexer/internal/store"
	"github.com/proposalsapp/govindexer/observability/metrics"
)

var tracer = otel.Tracer("github.com/proposalsapp/govindexer/internal/indexer")

// Store is the subset of store.Store the driver and the pipeline it runs
// need, declared as a seam so tests can substitute an in-memory fake.
type Store interface {
	Commit(ctx context.Context, indexerID uuid.UUID, ws store.WriteSet) error
	LoadCursor(ctx context.Context, indexerID uuid.UUID) (store.Cursor, error)
	LoadProposal(ctx context.Context, indexerID uuid.UUID, externalID string) (store.Proposal, error)
}

// Indexer is one registered (governor variant, contract, chain) triple the
// driver polls on its own schedule.
type Indexer struct {
	Name      string
	ID        uuid.UUID
	DAOID     uuid.UUID
	Client    *chain.Client
	Spec      governor.Spec
	Sched     *schedule.Scheduler
	Timestamp *chain.TimestampEstimator
	Store     Store

	// Interval is the wait between ticks; Loop waits it after every tick,
	// whether or not the cursor has caught up to head. Timeout bounds a
	// single tick's wall-clock budget
	// (section 5: "Each tick honors a per-indexer timeout (default 5
	// minutes)").
	Interval time.Duration
	Timeout  time.Duration
}

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Minute

	maxTransportRetries = 3
)

// Driver runs the tick loop for a single Indexer.
type Driver struct {
	idx Indexer
	log *slog.Logger
}

// New builds a Driver for idx, defaulting Interval/Timeout when unset.
func New(idx Indexer, log *slog.Logger) *Driver {
	if idx.Interval <= 0 {
		idx.Interval = defaultInterval
	}
	if idx.Timeout <= 0 {
		idx.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{idx: idx, log: log.With(slog.String("indexer", idx.Name))}
}

// Loop runs Tick on Interval until ctx is canceled.
func (d *Driver) Loop(ctx context.Context) {
	ticker := time.NewTicker(d.idx.Interval)
	defer ticker.Stop()
	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one scheduler-to-commit cycle: section 4.8's
// "load cursor → ask scheduler for a window → invoke the pipeline →
// commit → record advancement." A failed tick never advances the cursor
// (section 7); the next tick retries the same window.
func (d *Driver) Tick(ctx context.Context) {
	m := metrics.Indexer()
	start := time.Now()
	tickCtx, cancel := context.WithTimeout(ctx, d.idx.Timeout)
	defer cancel()

	tickCtx, span := tracer.Start(tickCtx, "indexer.tick", trace.WithAttributes(
		attribute.String("indexer.name", d.idx.Name),
		attribute.String("indexer.variant", string(d.idx.Spec.Variant)),
	))
	defer span.End()

	outcome := "ok"
	defer func() {
		m.Ticks.WithLabelValues(d.idx.Name, outcome).Inc()
		m.TickDuration.WithLabelValues(d.idx.Name).Observe(time.Since(start).Seconds())
		m.SpeedGauge.WithLabelValues(d.idx.Name).Set(float64(d.idx.Sched.Speed()))
		m.CursorGauge.WithLabelValues(d.idx.Name).Set(float64(d.idx.Sched.Cursor()))
	}()

	head, err := d.idx.Client.Head(tickCtx)
	if err != nil {
		d.fail(span, &outcome, "head", err)
		return
	}

	window, ok := d.idx.Sched.NextWindow(head)
	if !ok {
		span.SetAttributes(attribute.Bool("idle", true))
		return
	}

	if err := d.runWindow(tickCtx, window); err != nil {
		if errors.Is(err, chain.ErrRangeTooLarge) {
			d.idx.Sched.Shrink()
			m.SpeedShrinks.WithLabelValues(d.idx.Name).Inc()
			d.log.Warn("range too large, shrinking window",
				slog.Uint64("from", window.From), slog.Uint64("to", window.To),
				slog.Uint64("new_speed", d.idx.Sched.Speed()))
			outcome = "range_too_large"
			span.SetStatus(codes.Error, "range too large")
			return
		}
		d.fail(span, &outcome, "run_window", err)
		return
	}

	d.idx.Sched.Advance(window.To)
	d.log.Info("tick committed",
		slog.Uint64("from", window.From), slog.Uint64("to", window.To),
		slog.Uint64("next_cursor", d.idx.Sched.Cursor()))
}

func (d *Driver) fail(span trace.Span, outcome *string, stage string, err error) {
	*outcome = "error"
	errTag := errorTag(err)
	metrics.Indexer().TickFailures.WithLabelValues(d.idx.Name, errTag).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.log.Error("tick failed", slog.String("stage", stage), slog.String("error_kind", errTag), slog.String("error", err.Error()))
}

func errorTag(err error) string {
	switch {
	case errors.Is(err, chain.ErrTransport):
		return "transport"
	case errors.Is(err, chain.ErrRangeTooLarge):
		return "range_too_large"
	case errors.Is(err, chain.ErrMalformed):
		return "malformed"
	case errors.Is(err, chain.ErrDanglingNominee):
		return "dangling_nominee"
	case errors.Is(err, chain.ErrRevert):
		return "revert"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "unknown"
	}
}

// runWindow invokes the correlation pipeline over window with bounded
// retries on Transport failures (section 7: "Retried with backoff inside
// the tick; if bounded retries exhausted, tick fails"), then commits the
// resulting batch as a WriteSet through the checkpoint store.
func (d *Driver) runWindow(ctx context.Context, window schedule.Window) error {
	pipeline := &correlate.Pipeline{
		Client:     d.idx.Client,
		Spec:       d.idx.Spec,
		Store:      d.idx.Store,
		Timestamps: d.idx.Timestamp,
		IndexerID:  d.idx.ID,
		DAOID:      d.idx.DAOID,
	}

	var batch correlate.Batch
	var err error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		batch, err = pipeline.Run(ctx, window.From, window.To)
		if err == nil {
			break
		}
		if !errors.Is(err, chain.ErrTransport) || attempt == maxTransportRetries {
			return err
		}
		d.log.Warn("transport error, retrying", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: tick timeout during retry", chain.ErrTransport)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return err
	}

	ws := store.WriteSet{
		Proposals: batch.Proposals,
		Votes:     batch.Votes,
		NewCursor: window.To + 1,
		NewSpeed:  d.idx.Sched.Speed() * schedule.SpeedGrowthFactor,
	}
	if ws.NewSpeed == 0 {
		ws.NewSpeed = d.idx.Sched.Speed()
	}

	if err := d.idx.Store.Commit(ctx, d.idx.ID, ws); err != nil {
		return err
	}
	metrics.Indexer().ProposalsWritten.WithLabelValues(d.idx.Name).Add(float64(len(ws.Proposals)))
	metrics.Indexer().VotesWritten.WithLabelValues(d.idx.Name).Add(float64(len(ws.Votes)))
	return nil
}
