// Command archiver pops room lifecycle events from the Redis queue and
// persists them to PostgreSQL in batches.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxPendingBatches bounds how much the archiver buffers while Postgres is down.
const maxPendingBatches = 10

type eventSource interface {
	Pop(ctx context.Context, timeout time.Duration) (models.RoomEvent, error)
	Len(ctx context.Context) (int64, error)
}

type eventStore interface {
	InsertRoomEvents(ctx context.Context, events []models.RoomEvent) (int64, error)
}

// Archiver drains the event queue into the room_events table.
type Archiver struct {
	source        eventSource
	store         eventStore
	batchSize     int
	flushInterval time.Duration
	backlogEvery  time.Duration
	log           *logrus.Logger

	batch     []models.RoomEvent
	lastFlush time.Time
}

func NewArchiver(source eventSource, store eventStore, batchSize int, flushInterval time.Duration, logger *logrus.Logger) *Archiver {
	return &Archiver{
		source:        source,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		backlogEvery:  time.Minute,
		log:           logger,
		batch:         make([]models.RoomEvent, 0, batchSize),
	}
}

// Run starts the read loop and the backlog reporter and blocks until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(gctx) })
	g.Go(func() error { return a.backlogLoop(gctx) })
	return g.Wait()
}

// readLoop pops events with a BLPOP timeout of one flush interval, so a quiet
// queue still gets its partial batch flushed on time.
func (a *Archiver) readLoop(ctx context.Context) error {
	a.lastFlush = time.Now()
	for {
		if ctx.Err() != nil {
			// final flush on the way out
			a.flush(context.WithoutCancel(ctx))
			return nil
		}

		ev, err := a.source.Pop(ctx, a.flushInterval)
		switch {
		case err == nil:
			a.batch = append(a.batch, ev)
		case errors.Is(err, redis.Nil), errors.Is(err, context.Canceled):
		default:
			a.log.WithError(err).Warn("failed to pop room event")
			// avoid spinning against a broken connection
			select {
			case <-ctx.Done():
			case <-time.After(a.flushInterval):
			}
		}

		if len(a.batch) >= a.batchSize || time.Since(a.lastFlush) >= a.flushInterval {
			a.flush(ctx)
		}
	}
}

// flush writes the pending batch. On failure the batch is kept for the next
// attempt, up to maxPendingBatches worth of events.
func (a *Archiver) flush(ctx context.Context) {
	a.lastFlush = time.Now()
	if len(a.batch) == 0 {
		return
	}

	n, err := a.store.InsertRoomEvents(ctx, a.batch)
	if err != nil {
		a.log.WithError(err).WithField("pending", len(a.batch)).Error("failed to archive room events")
		if limit := a.batchSize * maxPendingBatches; len(a.batch) > limit {
			dropped := len(a.batch) - limit
			a.batch = append(a.batch[:0], a.batch[dropped:]...)
			a.log.WithField("dropped", dropped).Error("archive backlog full, dropping oldest events")
		}
		return
	}
	a.log.WithField("rows", n).Debug("archived room events")
	a.batch = a.batch[:0]
}

func (a *Archiver) backlogLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.backlogEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.source.Len(ctx)
			if err != nil {
				a.log.WithError(err).Warn("failed to read queue backlog")
				continue
			}
			a.log.WithField("backlog", n).Info("room event queue backlog")
		}
	}
}
