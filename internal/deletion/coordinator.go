// Package deletion removes persisted exam slots one at a time.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"examdesk/internal/metrics"
)

var (
	ErrMissingID = errors.New("slot id is required")
	ErrInFlight  = errors.New("deletion of this slot is already in progress")
)

// Deleter removes one slot on the data service.
type Deleter interface {
	DeleteSchedule(ctx context.Context, id string) error
}

// Reloader refetches persisted schedules after a mutating call.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Record describes one completed deletion.
type Record struct {
	SlotID    string
	DeletedAt time.Time
}

// Result is the outcome of a successful deletion.
type Result struct {
	Record    Record
	ReloadErr error // reload failure does not undo the deletion
}

// Sink durably records deletions.
type Sink interface {
	RecordDeletion(ctx context.Context, r Record) error
}

// Coordinator deletes slots and triggers the shared reload path.
type Coordinator struct {
	deleter  Deleter
	logger   *zerolog.Logger
	now      func() time.Time
	mu       sync.Mutex
	reloader Reloader
	sink     Sink
	inFlight map[string]struct{}
}

// NewCoordinator creates a coordinator. reloader may be nil and set later.
func NewCoordinator(deleter Deleter, reloader Reloader, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Coordinator{
		deleter:  deleter,
		reloader: reloader,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// SetReloader sets the reload path triggered after a successful deletion.
func (c *Coordinator) SetReloader(r Reloader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloader = r
}

// UseSink records every successful deletion in s.
func (c *Coordinator) UseSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// InFlight reports whether id is currently being deleted.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

// Delete removes the slot and reloads on success. A failed call leaves
// local state untouched and is not retried.
func (c *Coordinator) Delete(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, ErrMissingID
	}

	c.mu.Lock()
	if _, busy := c.inFlight[id]; busy {
		c.mu.Unlock()
		return Result{}, ErrInFlight
	}
	c.inFlight[id] = struct{}{}
	c.mu.Unlock()

	err := c.deleter.DeleteSchedule(ctx, id)

	c.mu.Lock()
	delete(c.inFlight, id)
	sink, reloader := c.sink, c.reloader
	c.mu.Unlock()

	if err != nil {
		metrics.IncDeletion("failed")
		c.logger.Error().Err(err).Str("slot_id", id).Msg("schedule deletion failed")
		return Result{}, fmt.Errorf("delete schedule %s: %w", id, err)
	}

	metrics.IncDeletion("deleted")
	c.logger.Info().Str("slot_id", id).Msg("schedule slot deleted")

	res := Result{Record: Record{SlotID: id, DeletedAt: c.now()}}
	if sink != nil {
		if err := sink.RecordDeletion(ctx, res.Record); err != nil {
			c.logger.Warn().Err(err).Str("slot_id", id).Msg("failed to record deletion")
		}
	}
	if reloader != nil {
		if err := reloader.Reload(ctx); err != nil {
			res.ReloadErr = err
			c.logger.Warn().Err(err).Msg("reload after deletion failed")
		}
	}
	return res, nil
}
