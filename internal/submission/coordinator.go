// Package submission stages a schedule batch for explicit confirmation and
// sends it to the data service once confirmed.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"examdesk/internal/metrics"
	"examdesk/internal/model"
)

var (
	ErrNoPending    = errors.New("no submission is waiting for confirmation")
	ErrStalePending = errors.New("submission was replaced by a newer request")
	ErrInFlight     = errors.New("a submission is already in progress")
	ErrEmptyPayload = errors.New("payload has no schedules")
)

// Creator sends a batch to the data service.
type Creator interface {
	CreateSchedules(ctx context.Context, payload model.Payload) ([]model.PersistedSlot, error)
}

// Reloader refetches persisted schedules after a mutating call.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Batch describes one confirmed submission.
type Batch struct {
	ID          string
	Payload     model.Payload
	Created     []model.PersistedSlot
	ConfirmedAt time.Time
}

// HistorySink durably records confirmed batches.
type HistorySink interface {
	RecordBatch(ctx context.Context, b Batch) error
}

// Pending is a payload waiting for the user's confirmation.
type Pending struct {
	ID       string        `json:"id"`
	Payload  model.Payload `json:"payload"`
	StagedAt time.Time     `json:"staged_at"`
}

// Result is the outcome of a confirmed submission.
type Result struct {
	Batch     Batch
	ReloadErr error // reload failure does not undo the submission
}

// Coordinator holds at most one pending payload at a time.
type Coordinator struct {
	creator   Creator
	reloader  Reloader
	sink      HistorySink
	onCreated func(Batch)
	logger    *zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	pending  *Pending
	inFlight bool
	history  []model.PersistedSlot
}

// NewCoordinator creates a coordinator. reloader may be nil and set later.
func NewCoordinator(creator Creator, reloader Reloader, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Coordinator{
		creator:  creator,
		reloader: reloader,
		logger:   logger,
		now:      time.Now,
	}
}

// SetReloader sets the reload path triggered after a successful submission.
func (c *Coordinator) SetReloader(r Reloader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloader = r
}

// UseHistorySink records every confirmed batch in s.
func (c *Coordinator) UseHistorySink(s HistorySink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// OnCreated registers fn to run after a batch is created and before reload.
func (c *Coordinator) OnCreated(fn func(Batch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCreated = fn
}

// Stage stores payload for confirmation, replacing any earlier pending payload.
func (c *Coordinator) Stage(payload model.Payload) (*Pending, error) {
	if payload.Empty() {
		return nil, ErrEmptyPayload
	}

	p := &Pending{ID: uuid.NewString(), Payload: payload, StagedAt: c.now()}

	c.mu.Lock()
	replaced := c.pending
	c.pending = p
	c.mu.Unlock()

	if replaced != nil {
		c.logger.Debug().Str("replaced", replaced.ID).Str("pending", p.ID).Msg("pending submission replaced")
	}
	cp := *p
	return &cp, nil
}

// Pending returns the payload waiting for confirmation, if any.
func (c *Coordinator) Pending() (*Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil, false
	}
	cp := *c.pending
	return &cp, true
}

// Discard drops the pending payload. An empty id discards whatever is pending.
func (c *Coordinator) Discard(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoPending
	}
	if id != "" && c.pending.ID != id {
		return ErrStalePending
	}
	c.pending = nil
	return nil
}

// InFlight reports whether a confirmation is currently being sent.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Confirm sends the pending payload identified by id as one batch.
// An empty id confirms whatever is pending.
func (c *Coordinator) Confirm(ctx context.Context, id string) (Result, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return Result{}, ErrInFlight
	}
	if c.pending == nil {
		c.mu.Unlock()
		return Result{}, ErrNoPending
	}
	if id != "" && c.pending.ID != id {
		c.mu.Unlock()
		return Result{}, ErrStalePending
	}
	p := *c.pending
	c.inFlight = true
	c.mu.Unlock()

	created, err := c.creator.CreateSchedules(ctx, p.Payload)

	c.mu.Lock()
	c.inFlight = false
	if c.pending != nil && c.pending.ID == p.ID {
		c.pending = nil
	}
	if err != nil {
		c.mu.Unlock()
		metrics.IncSubmission("failed", 0)
		c.logger.Error().Err(err).Str("pending", p.ID).Str("class_id", p.Payload.ClassID).Msg("schedule submission failed")
		return Result{}, fmt.Errorf("create schedules: %w", err)
	}
	c.history = append(c.history, created...)
	sink, onCreated, reloader := c.sink, c.onCreated, c.reloader
	c.mu.Unlock()

	batch := Batch{ID: p.ID, Payload: p.Payload, Created: created, ConfirmedAt: c.now()}
	metrics.IncSubmission("created", len(created))
	c.logger.Info().
		Str("batch", batch.ID).
		Str("class_id", p.Payload.ClassID).
		Int("items", len(p.Payload.Schedules)).
		Int("created", len(created)).
		Msg("schedule batch submitted")

	if sink != nil {
		if err := sink.RecordBatch(ctx, batch); err != nil {
			c.logger.Warn().Err(err).Str("batch", batch.ID).Msg("failed to record batch")
		}
	}
	if onCreated != nil {
		onCreated(batch)
	}

	res := Result{Batch: batch}
	if reloader != nil {
		if err := reloader.Reload(ctx); err != nil {
			res.ReloadErr = err
			c.logger.Warn().Err(err).Msg("reload after submission failed")
		}
	}
	return res, nil
}

// History returns every slot created during this session.
func (c *Coordinator) History() []model.PersistedSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.PersistedSlot, len(c.history))
	copy(out, c.history)
	return out
}
