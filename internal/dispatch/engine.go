package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
	"github.com/LeventeLantos/schedule-dispatch/internal/store"
)

// ErrDispatchInProgress is returned when a pass is requested while another
// one is still running. Overlapping triggers are rejected, not interleaved.
var ErrDispatchInProgress = errors.New("a dispatch pass is already in progress")

// Engine is the single entry point for every trigger context: the periodic
// tick selects jobs due at the current minute, the manual trigger selects
// everything. Both run the identical Expander/Throttler pipeline and remove
// dispatched jobs in one batch write afterwards.
type Engine struct {
	store     store.ScheduleStore
	throttler *Throttler
	log       *slog.Logger

	inFlight atomic.Bool
	passes   sync.WaitGroup
	now      func() time.Time
}

func NewEngine(st store.ScheduleStore, th *Throttler, log *slog.Logger) *Engine {
	return &Engine{
		store:     st,
		throttler: th,
		log:       log,
		now:       time.Now,
	}
}

type PassResult struct {
	JobsRun int `json:"jobsRun"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// RunDue dispatches jobs whose time equals the current local HH:MM. There
// is no catch-up: a minute missed while the process was down stays missed
// until the same time next day.
func (e *Engine) RunDue(ctx context.Context) (PassResult, error) {
	now := e.now().Format("15:04")
	return e.run(ctx, func(j model.ScheduleJob) bool { return j.Time == now })
}

// RunAll dispatches every stored job unconditionally.
func (e *Engine) RunAll(ctx context.Context) (PassResult, error) {
	return e.run(ctx, func(model.ScheduleJob) bool { return true })
}

func (e *Engine) run(ctx context.Context, due func(model.ScheduleJob) bool) (PassResult, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return PassResult{}, ErrDispatchInProgress
	}
	e.passes.Add(1)
	defer func() {
		e.inFlight.Store(false)
		e.passes.Done()
	}()

	// A started pass runs every selected job and recipient to completion
	// even if the trigger goes away (scheduler stop, client disconnect).
	// The adapters' own timeouts stay as the only per-recipient deadline.
	ctx = context.WithoutCancel(ctx)

	jobs, err := e.store.List(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("list jobs: %w", err)
	}

	var res PassResult
	var dispatched []string
	for _, job := range jobs {
		if !due(job) {
			continue
		}

		sent, failed := e.throttler.ProcessTasks(ctx, Expand(job))
		res.JobsRun++
		res.Sent += sent
		res.Failed += failed
		dispatched = append(dispatched, job.ID)

		e.log.Info("job dispatched",
			"id", job.ID,
			"time", job.Time,
			"recipients", len(job.Recipients),
			"sent", sent,
			"failed", failed,
		)
	}

	if len(dispatched) == 0 {
		return res, nil
	}
	// A job disappears from the schedule once every recipient was
	// attempted, regardless of individual outcomes. A removal failure
	// must not have removed anything.
	if err := e.store.RemoveAll(ctx, dispatched); err != nil {
		return res, fmt.Errorf("remove dispatched jobs: %w", err)
	}
	return res, nil
}

// Wait blocks until any in-flight dispatch pass has finished. Shutdown
// calls it so a pass started before the stop signal still completes.
func (e *Engine) Wait() {
	e.passes.Wait()
}

// PendingRecipients reports how many jobs and recipients a manual run-all
// would touch, for the operator confirmation gate.
func (e *Engine) PendingRecipients(ctx context.Context) (jobs, recipients int, err error) {
	list, err := e.store.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range list {
		recipients += len(j.Recipients)
	}
	return len(list), recipients, nil
}

// Tick adapts RunDue to the scheduler's callback shape. An overlapping
// pass is reported and skipped, never queued.
func (e *Engine) Tick(ctx context.Context) {
	res, err := e.RunDue(ctx)
	switch {
	case errors.Is(err, ErrDispatchInProgress):
		e.log.Warn("tick skipped, dispatch pass still running")
	case err != nil:
		e.log.Error("dispatch pass failed", "err", err)
	case res.JobsRun > 0:
		e.log.Info("dispatch pass completed", "jobs", res.JobsRun, "sent", res.Sent, "failed", res.Failed)
	}
}
