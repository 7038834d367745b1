package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler drives the dispatch engine on a fixed period. Due jobs are
// matched by exact HH:MM equality, so the first tick can be aligned to the
// next minute boundary to get one tick per wall-clock minute.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)
	align    bool

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

// AlignToMinute delays the first tick until the next minute boundary.
func (s *Scheduler) AlignToMinute() *Scheduler {
	s.align = true
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		slog.Info("scheduler started", "interval", s.interval.String(), "aligned", s.align)

		if s.align {
			wait := time.Until(time.Now().Truncate(time.Minute).Add(time.Minute))
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-time.After(wait):
			}
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	slog.Debug("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
