package discount

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/pos-core/obs"
)

const (
	// DefaultInterval is the steady polling cadence while a request is
	// pending.
	DefaultInterval = 10 * time.Second
	// DefaultMinSpacing caps how close together two polls may run, no
	// matter how often ticks and visibility changes fire.
	DefaultMinSpacing = 2 * time.Second
)

// Synchronizer watches the active discount request in the background and
// folds the approver's decision into the cart via the workflow. It polls on a
// fixed cadence, pauses while the till UI is hidden, and stops itself once
// the request reaches a terminal state.
type Synchronizer struct {
	Workflow   *Workflow
	Interval   time.Duration
	MinSpacing time.Duration
	Log        zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}
	limiter *rate.Limiter
	visible bool
}

// NewSynchronizer builds a synchroniser with the default cadence. Pass zero
// durations to keep the defaults.
func NewSynchronizer(w *Workflow, interval, minSpacing time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if minSpacing <= 0 {
		minSpacing = DefaultMinSpacing
	}
	return &Synchronizer{
		Workflow:   w,
		Interval:   interval,
		MinSpacing: minSpacing,
		visible:    true,
	}
}

// Start launches the polling loop. Calling Start while running is a no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.kick = make(chan struct{}, 1)
	// Burst of 1: the spacing cap applies to every poll trigger equally.
	s.limiter = rate.NewLimiter(rate.Every(s.MinSpacing), 1)
	go s.run(runCtx, s.done, s.kick)
}

// Stop cancels the polling loop and waits for it to exit. Stopping a stopped
// synchroniser is a no-op.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.kick = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the polling loop is active.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// NotifyVisible tells the synchroniser whether the till UI is on screen.
// Polls are suppressed while hidden; regaining visibility triggers an
// immediate poll, still subject to the minimum spacing.
func (s *Synchronizer) NotifyVisible(visible bool) {
	s.mu.Lock()
	wasVisible := s.visible
	s.visible = visible
	kick := s.kick
	s.mu.Unlock()

	if visible && !wasVisible && kick != nil {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}, kick chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-kick:
		}
		if s.poll(ctx) {
			s.detach()
			return
		}
	}
}

// poll runs one synchronisation pass and reports whether the loop should
// stop.
func (s *Synchronizer) poll(ctx context.Context) bool {
	s.mu.Lock()
	visible := s.visible
	limiter := s.limiter
	s.mu.Unlock()

	if !visible {
		incPoll("hidden")
		return false
	}
	if limiter != nil && !limiter.Allow() {
		incPoll("throttled")
		return false
	}

	req, ok, err := s.Workflow.Refresh(ctx)
	if err != nil {
		incPoll("error")
		s.Log.Warn().Err(err).Msg("discount_poll_failed")
		return false
	}
	if !ok {
		incPoll("idle")
		return true
	}
	if req.State.Terminal() {
		incPoll(strings.ToLower(string(req.State)))
		s.Log.Info().Int64("request_id", req.ID).Str("state", string(req.State)).Msg("discount_poll_resolved")
		return true
	}
	incPoll("pending")
	return false
}

// detach clears the running state after the loop decided to stop on its own.
func (s *Synchronizer) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.done = nil
		s.kick = nil
	}
}

func incPoll(result string) {
	if obs.DiscountPollTotal == nil {
		return
	}
	obs.DiscountPollTotal.WithLabelValues(result).Inc()
}
