// Package discount runs the general-discount authorisation workflow: a
// cashier asks a named approver for a percent, the request sits pending on
// the backend, and the synchroniser folds the decision back into the cart.
package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-core/backend"
	"github.com/noah-isme/pos-core/cart"
	"github.com/noah-isme/pos-core/events"
	"github.com/noah-isme/pos-core/obs"
	"github.com/noah-isme/pos-core/session"
)

var (
	// ErrMissingApprover is returned when a request names no approver.
	ErrMissingApprover = errors.New("discount: approver is required")
	// ErrApprovalRequired is returned when an unprivileged operator tries
	// to apply a discount directly.
	ErrApprovalRequired = errors.New("discount: approval is required for this operator")
	// ErrApprovalNotRequired is returned when a privileged operator opens a
	// request instead of applying the discount directly.
	ErrApprovalNotRequired = errors.New("discount: operator may apply discounts directly")
	// ErrRequestInFlight is returned when a request is opened while another
	// one is still pending.
	ErrRequestInFlight = errors.New("discount: a request is already pending")
)

// Transport is the backend surface the workflow needs.
type Transport interface {
	CreateDiscountRequest(ctx context.Context, in backend.CreateDiscountRequestInput) (backend.DiscountRequest, error)
	GetDiscountRequest(ctx context.Context, id int64) (backend.DiscountRequest, error)
}

// Workflow coordinates ledger, session and backend for general discounts.
type Workflow struct {
	Transport Transport
	Ledger    *cart.Ledger
	Session   *session.Session
	Bus       *events.Bus
	Log       zerolog.Logger
	Now       func() time.Time
}

// Apply sets the general discount without a second pair of eyes. Only
// privileged operators may do this.
func (w *Workflow) Apply(ctx context.Context, percent decimal.Decimal) error {
	if !w.Session.Operator().Privileged() {
		return ErrApprovalRequired
	}
	if err := w.Ledger.SetGeneralDiscount(ctx, percent); err != nil {
		return err
	}
	w.Session.SetAuthorized(true)
	w.Session.SetActiveRequest(nil)
	incRequest("direct")
	w.emitState(ctx, 0, backend.StateApproved, percent)
	return nil
}

// Request opens a pending authorisation for the percent with the named
// approver. The percent lands on the ledger immediately but stays
// unauthorised until the approver decides.
func (w *Workflow) Request(ctx context.Context, percent decimal.Decimal, approverID int64) (backend.DiscountRequest, error) {
	op := w.Session.Operator()
	if op.Privileged() {
		return backend.DiscountRequest{}, ErrApprovalNotRequired
	}
	if approverID <= 0 {
		return backend.DiscountRequest{}, ErrMissingApprover
	}
	if active := w.Session.ActiveRequest(); active != nil && !active.State.Terminal() {
		return backend.DiscountRequest{}, ErrRequestInFlight
	}
	if err := w.Ledger.SetGeneralDiscount(ctx, percent); err != nil {
		return backend.DiscountRequest{}, err
	}

	totals := w.Ledger.Totals(false)
	req, err := w.Transport.CreateDiscountRequest(ctx, backend.CreateDiscountRequestInput{
		ApproverID:          approverID,
		RequestedPercent:    percent,
		Subtotal:            totals.Applied.Subtotal,
		Tax:                 totals.Applied.Tax,
		TotalBeforeDiscount: totals.Applied.Total,
		TotalWithDiscount:   totals.Projected.Total,
	})
	if err != nil {
		incRequest("error")
		return backend.DiscountRequest{}, fmt.Errorf("create discount request: %w", err)
	}

	w.Session.SetAuthorized(false)
	w.Session.SetActiveRequest(&req)
	incRequest("created")
	w.Log.Info().
		Int64("request_id", req.ID).
		Int64("approver_id", approverID).
		Str("percent", percent.String()).
		Msg("discount_request_created")
	w.emitState(ctx, req.ID, req.State, percent)
	return req, nil
}

// Refresh fetches the active request and, when its state moved, folds the
// decision into ledger and session. It reports the request as currently
// known; ok is false when no request is active.
func (w *Workflow) Refresh(ctx context.Context) (req backend.DiscountRequest, ok bool, err error) {
	active := w.Session.ActiveRequest()
	if active == nil {
		return backend.DiscountRequest{}, false, nil
	}
	if active.State.Terminal() {
		// Terminal is terminal: never re-fetch a decided request.
		return *active, true, nil
	}

	fetched, err := w.Transport.GetDiscountRequest(ctx, active.ID)
	if err != nil {
		return *active, true, fmt.Errorf("refresh discount request %d: %w", active.ID, err)
	}
	if fetched.State == active.State {
		return fetched, true, nil
	}
	w.resolve(ctx, fetched)
	return fetched, true, nil
}

// resolve applies a state transition reported by the backend.
func (w *Workflow) resolve(ctx context.Context, req backend.DiscountRequest) {
	switch req.State {
	case backend.StateApproved:
		percent := req.EffectivePercent()
		if err := w.Ledger.SetGeneralDiscount(ctx, percent); err != nil {
			w.Log.Error().Err(err).Int64("request_id", req.ID).Msg("apply approved percent")
			return
		}
		w.Session.SetAuthorized(true)
		incRequest("approved")
		w.observeResolution(req)
		w.emitState(ctx, req.ID, req.State, percent)
	case backend.StateRejected:
		if err := w.Ledger.SetGeneralDiscount(ctx, decimal.Zero); err != nil {
			w.Log.Error().Err(err).Int64("request_id", req.ID).Msg("clear rejected percent")
			return
		}
		w.Session.SetAuthorized(false)
		incRequest("rejected")
		w.observeResolution(req)
		w.emitState(ctx, req.ID, req.State, decimal.Zero)
	default:
		// Still pending, nothing to fold in.
		return
	}
	snapshot := req
	w.Session.SetActiveRequest(&snapshot)
}

func (w *Workflow) observeResolution(req backend.DiscountRequest) {
	if req.CreatedAt.IsZero() || obs.DiscountResolutionSeconds == nil {
		return
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	obs.DiscountResolutionSeconds.Observe(now().Sub(req.CreatedAt).Seconds())
}

func incRequest(result string) {
	if obs.DiscountRequestTotal == nil {
		return
	}
	obs.DiscountRequestTotal.WithLabelValues(result).Inc()
}

func (w *Workflow) emitState(ctx context.Context, requestID int64, state backend.RequestState, percent decimal.Decimal) {
	_, _ = w.Bus.Emit(ctx, events.TopicDiscountStateChanged, map[string]any{
		"requestId": requestID,
		"state":     state,
		"percent":   percent.String(),
	})
}
