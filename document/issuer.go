// Package document turns a priced cart into an immutable sale document. The
// issuer is the only write path to the backend: it validates everything it
// can locally, submits exactly once, and clears the cart only after the
// backend confirmed and numbered the document.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-core/backend"
	"github.com/noah-isme/pos-core/cart"
	"github.com/noah-isme/pos-core/events"
	"github.com/noah-isme/pos-core/money"
	"github.com/noah-isme/pos-core/obs"
	"github.com/noah-isme/pos-core/pricing"
	"github.com/noah-isme/pos-core/session"
)

var (
	// ErrEmptyCart is returned when issuing from an empty ledger.
	ErrEmptyCart = errors.New("document: cart is empty")
	// ErrCustomerRequired is returned when no customer is assigned.
	ErrCustomerRequired = errors.New("document: customer is required")
	// ErrAuthorizationPending is returned while a requested discount has
	// not been decided. Nothing is submitted.
	ErrAuthorizationPending = errors.New("document: discount authorization pending")
	// ErrInsufficientCash is returned when the cash tendered does not
	// cover the total.
	ErrInsufficientCash = errors.New("document: cash received is below the total")
)

// Transport is the backend surface the issuer needs.
type Transport interface {
	CreateSaleDocument(ctx context.Context, in backend.CreateSaleDocumentInput) (backend.SaleDocument, error)
	PromoteDeliveryNote(ctx context.Context, id int64) (backend.SaleDocument, error)
	BillingConfig(ctx context.Context) (backend.BillingConfig, error)
}

// IssueInput describes the document to produce from the current cart.
type IssueInput struct {
	Kind          backend.DocumentKind
	PaymentMethod backend.PaymentMethod
	CashReceived  money.Money
	Notes         string
}

// Issuer submits finalised carts as sale documents.
type Issuer struct {
	Transport Transport
	Ledger    *cart.Ledger
	Session   *session.Session
	Bus       *events.Bus
	Log       zerolog.Logger
	Validate  *validator.Validate
	NewKey    func() string
}

// NewIssuer wires an issuer over the shared ledger and session.
func NewIssuer(transport Transport, ledger *cart.Ledger, sess *session.Session, bus *events.Bus, log zerolog.Logger) *Issuer {
	return &Issuer{
		Transport: transport,
		Ledger:    ledger,
		Session:   sess,
		Bus:       bus,
		Log:       log,
		Validate:  validator.New(),
		NewKey:    func() string { return uuid.NewString() },
	}
}

// Issue validates the sale and submits it. All preconditions are checked
// before any transport call; a pending discount authorisation blocks
// issuance outright. On success the ledger and per-sale session state are
// reset for the next customer.
func (i *Issuer) Issue(ctx context.Context, in IssueInput) (backend.SaleDocument, error) {
	if i.Ledger.Empty() {
		return backend.SaleDocument{}, ErrEmptyCart
	}
	customer := i.Session.Customer()
	if customer == nil {
		return backend.SaleDocument{}, ErrCustomerRequired
	}
	if active := i.Session.ActiveRequest(); active != nil && !active.State.Terminal() {
		return backend.SaleDocument{}, fmt.Errorf("request %d undecided: %w", active.ID, ErrAuthorizationPending)
	}

	authorized := i.Session.Authorized() || i.Session.Operator().Privileged()
	totals := i.Ledger.Totals(authorized)
	if totals.Applied != totals.Projected {
		// A discount is on the cart that nobody authorised.
		return backend.SaleDocument{}, ErrAuthorizationPending
	}
	applied := totals.Applied

	change := money.Money(0)
	cash := in.CashReceived
	if in.PaymentMethod == backend.PayCash {
		if cash < applied.Total {
			return backend.SaleDocument{}, fmt.Errorf("tendered %s against %s: %w",
				money.Format(cash), money.Format(applied.Total), ErrInsufficientCash)
		}
		change = pricing.Change(applied.Total, cash)
	} else {
		cash = applied.Total
	}

	payload := backend.CreateSaleDocumentInput{
		Kind:            in.Kind,
		CustomerID:      customer.ID,
		SellerID:        i.Session.Operator().ID,
		Subtotal:        money.Format(applied.Subtotal),
		DiscountPercent: i.Ledger.GeneralDiscount().StringFixed(2),
		DiscountValue:   money.Format(applied.Discount),
		Tax:             money.Format(applied.Tax),
		Total:           money.Format(applied.Total),
		PaymentMethod:   in.PaymentMethod,
		CashReceived:    money.Format(cash),
		Change:          money.Format(change),
		Notes:           strings.TrimSpace(in.Notes),
		Lines:           i.lineSnapshots(),
		IdempotencyKey:  i.NewKey(),
	}
	if approved := i.Session.ActiveRequest(); approved != nil && approved.State == backend.StateApproved {
		payload.ApprovedByID = approved.ApproverID
	}
	if err := i.Validate.Struct(payload); err != nil {
		return backend.SaleDocument{}, fmt.Errorf("%w: %v", backend.ErrValidation, err)
	}

	doc, err := i.Transport.CreateSaleDocument(ctx, payload)
	if err != nil {
		incIssue(in.Kind, "error")
		return backend.SaleDocument{}, fmt.Errorf("submit %s: %w", strings.ToLower(string(in.Kind)), err)
	}

	incIssue(in.Kind, "ok")
	i.Log.Info().
		Str("kind", string(doc.Kind)).
		Str("number", doc.Number).
		Int64("document_id", doc.ID).
		Str("total", money.Format(applied.Total)).
		Msg("document_issued")
	_, _ = i.Bus.Emit(ctx, events.TopicDocumentIssued, map[string]any{
		"documentId": doc.ID,
		"kind":       doc.Kind,
		"number":     doc.Number,
	})

	i.Ledger.Clear(ctx)
	i.Session.ResetSale()
	return doc, nil
}

// Promote converts an issued delivery note into an invoice. The backend
// assigns the invoice number; the cart is untouched.
func (i *Issuer) Promote(ctx context.Context, deliveryNoteID int64) (backend.SaleDocument, error) {
	doc, err := i.Transport.PromoteDeliveryNote(ctx, deliveryNoteID)
	if err != nil {
		incIssue(backend.KindInvoice, "promote_error")
		return backend.SaleDocument{}, fmt.Errorf("promote delivery note %d: %w", deliveryNoteID, err)
	}
	incIssue(backend.KindInvoice, "promoted")
	_, _ = i.Bus.Emit(ctx, events.TopicDocumentIssued, map[string]any{
		"documentId": doc.ID,
		"kind":       doc.Kind,
		"number":     doc.Number,
	})
	return doc, nil
}

// NumberPreview returns the provisional number the backend will likely assign
// to the next document of the kind. Display data only; the backend remains
// the sole authority at issuance.
func (i *Issuer) NumberPreview(ctx context.Context, kind backend.DocumentKind) (string, error) {
	if kind == backend.KindQuotation {
		return "", nil
	}
	cfg, err := i.Transport.BillingConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("billing config: %w", err)
	}
	switch kind {
	case backend.KindInvoice:
		return fmt.Sprintf("%s-%d", cfg.InvoicePrefix, cfg.NextInvoiceNumber), nil
	case backend.KindDeliveryNote:
		return fmt.Sprintf("%s-%d", cfg.DeliveryNotePrefix, cfg.NextDeliveryNoteNumber), nil
	default:
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
}

func (i *Issuer) lineSnapshots() []backend.DocumentLine {
	lines := i.Ledger.Lines()
	out := make([]backend.DocumentLine, 0, len(lines))
	for _, ln := range lines {
		sub := ln.Subtotal()
		disc := money.Round(money.Percent(sub, ln.DiscountPercent))
		if disc > sub {
			disc = sub
		}
		tax := money.Round(money.Percent(sub-disc, ln.TaxRatePercent))
		out = append(out, backend.DocumentLine{
			ProductID:      ln.ProductID,
			Quantity:       ln.Quantity,
			UnitPrice:      money.Format(ln.UnitPrice),
			UnitDiscount:   money.Format(disc),
			TaxRatePercent: ln.TaxRatePercent.StringFixed(2),
			Subtotal:       money.Format(sub),
			Total:          money.Format(sub - disc + tax),
		})
	}
	return out
}

func incIssue(kind backend.DocumentKind, result string) {
	if obs.DocumentIssueTotal == nil {
		return
	}
	obs.DocumentIssueTotal.WithLabelValues(string(kind), result).Inc()
}
