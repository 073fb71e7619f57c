package document_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-core/backend"
	"github.com/noah-isme/pos-core/cart"
	"github.com/noah-isme/pos-core/document"
	"github.com/noah-isme/pos-core/events"
	"github.com/noah-isme/pos-core/session"
)

type stubTransport struct {
	mu           sync.Mutex
	createCalls  int
	promoteCalls int
	configCalls  int
	lastCreate   backend.CreateSaleDocumentInput
	createResp   backend.SaleDocument
	createErr    error
	promoteResp  backend.SaleDocument
	promoteErr   error
	config       backend.BillingConfig
}

func (s *stubTransport) CreateSaleDocument(_ context.Context, in backend.CreateSaleDocumentInput) (backend.SaleDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.lastCreate = in
	if s.createErr != nil {
		return backend.SaleDocument{}, s.createErr
	}
	return s.createResp, nil
}

func (s *stubTransport) PromoteDeliveryNote(_ context.Context, _ int64) (backend.SaleDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoteCalls++
	if s.promoteErr != nil {
		return backend.SaleDocument{}, s.promoteErr
	}
	return s.promoteResp, nil
}

func (s *stubTransport) BillingConfig(_ context.Context) (backend.BillingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configCalls++
	return s.config, nil
}

func newIssuer(t *testing.T, transport *stubTransport) (*document.Issuer, *cart.Ledger, *session.Session) {
	t.Helper()
	ledger := cart.NewLedger(nil, nil)
	sess := session.New(session.Operator{ID: 4, Name: "Ana", Role: session.RoleCashier})
	issuer := document.NewIssuer(transport, ledger, sess, nil, zerolog.Nop())
	return issuer, ledger, sess
}

func fillCart(t *testing.T, ledger *cart.Ledger) {
	t.Helper()
	_, err := ledger.Add(context.Background(), backend.Product{
		ID:             7,
		Code:           "A-001",
		Name:           "Widget",
		UnitPrice:      decimal.NewFromInt(10000),
		TaxRatePercent: decimal.NewFromInt(19),
		Stock:          10,
	}, 2)
	require.NoError(t, err)
}

func cashSale() document.IssueInput {
	return document.IssueInput{
		Kind:          backend.KindInvoice,
		PaymentMethod: backend.PayCash,
		CashReceived:  25000,
	}
}

func TestIssueFailsFastOnEmptyCart(t *testing.T) {
	transport := &stubTransport{}
	issuer, _, sess := newIssuer(t, transport)
	sess.SetCustomer(&backend.Customer{ID: 9})

	_, err := issuer.Issue(context.Background(), cashSale())
	require.ErrorIs(t, err, document.ErrEmptyCart)
	require.Zero(t, transport.createCalls, "precondition failures must not reach the transport")
}

func TestIssueFailsFastWithoutCustomer(t *testing.T) {
	transport := &stubTransport{}
	issuer, ledger, _ := newIssuer(t, transport)
	fillCart(t, ledger)

	_, err := issuer.Issue(context.Background(), cashSale())
	require.ErrorIs(t, err, document.ErrCustomerRequired)
	require.Zero(t, transport.createCalls)
}

func TestIssueBlocksWhilePendingAuthorization(t *testing.T) {
	transport := &stubTransport{}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})
	sess.SetActiveRequest(&backend.DiscountRequest{ID: 42, State: backend.StatePending})

	_, err := issuer.Issue(context.Background(), cashSale())
	require.ErrorIs(t, err, document.ErrAuthorizationPending)
	require.Zero(t, transport.createCalls, "pending authorisation must block before any transport call")
}

func TestIssueBlocksUnauthorizedDiscount(t *testing.T) {
	transport := &stubTransport{}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})
	require.NoError(t, ledger.SetGeneralDiscount(context.Background(), decimal.NewFromInt(10)))

	_, err := issuer.Issue(context.Background(), cashSale())
	require.ErrorIs(t, err, document.ErrAuthorizationPending)
	require.Zero(t, transport.createCalls)
}

func TestIssueRejectsShortCash(t *testing.T) {
	transport := &stubTransport{}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})

	in := cashSale()
	in.CashReceived = 20000 // total is 23800
	_, err := issuer.Issue(context.Background(), in)
	require.ErrorIs(t, err, document.ErrInsufficientCash)
	require.Zero(t, transport.createCalls)
}

func TestIssueSubmitsAndResets(t *testing.T) {
	transport := &stubTransport{
		createResp: backend.SaleDocument{ID: 100, Kind: backend.KindInvoice, Number: "FAC-1201"},
	}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9, Name: "Cliente"})

	var issued []events.Event
	bus := &events.Bus{}
	bus.Subscribe(events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		if ev.Topic == events.TopicDocumentIssued {
			issued = append(issued, ev)
		}
		return nil
	}))
	issuer.Bus = bus

	doc, err := issuer.Issue(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, "FAC-1201", doc.Number, "number comes from the backend")

	payload := transport.lastCreate
	require.Equal(t, backend.KindInvoice, payload.Kind)
	require.EqualValues(t, 9, payload.CustomerID)
	require.EqualValues(t, 4, payload.SellerID)
	require.Equal(t, "20000.00", payload.Subtotal)
	require.Equal(t, "3800.00", payload.Tax)
	require.Equal(t, "23800.00", payload.Total)
	require.Equal(t, "25000.00", payload.CashReceived)
	require.Equal(t, "1200.00", payload.Change)
	require.NotEmpty(t, payload.IdempotencyKey)
	require.Len(t, payload.Lines, 1)
	require.Equal(t, "10000.00", payload.Lines[0].UnitPrice)
	require.Equal(t, "23800.00", payload.Lines[0].Total)

	require.True(t, ledger.Empty(), "successful issuance clears the cart")
	require.Nil(t, sess.Customer(), "per-sale session state resets")
	require.Len(t, issued, 1)
}

func TestIssueCarriesApprovedDiscount(t *testing.T) {
	eight := decimal.NewFromInt(8)
	transport := &stubTransport{
		createResp: backend.SaleDocument{ID: 101, Kind: backend.KindInvoice, Number: "FAC-1202"},
	}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})
	require.NoError(t, ledger.SetGeneralDiscount(context.Background(), eight))
	sess.SetAuthorized(true)
	sess.SetActiveRequest(&backend.DiscountRequest{
		ID:              42,
		ApproverID:      3,
		ApprovedPercent: &eight,
		State:           backend.StateApproved,
	})

	_, err := issuer.Issue(context.Background(), cashSale())
	require.NoError(t, err)

	payload := transport.lastCreate
	require.Equal(t, "8.00", payload.DiscountPercent)
	require.Equal(t, "1600.00", payload.DiscountValue)
	require.Equal(t, "22200.00", payload.Total)
	require.EqualValues(t, 3, payload.ApprovedByID)
}

func TestIssueFailureKeepsCart(t *testing.T) {
	transport := &stubTransport{createErr: backend.ErrNetwork}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})

	_, err := issuer.Issue(context.Background(), cashSale())
	require.ErrorIs(t, err, backend.ErrNetwork)
	require.False(t, ledger.Empty(), "failed submission must not clear the cart")
	require.NotNil(t, sess.Customer())
	require.Equal(t, 1, transport.createCalls, "exactly one attempt per Issue call")
}

func TestIssueNonCashSkipsChange(t *testing.T) {
	transport := &stubTransport{
		createResp: backend.SaleDocument{ID: 102, Kind: backend.KindDeliveryNote, Number: "REM-88"},
	}
	issuer, ledger, sess := newIssuer(t, transport)
	fillCart(t, ledger)
	sess.SetCustomer(&backend.Customer{ID: 9})

	_, err := issuer.Issue(context.Background(), document.IssueInput{
		Kind:          backend.KindDeliveryNote,
		PaymentMethod: backend.PayCard,
	})
	require.NoError(t, err)
	require.Equal(t, "23800.00", transport.lastCreate.CashReceived)
	require.Equal(t, "0.00", transport.lastCreate.Change)
}

func TestPromote(t *testing.T) {
	transport := &stubTransport{
		promoteResp: backend.SaleDocument{ID: 103, Kind: backend.KindInvoice, Number: "FAC-1203"},
	}
	issuer, _, _ := newIssuer(t, transport)

	doc, err := issuer.Promote(context.Background(), 102)
	require.NoError(t, err)
	require.Equal(t, backend.KindInvoice, doc.Kind)
	require.Equal(t, 1, transport.promoteCalls)

	transport.promoteErr = errors.New("gone")
	_, err = issuer.Promote(context.Background(), 102)
	require.Error(t, err)
}

func TestNumberPreview(t *testing.T) {
	transport := &stubTransport{
		config: backend.BillingConfig{
			InvoicePrefix:          "FAC",
			NextInvoiceNumber:      1204,
			DeliveryNotePrefix:     "REM",
			NextDeliveryNoteNumber: 89,
		},
	}
	issuer, _, _ := newIssuer(t, transport)
	ctx := context.Background()

	preview, err := issuer.NumberPreview(ctx, backend.KindInvoice)
	require.NoError(t, err)
	require.Equal(t, "FAC-1204", preview)

	preview, err = issuer.NumberPreview(ctx, backend.KindDeliveryNote)
	require.NoError(t, err)
	require.Equal(t, "REM-89", preview)

	preview, err = issuer.NumberPreview(ctx, backend.KindQuotation)
	require.NoError(t, err)
	require.Empty(t, preview, "quotations are not numbered ahead of time")
	require.Zero(t, transport.configCalls, "quotation preview needs no backend call")
}
