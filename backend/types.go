package backend

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-core/money"
)

// DocumentKind identifies one of the three immutable output forms of a cart.
type DocumentKind string

const (
	KindQuotation    DocumentKind = "QUOTATION"
	KindDeliveryNote DocumentKind = "DELIVERY_NOTE"
	KindInvoice      DocumentKind = "INVOICE"
)

// PaymentMethod enumerates accepted payment channels.
type PaymentMethod string

const (
	PayCash     PaymentMethod = "CASH"
	PayCard     PaymentMethod = "CARD"
	PayTransfer PaymentMethod = "TRANSFER"
	PayCredit   PaymentMethod = "CREDIT"
)

// RequestState is the lifecycle state of a discount request.
type RequestState string

const (
	StatePending  RequestState = "PENDING"
	StateApproved RequestState = "APPROVED"
	StateRejected RequestState = "REJECTED"
)

// Terminal reports whether the state accepts no further approver action.
func (s RequestState) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// Product is the catalog projection needed to build a cart line.
type Product struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TaxRatePercent decimal.Decimal `json:"taxRatePercent"`
	Stock          int             `json:"stock"`
}

// Customer is the resolved document recipient.
type Customer struct {
	ID           int64  `json:"id"`
	DocumentType string `json:"documentType"`
	Document     string `json:"document"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
}

// Approver identifies a user allowed to authorise discounts.
type Approver struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DiscountRequest is the server-side record of one authorisation attempt.
// The record is created PENDING by the requester and only ever mutated by the
// approver; APPROVED and REJECTED are terminal.
type DiscountRequest struct {
	ID               int64            `json:"id"`
	RequesterID      int64            `json:"requesterId"`
	RequesterName    string           `json:"requesterName"`
	ApproverID       int64            `json:"approverId"`
	ApproverName     string           `json:"approverName"`
	RequestedPercent decimal.Decimal  `json:"requestedPercent"`
	ApprovedPercent  *decimal.Decimal `json:"approvedPercent,omitempty"`
	State            RequestState     `json:"state"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// EffectivePercent returns the percent the approver authorised, falling back
// to the requested percent when the approver did not adjust it.
func (r DiscountRequest) EffectivePercent() decimal.Decimal {
	if r.ApprovedPercent != nil {
		return *r.ApprovedPercent
	}
	return r.RequestedPercent
}

// CreateDiscountRequestInput carries the request plus a totals snapshot for
// audit.
type CreateDiscountRequestInput struct {
	ApproverID          int64           `json:"approverId"`
	RequestedPercent    decimal.Decimal `json:"requestedPercent"`
	Subtotal            money.Money     `json:"subtotal"`
	Tax                 money.Money     `json:"tax"`
	TotalBeforeDiscount money.Money     `json:"totalBeforeDiscount"`
	TotalWithDiscount   money.Money     `json:"totalWithDiscount"`
}

// UpdateDiscountRequestInput is the approver-side decision payload.
type UpdateDiscountRequestInput struct {
	State           RequestState     `json:"state"`
	ApprovedPercent *decimal.Decimal `json:"approvedPercent,omitempty"`
}

// DocumentLine is one line snapshot on a submitted document.
type DocumentLine struct {
	ProductID      int64  `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unitPrice"`
	UnitDiscount   string `json:"unitDiscount"`
	TaxRatePercent string `json:"taxRatePercent"`
	Subtotal       string `json:"subtotal"`
	Total          string `json:"total"`
}

// CreateSaleDocumentInput is the single write path of the core. Amount fields
// use wire decimals; the backend re-validates every figure before assigning a
// number.
type CreateSaleDocumentInput struct {
	Kind            DocumentKind   `json:"kind" validate:"required,oneof=QUOTATION DELIVERY_NOTE INVOICE"`
	CustomerID      int64          `json:"customerId" validate:"required,gt=0"`
	SellerID        int64          `json:"sellerId" validate:"required,gt=0"`
	Subtotal        string         `json:"subtotal" validate:"required"`
	DiscountPercent string         `json:"discountPercent" validate:"required"`
	DiscountValue   string         `json:"discountValue" validate:"required"`
	Tax             string         `json:"tax" validate:"required"`
	Total           string         `json:"total" validate:"required"`
	PaymentMethod   PaymentMethod  `json:"paymentMethod" validate:"required,oneof=CASH CARD TRANSFER CREDIT"`
	CashReceived    string         `json:"cashReceived" validate:"required"`
	Change          string         `json:"change" validate:"required"`
	Notes           string         `json:"notes,omitempty"`
	Lines           []DocumentLine `json:"lines" validate:"required,min=1,dive"`
	ApprovedByID    int64          `json:"approvedBy,omitempty"`
	IdempotencyKey  string         `json:"idempotencyKey" validate:"required,uuid4"`
}

// SaleDocument is the immutable, backend-numbered result of issuance.
type SaleDocument struct {
	ID              int64           `json:"id"`
	Kind            DocumentKind    `json:"kind"`
	Number          string          `json:"number"`
	CustomerID      int64           `json:"customerId"`
	SellerID        int64           `json:"sellerId"`
	IssuedAt        time.Time       `json:"issuedAt"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountValue   decimal.Decimal `json:"discountValue"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	CashReceived    decimal.Decimal `json:"cashReceived"`
	Change          decimal.Decimal `json:"change"`
	Notes           string          `json:"notes,omitempty"`
	Lines           []DocumentLine  `json:"lines"`
}

// BillingConfig exposes the numbering preview. The next numbers are
// provisional display data only; assignment always happens server-side.
type BillingConfig struct {
	InvoicePrefix          string `json:"invoicePrefix"`
	NextInvoiceNumber      int64  `json:"nextInvoiceNumber"`
	DeliveryNotePrefix     string `json:"deliveryNotePrefix"`
	NextDeliveryNoteNumber int64  `json:"nextDeliveryNoteNumber"`
}
