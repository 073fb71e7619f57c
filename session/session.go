// Package session holds the state of one till session: who is operating it,
// which customer the current sale is for, and where the general-discount
// authorisation stands. One Session instance lives per till; all accessors
// are safe for concurrent use by the UI and the background synchroniser.
package session

import (
	"sync"

	"github.com/noah-isme/pos-core/backend"
)

// Role names recognised by the core.
const (
	RoleAdmin      = "ADMIN"
	RoleSupervisor = "SUPERVISOR"
	RoleCashier    = "CASHIER"
)

// Operator is the logged-in till user.
type Operator struct {
	ID   int64
	Name string
	Role string
}

// Privileged reports whether the operator can apply discounts without a
// second pair of eyes.
func (o Operator) Privileged() bool {
	return o.Role == RoleAdmin || o.Role == RoleSupervisor
}

// Session tracks per-sale state between cart, discount workflow and issuer.
type Session struct {
	mu            sync.RWMutex
	operator      Operator
	customer      *backend.Customer
	authorized    bool
	activeRequest *backend.DiscountRequest
}

// New starts a session for the operator.
func New(op Operator) *Session {
	return &Session{operator: op}
}

// Operator returns the till user.
func (s *Session) Operator() Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator
}

// SetCustomer assigns the customer for the current sale.
func (s *Session) SetCustomer(c *backend.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = c
}

// Customer returns the customer for the current sale, nil when unset.
func (s *Session) Customer() *backend.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customer
}

// Authorized reports whether discounts may settle on the current sale.
func (s *Session) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized
}

// SetAuthorized flips the discount authorisation flag.
func (s *Session) SetAuthorized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized = v
}

// ActiveRequest returns the in-flight discount request, nil when none.
func (s *Session) ActiveRequest() *backend.DiscountRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRequest
}

// SetActiveRequest records the in-flight discount request.
func (s *Session) SetActiveRequest(r *backend.DiscountRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRequest = r
}

// ResetSale clears all per-sale state ahead of the next transaction. The
// operator stays logged in.
func (s *Session) ResetSale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = nil
	s.authorized = false
	s.activeRequest = nil
}
