package discount

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/pos-core/backend"
)

// ApproverSource lists the users allowed to authorise discounts.
type ApproverSource interface {
	ListApprovers(ctx context.Context) ([]backend.Approver, error)
}

// ApproverCache memoises the approver list for the lifetime of a till
// session. The list changes rarely; Invalidate forces a refetch after staff
// changes.
type ApproverCache struct {
	Source ApproverSource

	mu     sync.Mutex
	cached []backend.Approver
	loaded bool
}

// List returns the approvers, fetching them on first use.
func (c *ApproverCache) List(ctx context.Context) ([]backend.Approver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		out := make([]backend.Approver, len(c.cached))
		copy(out, c.cached)
		return out, nil
	}
	approvers, err := c.Source.ListApprovers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	c.cached = approvers
	c.loaded = true
	out := make([]backend.Approver, len(approvers))
	copy(out, approvers)
	return out, nil
}

// Invalidate drops the cached list so the next List refetches.
func (c *ApproverCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.loaded = false
}
