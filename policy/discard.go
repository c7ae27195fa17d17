package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/canmill/types"
)

// DiscardPolicy accepts all rows without persisting them.
// Used for stats-only sessions where no output destination is
// configured, and as a lightweight stand-in for tests.
//
// Stats count accepted rows as persisted so session accounting stays
// consistent with the persisting policies.
type DiscardPolicy struct {
	mu    sync.Mutex
	stats Stats
}

// NewDiscardPolicy creates a new discard policy.
func NewDiscardPolicy() *DiscardPolicy {
	return &DiscardPolicy{}
}

// IngestRow accepts the row without persisting it.
func (p *DiscardPolicy) IngestRow(_ context.Context, _ types.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalRows++
	p.stats.RowsPersisted++

	return nil
}

// Flush is a no-op.
func (p *DiscardPolicy) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.FlushCount++

	return nil
}

// Close is a no-op.
func (p *DiscardPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *DiscardPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats
}

// Verify DiscardPolicy implements Policy.
var _ Policy = (*DiscardPolicy)(nil)
