package application

import (
	"sync"

	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
)

// SettlementGuard is the per-campaign mutual-exclusion marker required
// around every operation that both mutates settlement state and drives
// an external transfer. A second entry for the same campaign while one
// is in flight fails instead of blocking, so a counterparty that gains
// control during the transfer cannot re-enter the settlement path.
type SettlementGuard struct {
	mu     sync.Mutex
	active map[int64]bool
}

func NewSettlementGuard() *SettlementGuard {
	return &SettlementGuard{active: make(map[int64]bool)}
}

func (g *SettlementGuard) Acquire(campaignID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[campaignID] {
		return domainerrors.ErrSettlementInProgress
	}
	g.active[campaignID] = true
	return nil
}

func (g *SettlementGuard) Release(campaignID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.active, campaignID)
}
