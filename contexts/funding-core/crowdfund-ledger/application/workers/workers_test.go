package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fundhouse/contexts/funding-core/crowdfund-ledger/adapters/memory"
	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/commands"
	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type capturingPublisher struct {
	mu      sync.Mutex
	failing bool
	events  []ports.EventEnvelope
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedFailedCampaign(t *testing.T, store *memory.Store, vault *memory.Vault, clock ports.Clock, donors map[string]int64) entities.Campaign {
	t.Helper()

	now := clock.Now()
	campaign := entities.Campaign{
		CampaignID: 0,
		Owner:      "alice",
		Goal:       1 << 40,
		EndAt:      now.Add(-time.Hour),
		CreatedAt:  now.Add(-2 * time.Hour),
		UpdatedAt:  now.Add(-2 * time.Hour),
	}
	err := store.Atomically(context.Background(), func(tx ports.LedgerTx) error {
		if _, err := tx.NextCampaignID(); err != nil {
			return err
		}
		for donor, amount := range donors {
			if err := tx.AppendDonor(campaign.CampaignID, donor); err != nil {
				return err
			}
			credentialID, err := tx.IssueCredential(entities.Credential{CampaignID: campaign.CampaignID, Donor: donor, IssuedAt: now})
			if err != nil {
				return err
			}
			if err := tx.PutDonation(entities.DonationRecord{
				CampaignID:     campaign.CampaignID,
				Donor:          donor,
				Amount:         amount,
				CredentialID:   credentialID,
				FirstDonatedAt: now.Add(-2 * time.Hour),
				UpdatedAt:      now.Add(-2 * time.Hour),
			}); err != nil {
				return err
			}
			campaign.TotalRaised += amount
			vault.MintFunding(donor, amount)
			if err := vault.Pull(context.Background(), donor, amount); err != nil {
				return err
			}
		}
		return tx.PutCampaign(campaign)
	})
	if err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return campaign
}

func TestRefundSweeperDrainsFailedCampaign(t *testing.T) {
	store := memory.NewStore()
	vault := memory.NewVault("FUND")
	clock := fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	donors := map[string]int64{"d0": 100, "d1": 200, "d2": 300}
	seedFailedCampaign(t, store, vault, clock, donors)

	sweeper := RefundSweeper{
		Ledger: store,
		PushRefunds: commands.PushRefundsUseCase{
			Ledger:      store,
			Vault:       vault,
			Guard:       application.NewSettlementGuard(),
			Clock:       clock,
			IDGenerator: store,
			Logger:      discardLogger(),
		},
		Clock:       clock,
		CampaignCap: 5,
		WindowSize:  2,
		Logger:      discardLogger(),
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for donor, amount := range donors {
		if got := vault.FundingBalance(donor); got != amount {
			t.Fatalf("donor %s expected %d refunded, got %d", donor, amount, got)
		}
	}
	if got := vault.CustodyBalance(); got != 0 {
		t.Fatalf("expected drained custody, got %d", got)
	}

	campaign, err := store.GetCampaign(context.Background(), 0)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if campaign.TotalRaised != 0 {
		t.Fatalf("expected total raised 0 after sweep, got %d", campaign.TotalRaised)
	}

	// A second sweep finds nothing left to do.
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
}

func TestRefundSweeperSkipsGuardedCampaign(t *testing.T) {
	store := memory.NewStore()
	vault := memory.NewVault("FUND")
	clock := fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	seedFailedCampaign(t, store, vault, clock, map[string]int64{"d0": 100})

	guard := application.NewSettlementGuard()
	sweeper := RefundSweeper{
		Ledger: store,
		PushRefunds: commands.PushRefundsUseCase{
			Ledger:      store,
			Vault:       vault,
			Guard:       guard,
			Clock:       clock,
			IDGenerator: store,
			Logger:      discardLogger(),
		},
		Clock:  clock,
		Logger: discardLogger(),
	}

	// Another actor holds the campaign; the sweeper moves on.
	if err := guard.Acquire(0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep with guarded campaign: %v", err)
	}
	if got := vault.FundingBalance("d0"); got != 0 {
		t.Fatalf("expected no refund while guarded, got %d", got)
	}

	guard.Release(0)
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep after release: %v", err)
	}
	if got := vault.FundingBalance("d0"); got != 100 {
		t.Fatalf("expected refund after release, got %d", got)
	}
}

func TestOutboxRelayPublishesPending(t *testing.T) {
	store := memory.NewStore()
	clock := fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

	err := store.Atomically(context.Background(), func(tx ports.LedgerTx) error {
		for _, eventType := range []string{"campaign.created", "donation.recorded"} {
			if err := tx.AppendOutbox(ports.EventEnvelope{
				EventID:      eventType + "-1",
				EventType:    eventType,
				OccurredAt:   clock.Now(),
				PartitionKey: "0",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed outbox: %v", err)
	}

	publisher := &capturingPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     clock,
		BatchSize: 10,
		Logger:    discardLogger(),
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected drained outbox, got %d err %v", len(pending), err)
	}

	// Nothing left; another cycle publishes nothing.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("idle relay: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected no extra events, got %d", len(publisher.events))
	}
}

func TestOutboxRelayKeepsRowsOnPublishFailure(t *testing.T) {
	store := memory.NewStore()
	clock := fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

	err := store.Atomically(context.Background(), func(tx ports.LedgerTx) error {
		return tx.AppendOutbox(ports.EventEnvelope{EventID: "e1", EventType: "refund.issued", OccurredAt: clock.Now()})
	})
	if err != nil {
		t.Fatalf("seed outbox: %v", err)
	}

	publisher := &capturingPublisher{failing: true}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     clock,
		Logger:    discardLogger(),
	}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected relay error when broker is down")
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected message retained for retry, got %d err %v", len(pending), err)
	}
}
