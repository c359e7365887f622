package crowdfundledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	crowdfundledger "fundhouse/contexts/funding-core/crowdfund-ledger"
	"fundhouse/contexts/funding-core/crowdfund-ledger/adapters/memory"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	ledgerhttp "fundhouse/contexts/funding-core/crowdfund-ledger/transport/http"
)

const (
	testAdmin = "ledger-admin"
	testAsset = "FUND"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(t *testing.T) (crowdfundledger.Module, *memory.Store, *memory.Vault, *fakeClock) {
	t.Helper()

	store := memory.NewStore()
	vault := memory.NewVault(testAsset)
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	module := crowdfundledger.NewModule(crowdfundledger.Dependencies{
		Ledger:         store,
		Reader:         store,
		Vault:          vault,
		Admin:          store,
		Idempotency:    store,
		Clock:          clock,
		IDGenerator:    store,
		AdminAddress:   testAdmin,
		FundingAsset:   testAsset,
		IdempotencyTTL: time.Hour,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return module, store, vault, clock
}

func createCampaign(t *testing.T, module crowdfundledger.Module, owner string, key string, goal int64, durationSeconds int64) ledgerhttp.CampaignDTO {
	t.Helper()

	resp, err := module.Handler.CreateCampaignHandler(context.Background(), owner, key, ledgerhttp.CreateCampaignRequest{
		Goal:            goal,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return resp.Campaign
}

func donate(t *testing.T, module crowdfundledger.Module, vault *memory.Vault, campaignID int64, donor string, amount int64) ledgerhttp.RecordDonationResponse {
	t.Helper()

	vault.MintFunding(donor, amount)
	resp, err := module.Handler.RecordDonationHandler(context.Background(), donor, campaignID, ledgerhttp.RecordDonationRequest{
		Amount: amount,
	})
	if err != nil {
		t.Fatalf("donate %s %d: %v", donor, amount, err)
	}
	return resp
}

func TestCampaignLifecycleGoalMet(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 1000, 3600)
	if campaign.CampaignID != 0 {
		t.Fatalf("expected first campaign id 0, got %d", campaign.CampaignID)
	}

	first := donate(t, module, vault, campaign.CampaignID, "bob", 600)
	if !first.FirstDonation || first.CredentialID != 1 {
		t.Fatalf("expected first donation with credential 1, got %+v", first)
	}
	second := donate(t, module, vault, campaign.CampaignID, "carol", 500)
	if second.CredentialID != 2 {
		t.Fatalf("expected credential 2 for second donor, got %d", second.CredentialID)
	}

	repeat := donate(t, module, vault, campaign.CampaignID, "bob", 100)
	if repeat.FirstDonation || repeat.CredentialID != 1 {
		t.Fatalf("repeat donation must keep credential 1, got %+v", repeat)
	}

	if got := vault.CustodyBalance(); got != 1200 {
		t.Fatalf("expected 1200 in custody, got %d", got)
	}

	// Claim before the end timestamp is refused.
	if _, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrCampaignNotEnded) {
		t.Fatalf("expected ErrCampaignNotEnded, got %v", err)
	}

	clock.Advance(2 * time.Hour)

	// Donation at/after the end timestamp is refused.
	vault.MintFunding("dave", 50)
	if _, err := module.Handler.RecordDonationHandler(ctx, "dave", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 50}); !errors.Is(err, domainerrors.ErrCampaignEnded) {
		t.Fatalf("expected ErrCampaignEnded, got %v", err)
	}

	if _, err := module.Handler.ClaimFundsHandler(ctx, "mallory", campaign.CampaignID); !errors.Is(err, domainerrors.ErrNotCampaignOwner) {
		t.Fatalf("expected ErrNotCampaignOwner, got %v", err)
	}

	claim, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID)
	if err != nil {
		t.Fatalf("claim funds: %v", err)
	}
	if claim.Amount != 1200 {
		t.Fatalf("expected claim of 1200, got %d", claim.Amount)
	}
	if got := vault.FundingBalance("alice"); got != 1200 {
		t.Fatalf("expected owner balance 1200, got %d", got)
	}

	// The claim releases funds but never rewrites the raised total.
	view, err := module.Handler.GetCampaignHandler(ctx, campaign.CampaignID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if view.Campaign.TotalRaised != 1200 || !view.Campaign.FundsClaimed {
		t.Fatalf("expected claimed campaign with total 1200, got %+v", view.Campaign)
	}
	if view.Campaign.State != "claimed" {
		t.Fatalf("expected state claimed, got %s", view.Campaign.State)
	}

	if _, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrFundsAlreadyClaimed) {
		t.Fatalf("expected ErrFundsAlreadyClaimed on second claim, got %v", err)
	}
	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrFundsAlreadyClaimed) {
		t.Fatalf("expected refund after claim to fail, got %v", err)
	}
}

func TestFailedCampaignRefunds(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 1000, 3600)
	donate(t, module, vault, campaign.CampaignID, "bob", 300)
	donate(t, module, vault, campaign.CampaignID, "carol", 200)

	// Refund while still open is refused.
	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrCampaignNotEnded) {
		t.Fatalf("expected ErrCampaignNotEnded, got %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrGoalNotReached) {
		t.Fatalf("expected ErrGoalNotReached, got %v", err)
	}

	refund, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID)
	if err != nil {
		t.Fatalf("refund bob: %v", err)
	}
	if refund.Amount != 300 || vault.FundingBalance("bob") != 300 {
		t.Fatalf("expected bob made whole with 300, got amount %d balance %d", refund.Amount, vault.FundingBalance("bob"))
	}

	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrNoDonationToRefund) {
		t.Fatalf("expected second refund to fail, got %v", err)
	}
	if _, err := module.Handler.ClaimRefundHandler(ctx, "stranger", campaign.CampaignID); !errors.Is(err, domainerrors.ErrNoDonationToRefund) {
		t.Fatalf("expected refund for non-donor to fail, got %v", err)
	}

	view, err := module.Handler.GetCampaignHandler(ctx, campaign.CampaignID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if view.Campaign.TotalRaised != 200 {
		t.Fatalf("expected remaining total 200, got %d", view.Campaign.TotalRaised)
	}
	if view.Campaign.State != "refunding" {
		t.Fatalf("expected state refunding, got %s", view.Campaign.State)
	}
}

func TestBatchRefundWindows(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 100000, 3600)
	donors := []string{"d0", "d1", "d2", "d3", "d4"}
	for i, donor := range donors {
		donate(t, module, vault, campaign.CampaignID, donor, int64(100*(i+1)))
	}

	clock.Advance(2 * time.Hour)

	// d1 refunds on their own; the batch path must skip the zeroed record.
	if _, err := module.Handler.ClaimRefundHandler(ctx, "d1", campaign.CampaignID); err != nil {
		t.Fatalf("self refund d1: %v", err)
	}

	resp, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 3})
	if err != nil {
		t.Fatalf("push window 0-3: %v", err)
	}
	if resp.RefundedCount != 2 || resp.RefundedAmount != 100+300 {
		t.Fatalf("expected 2 refunds totalling 400, got %+v", resp)
	}
	if resp.NextIndex != 3 || resp.DonorCount != 5 {
		t.Fatalf("expected next index 3 of 5, got %+v", resp)
	}

	resp, err = module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 3, BatchSize: 10})
	if err != nil {
		t.Fatalf("push window 3-5: %v", err)
	}
	if resp.RefundedCount != 2 || resp.RefundedAmount != 400+500 {
		t.Fatalf("expected trailing refunds of 900, got %+v", resp)
	}

	for i, donor := range donors {
		want := int64(100 * (i + 1))
		if got := vault.FundingBalance(donor); got != want {
			t.Fatalf("donor %s expected %d back, got %d", donor, want, got)
		}
	}
	if got := vault.CustodyBalance(); got != 0 {
		t.Fatalf("expected empty custody, got %d", got)
	}

	// Re-running a settled window refunds nothing.
	resp, err = module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 5})
	if err != nil {
		t.Fatalf("replay window: %v", err)
	}
	if resp.RefundedCount != 0 || resp.RefundedAmount != 0 {
		t.Fatalf("expected idempotent replay, got %+v", resp)
	}

	// A zero batch size is a valid no-op window.
	resp, err = module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 2, BatchSize: 0})
	if err != nil {
		t.Fatalf("zero batch: %v", err)
	}
	if resp.RefundedCount != 0 || resp.NextIndex != 2 {
		t.Fatalf("expected empty window at index 2, got %+v", resp)
	}

	// Starting at or past the member count is an error.
	if _, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 5, BatchSize: 1}); !errors.Is(err, domainerrors.ErrBatchStartOutOfRange) {
		t.Fatalf("expected ErrBatchStartOutOfRange, got %v", err)
	}
	if _, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: -1, BatchSize: 1}); !errors.Is(err, domainerrors.ErrBatchStartOutOfRange) {
		t.Fatalf("expected negative start rejected, got %v", err)
	}
}

func TestPushRefundsRequiresOpenRefundPath(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 100, 3600)
	donate(t, module, vault, campaign.CampaignID, "bob", 500)

	if _, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10}); !errors.Is(err, domainerrors.ErrCampaignNotEnded) {
		t.Fatalf("expected ErrCampaignNotEnded while open, got %v", err)
	}

	clock.Advance(2 * time.Hour)

	// Goal met, so the batch path is closed outright.
	if _, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10}); !errors.Is(err, domainerrors.ErrRefundUnavailable) {
		t.Fatalf("expected ErrRefundUnavailable for met goal, got %v", err)
	}
}

func TestCancelOpensImmediateRefunds(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 1000, 3600)
	donate(t, module, vault, campaign.CampaignID, "bob", 250)

	if err := module.Handler.CancelCampaignHandler(ctx, "mallory", campaign.CampaignID); !errors.Is(err, domainerrors.ErrNotCampaignOwner) {
		t.Fatalf("expected ErrNotCampaignOwner, got %v", err)
	}
	if err := module.Handler.CancelCampaignHandler(ctx, "alice", campaign.CampaignID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := module.Handler.CancelCampaignHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrCampaignCancelled) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}

	// Still before the end timestamp: donations refused, refunds open.
	vault.MintFunding("carol", 100)
	if _, err := module.Handler.RecordDonationHandler(ctx, "carol", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 100}); !errors.Is(err, domainerrors.ErrCampaignCancelled) {
		t.Fatalf("expected donation to cancelled campaign to fail, got %v", err)
	}

	refund, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID)
	if err != nil {
		t.Fatalf("refund after cancel: %v", err)
	}
	if refund.Amount != 250 || vault.FundingBalance("bob") != 250 {
		t.Fatalf("expected bob refunded 250, got %+v balance %d", refund, vault.FundingBalance("bob"))
	}

	// Claim is closed forever on a cancelled campaign, goal or not.
	clock.Advance(2 * time.Hour)
	if _, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrCampaignCancelled) {
		t.Fatalf("expected claim on cancelled campaign to fail, got %v", err)
	}
}

func TestPauseGating(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "key-1", 1000, 3600)
	donate(t, module, vault, campaign.CampaignID, "bob", 100)

	if err := module.Handler.SetPausedHandler(ctx, "mallory", ledgerhttp.SetPausedRequest{Paused: true}); !errors.Is(err, domainerrors.ErrNotLedgerAdmin) {
		t.Fatalf("expected non-admin pause to fail, got %v", err)
	}
	if err := module.Handler.SetPausedHandler(ctx, testAdmin, ledgerhttp.SetPausedRequest{Paused: true}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "key-2", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60}); !errors.Is(err, domainerrors.ErrLedgerPaused) {
		t.Fatalf("expected paused create to fail, got %v", err)
	}
	vault.MintFunding("carol", 50)
	if _, err := module.Handler.RecordDonationHandler(ctx, "carol", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 50}); !errors.Is(err, domainerrors.ErrLedgerPaused) {
		t.Fatalf("expected paused donation to fail, got %v", err)
	}
	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrLedgerPaused) {
		t.Fatalf("expected paused refund to fail, got %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := module.Handler.ClaimFundsHandler(ctx, "alice", campaign.CampaignID); !errors.Is(err, domainerrors.ErrLedgerPaused) {
		t.Fatalf("expected paused claim to fail, got %v", err)
	}

	// Cancellation and batch refunds stay live while paused, so donor
	// funds can never be trapped by an operator pause.
	if err := module.Handler.CancelCampaignHandler(ctx, "alice", campaign.CampaignID); err != nil {
		t.Fatalf("cancel while paused: %v", err)
	}
	resp, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10})
	if err != nil {
		t.Fatalf("push refunds while paused: %v", err)
	}
	if resp.RefundedAmount != 100 || vault.FundingBalance("bob") != 100 {
		t.Fatalf("expected bob refunded while paused, got %+v", resp)
	}

	if err := module.Handler.SetPausedHandler(ctx, testAdmin, ledgerhttp.SetPausedRequest{Paused: false}); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "key-3", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60}); err != nil {
		t.Fatalf("create after unpause: %v", err)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	module, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60}); !errors.Is(err, domainerrors.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "k", ledgerhttp.CreateCampaignRequest{Goal: 0, DurationSeconds: 60}); !errors.Is(err, domainerrors.ErrInvalidGoal) {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "k", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 0}); !errors.Is(err, domainerrors.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	tooLong := int64((91 * 24 * time.Hour) / time.Second)
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "k", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: tooLong}); !errors.Is(err, domainerrors.ErrDurationTooLong) {
		t.Fatalf("expected ErrDurationTooLong, got %v", err)
	}

	// Admin can shrink the cap; existing campaigns are untouched.
	if err := module.Handler.SetMaxDurationHandler(ctx, testAdmin, ledgerhttp.SetMaxDurationRequest{MaxDurationSeconds: 60}); err != nil {
		t.Fatalf("set max duration: %v", err)
	}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "k", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 120}); !errors.Is(err, domainerrors.ErrDurationTooLong) {
		t.Fatalf("expected tightened cap to apply, got %v", err)
	}
}

func TestCreateCampaignIdempotency(t *testing.T) {
	module, _, vault, _ := newTestLedger(t)
	ctx := context.Background()

	req := ledgerhttp.CreateCampaignRequest{Goal: 500, DurationSeconds: 3600}
	first, err := module.Handler.CreateCampaignHandler(ctx, "alice", "same-key", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Replayed {
		t.Fatalf("first create must not be a replay")
	}

	replay, err := module.Handler.CreateCampaignHandler(ctx, "alice", "same-key", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Campaign.CampaignID != first.Campaign.CampaignID {
		t.Fatalf("expected replay of campaign %d, got %+v", first.Campaign.CampaignID, replay)
	}

	// A replay returns the live record, not a creation-time snapshot.
	donate(t, module, vault, first.Campaign.CampaignID, "bob", 120)
	replay, err = module.Handler.CreateCampaignHandler(ctx, "alice", "same-key", req)
	if err != nil {
		t.Fatalf("replay after donation: %v", err)
	}
	if !replay.Replayed || replay.Campaign.TotalRaised != 120 {
		t.Fatalf("expected live total 120 on replay, got %+v", replay.Campaign)
	}

	// Same key with a different body is a conflict, not a replay.
	other := ledgerhttp.CreateCampaignRequest{Goal: 999, DurationSeconds: 3600}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "same-key", other); !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected ErrIdempotencyKeyConflict, got %v", err)
	}

	// A distinct key mints a distinct campaign.
	second, err := module.Handler.CreateCampaignHandler(ctx, "alice", "other-key", req)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Campaign.CampaignID == first.Campaign.CampaignID {
		t.Fatalf("expected a fresh campaign id, got %d twice", second.Campaign.CampaignID)
	}
}

func TestIdentifierDeduplication(t *testing.T) {
	module, _, vault, _ := newTestLedger(t)
	ctx := context.Background()

	hash := "ABCD00ef"
	if _, err := module.Handler.CreateCampaignHandler(ctx, "alice", "k1", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60, ContentIDHash: hash}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Same hash, different casing: consumed.
	if _, err := module.Handler.CreateCampaignHandler(ctx, "bob", "k2", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60, ContentIDHash: "abcd00EF"}); !errors.Is(err, domainerrors.ErrDuplicateContentID) {
		t.Fatalf("expected ErrDuplicateContentID, got %v", err)
	}

	// The zero identifier is exempt and reusable.
	if _, err := module.Handler.CreateCampaignHandler(ctx, "bob", "k3", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60, ContentIDHash: "0000"}); err != nil {
		t.Fatalf("zero content id: %v", err)
	}
	if _, err := module.Handler.CreateCampaignHandler(ctx, "carol", "k4", ledgerhttp.CreateCampaignRequest{Goal: 10, DurationSeconds: 60, ContentIDHash: "0000"}); err != nil {
		t.Fatalf("zero content id reuse: %v", err)
	}

	campaign := createCampaign(t, module, "alice", "k5", 1000, 3600)
	vault.MintFunding("bob", 200)
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 100, DonationIDHash: "feed01"}); err != nil {
		t.Fatalf("donation with id: %v", err)
	}
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 100, DonationIDHash: "FEED01"}); !errors.Is(err, domainerrors.ErrDuplicateDonationID) {
		t.Fatalf("expected ErrDuplicateDonationID, got %v", err)
	}
}

func TestFailedTransferLeavesNoLedgerEffect(t *testing.T) {
	module, store, vault, _ := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "k1", 1000, 3600)

	// No balance minted for bob: the pull fails after all effects are
	// staged, and every one of them must be rolled back.
	_, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 100, DonationIDHash: "aa11"})
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	view, err := module.Handler.GetCampaignHandler(ctx, campaign.CampaignID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if view.Campaign.TotalRaised != 0 || view.Campaign.DonorCount != 0 {
		t.Fatalf("expected untouched campaign, got %+v", view.Campaign)
	}
	if id, err := store.CredentialIDFor(ctx, campaign.CampaignID, "bob"); err != nil || id != 0 {
		t.Fatalf("expected no credential after rollback, got %d err %v", id, err)
	}

	// The donation identifier was rolled back too and may be retried.
	vault.MintFunding("bob", 100)
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 100, DonationIDHash: "aa11"}); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestSettlementGuardRejectsReentry(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "k1", 1000, 3600)
	donate(t, module, vault, campaign.CampaignID, "bob", 100)
	clock.Advance(2 * time.Hour)

	// Simulate a settlement already in flight for this campaign.
	if err := module.Guard.Acquire(campaign.CampaignID); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		t.Fatalf("expected ErrSettlementInProgress, got %v", err)
	}
	if _, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10}); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		t.Fatalf("expected push refunds blocked, got %v", err)
	}
	module.Guard.Release(campaign.CampaignID)

	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); err != nil {
		t.Fatalf("refund after release: %v", err)
	}
}

func TestDonorSummaryAndRefundStats(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	won := createCampaign(t, module, "alice", "k1", 100, 3600)
	lost := createCampaign(t, module, "alice", "k2", 100000, 3600)
	donate(t, module, vault, won.CampaignID, "bob", 150)
	donate(t, module, vault, lost.CampaignID, "bob", 40)
	donate(t, module, vault, lost.CampaignID, "carol", 60)

	clock.Advance(2 * time.Hour)

	stats, err := module.Handler.RefundStatsHandler(ctx, lost.CampaignID)
	if err != nil {
		t.Fatalf("refund stats: %v", err)
	}
	if stats.DonorCount != 2 || stats.PendingRefundCount != 2 || stats.PendingAmount != 100 || !stats.RefundsOpen {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", lost.CampaignID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	stats, err = module.Handler.RefundStatsHandler(ctx, lost.CampaignID)
	if err != nil {
		t.Fatalf("refund stats after refund: %v", err)
	}
	if stats.PendingRefundCount != 1 || stats.PendingAmount != 60 {
		t.Fatalf("expected one pending refund of 60, got %+v", stats)
	}

	summary, err := module.Handler.DonorSummaryHandler(ctx, "bob")
	if err != nil {
		t.Fatalf("donor summary: %v", err)
	}
	if len(summary.Items) != 2 {
		t.Fatalf("expected 2 campaigns for bob, got %d", len(summary.Items))
	}
	if summary.Items[0].CampaignID != won.CampaignID || summary.Items[0].Amount != 150 || !summary.Items[0].GoalMet {
		t.Fatalf("unexpected won summary %+v", summary.Items[0])
	}
	if summary.Items[1].CampaignID != lost.CampaignID || summary.Items[1].Amount != 0 {
		t.Fatalf("expected refunded balance 0, got %+v", summary.Items[1])
	}
}

func TestCredentialDescriptor(t *testing.T) {
	module, _, vault, _ := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "k1", 1000, 3600)
	resp := donate(t, module, vault, campaign.CampaignID, "bob", 100)

	lookup, err := module.Handler.DonorCredentialHandler(ctx, campaign.CampaignID, "bob")
	if err != nil {
		t.Fatalf("donor credential: %v", err)
	}
	if lookup.CredentialID != resp.CredentialID {
		t.Fatalf("expected credential %d, got %d", resp.CredentialID, lookup.CredentialID)
	}

	none, err := module.Handler.DonorCredentialHandler(ctx, campaign.CampaignID, "stranger")
	if err != nil {
		t.Fatalf("non-donor credential: %v", err)
	}
	if none.CredentialID != 0 {
		t.Fatalf("expected no credential for non-donor, got %d", none.CredentialID)
	}
	if _, err := module.Handler.DonorCredentialHandler(ctx, 999, "bob"); !errors.Is(err, domainerrors.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}

	if err := module.Handler.SetMetadataBaseHandler(ctx, testAdmin, ledgerhttp.SetMetadataBaseRequest{BaseURL: "https://meta.fundhouse.dev/campaigns/"}); err != nil {
		t.Fatalf("set metadata base: %v", err)
	}
	descriptor, err := module.Handler.CredentialHandler(ctx, resp.CredentialID)
	if err != nil {
		t.Fatalf("credential descriptor: %v", err)
	}
	if descriptor.CampaignID != campaign.CampaignID || descriptor.Donor != "bob" {
		t.Fatalf("unexpected descriptor %+v", descriptor)
	}
	if descriptor.TokenURI != "https://meta.fundhouse.dev/campaigns/0" {
		t.Fatalf("unexpected token uri %q", descriptor.TokenURI)
	}

	if _, err := module.Handler.CredentialHandler(ctx, 999); !errors.Is(err, domainerrors.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestRescueAsset(t *testing.T) {
	module, _, vault, _ := newTestLedger(t)
	ctx := context.Background()

	// A stray non-funding asset stuck in custody can be recovered.
	vault.Mint("STRAY", "__ledger_custody__", 777)
	resp, err := module.Handler.RescueAssetHandler(ctx, testAdmin, ledgerhttp.RescueAssetRequest{Asset: "STRAY", To: "treasury"})
	if err != nil {
		t.Fatalf("rescue: %v", err)
	}
	if resp.Amount != 777 || vault.Balance("STRAY", "treasury") != 777 {
		t.Fatalf("expected 777 rescued, got %+v", resp)
	}

	// The funding asset backs donor balances and is never rescuable.
	if _, err := module.Handler.RescueAssetHandler(ctx, testAdmin, ledgerhttp.RescueAssetRequest{Asset: testAsset, To: "treasury"}); !errors.Is(err, domainerrors.ErrRescueFundingAsset) {
		t.Fatalf("expected ErrRescueFundingAsset, got %v", err)
	}
	if _, err := module.Handler.RescueAssetHandler(ctx, "mallory", ledgerhttp.RescueAssetRequest{Asset: "STRAY", To: "mallory"}); !errors.Is(err, domainerrors.ErrNotLedgerAdmin) {
		t.Fatalf("expected ErrNotLedgerAdmin, got %v", err)
	}
}

func TestListCampaignsFilters(t *testing.T) {
	module, _, vault, clock := newTestLedger(t)
	ctx := context.Background()

	a := createCampaign(t, module, "alice", "k1", 100, 3600)
	b := createCampaign(t, module, "bob", "k2", 100000, 3600)
	donate(t, module, vault, a.CampaignID, "carol", 150)

	clock.Advance(2 * time.Hour)

	all, err := module.Handler.ListCampaignsHandler(ctx, "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(all.Items))
	}

	mine, err := module.Handler.ListCampaignsHandler(ctx, "bob", "")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].CampaignID != b.CampaignID {
		t.Fatalf("expected only bob's campaign, got %+v", mine.Items)
	}

	resolvable, err := module.Handler.ListCampaignsHandler(ctx, "", "resolvable")
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if len(resolvable.Items) != 1 || resolvable.Items[0].CampaignID != a.CampaignID {
		t.Fatalf("expected only the met-goal campaign, got %+v", resolvable.Items)
	}
}

func TestDonationValidation(t *testing.T) {
	module, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "k1", 1000, 3600)
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: 0}); !errors.Is(err, domainerrors.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", campaign.CampaignID, ledgerhttp.RecordDonationRequest{Amount: -5}); !errors.Is(err, domainerrors.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if _, err := module.Handler.RecordDonationHandler(ctx, "bob", 404, ledgerhttp.RecordDonationRequest{Amount: 10}); !errors.Is(err, domainerrors.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

// flakyVault fails the nth Push, counted across the vault's lifetime.
type flakyVault struct {
	*memory.Vault
	mu       sync.Mutex
	failPush int
	pushes   int
}

func (v *flakyVault) Push(ctx context.Context, to string, amount int64) error {
	v.mu.Lock()
	v.pushes++
	fail := v.failPush > 0 && v.pushes == v.failPush
	v.mu.Unlock()
	if fail {
		return errors.New("vault unavailable")
	}
	return v.Vault.Push(ctx, to, amount)
}

func TestPushRefundsMidWindowTransferFailure(t *testing.T) {
	store := memory.NewStore()
	vault := &flakyVault{Vault: memory.NewVault(testAsset)}
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	module := crowdfundledger.NewModule(crowdfundledger.Dependencies{
		Ledger:         store,
		Reader:         store,
		Vault:          vault,
		Admin:          store,
		Idempotency:    store,
		Clock:          clock,
		IDGenerator:    store,
		AdminAddress:   testAdmin,
		FundingAsset:   testAsset,
		IdempotencyTTL: time.Hour,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()

	campaign := createCampaign(t, module, "alice", "k1", 1_000_000, 3600)
	donate(t, module, vault.Vault, campaign.CampaignID, "bob", 100)
	donate(t, module, vault.Vault, campaign.CampaignID, "carol", 200)
	clock.Advance(2 * time.Hour)

	// The second push of the window fails, after bob is already paid.
	vault.failPush = 2

	_, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10})
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Bob was paid exactly once and his record is settled for good.
	if got := vault.FundingBalance("bob"); got != 100 {
		t.Fatalf("expected bob to hold 100 after the partial window, got %d", got)
	}
	if _, err := module.Handler.ClaimRefundHandler(ctx, "bob", campaign.CampaignID); !errors.Is(err, domainerrors.ErrNoDonationToRefund) {
		t.Fatalf("bob must not be refundable twice, got %v", err)
	}

	// Carol's refund never left custody and stays owed.
	if got := vault.FundingBalance("carol"); got != 0 {
		t.Fatalf("expected carol unpaid, got %d", got)
	}
	if got := vault.CustodyBalance(); got != 200 {
		t.Fatalf("expected 200 still in custody, got %d", got)
	}
	state, err := module.Handler.GetCampaignHandler(ctx, campaign.CampaignID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if state.Campaign.TotalRaised != 200 {
		t.Fatalf("expected total raised 200 after bob's committed refund, got %d", state.Campaign.TotalRaised)
	}

	// Retrying the same window pays only the stranded tail.
	vault.failPush = 0
	resp, err := module.Handler.PushRefundsHandler(ctx, campaign.CampaignID, ledgerhttp.PushRefundsRequest{StartIndex: 0, BatchSize: 10})
	if err != nil {
		t.Fatalf("retry window: %v", err)
	}
	if resp.RefundedCount != 1 || resp.RefundedAmount != 200 {
		t.Fatalf("expected retry to refund only carol, got %+v", resp)
	}
	if got := vault.FundingBalance("bob"); got != 100 {
		t.Fatalf("bob must still hold exactly 100, got %d", got)
	}
	if got := vault.FundingBalance("carol"); got != 200 {
		t.Fatalf("expected carol to hold 200, got %d", got)
	}
	if got := vault.CustodyBalance(); got != 0 {
		t.Fatalf("expected empty custody, got %d", got)
	}
}
