package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type ClaimRefundCommand struct {
	CampaignID int64
	Donor      string
}

type ClaimRefundUseCase struct {
	Ledger      ports.LedgerStore
	Admin       ports.AdminConfig
	Vault       ports.FundVault
	Guard       *application.SettlementGuard
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

type ClaimRefundResult struct {
	Amount int64
}

// Execute refunds the caller's full donation balance. The record is
// zeroed and the total decremented before the push, so a second call
// fails with no donation to refund.
func (uc ClaimRefundUseCase) Execute(ctx context.Context, cmd ClaimRefundCommand) (ClaimRefundResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	if paused, err := uc.Admin.IsPaused(ctx); err != nil {
		return ClaimRefundResult{}, err
	} else if paused {
		return ClaimRefundResult{}, domainerrors.ErrLedgerPaused
	}

	if err := uc.Guard.Acquire(cmd.CampaignID); err != nil {
		return ClaimRefundResult{}, err
	}
	defer uc.Guard.Release(cmd.CampaignID)

	now := uc.Clock.Now().UTC()
	donor := strings.TrimSpace(cmd.Donor)
	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return ClaimRefundResult{}, err
	}

	var amount int64
	err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
		campaign, err := tx.GetCampaign(cmd.CampaignID)
		if err != nil {
			return err
		}
		if campaign.FundsClaimed {
			return domainerrors.ErrFundsAlreadyClaimed
		}
		if !campaign.Cancelled {
			if !campaign.Ended(now) {
				return domainerrors.ErrCampaignNotEnded
			}
			if campaign.GoalMet() {
				return domainerrors.ErrRefundUnavailable
			}
		}

		record, found, err := tx.GetDonation(cmd.CampaignID, donor)
		if err != nil {
			return err
		}
		if !found || record.Amount == 0 {
			return domainerrors.ErrNoDonationToRefund
		}

		amount = record.Amount
		record.Amount = 0
		record.UpdatedAt = now
		if err := tx.PutDonation(record); err != nil {
			return err
		}

		campaign.TotalRaised -= amount
		if campaign.TotalRaised < 0 {
			campaign.TotalRaised = 0
		}
		campaign.UpdatedAt = now
		if err := tx.PutCampaign(campaign); err != nil {
			return err
		}

		envelope, err := newLedgerEnvelope(eventID, "refund.issued", cmd.CampaignID, now, map[string]any{
			"campaign_id":  cmd.CampaignID,
			"donor":        donor,
			"amount":       amount,
			"total_raised": campaign.TotalRaised,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(envelope); err != nil {
			return err
		}

		if err := uc.Vault.Push(ctx, donor, amount); err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return ClaimRefundResult{}, err
	}

	logger.Info("refund issued",
		"event", "refund_issued",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"campaign_id", cmd.CampaignID,
		"donor", donor,
		"amount", amount,
	)
	return ClaimRefundResult{Amount: amount}, nil
}
