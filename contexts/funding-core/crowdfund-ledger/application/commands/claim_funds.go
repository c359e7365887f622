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

type ClaimFundsCommand struct {
	CampaignID int64
	Caller     string
}

type ClaimFundsUseCase struct {
	Ledger      ports.LedgerStore
	Admin       ports.AdminConfig
	Vault       ports.FundVault
	Guard       *application.SettlementGuard
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

type ClaimFundsResult struct {
	Amount int64
}

// Execute releases the full raised total to the campaign owner. Single
// use: the claimed flag commits before the push, so any re-entry fails
// on the already-claimed check.
func (uc ClaimFundsUseCase) Execute(ctx context.Context, cmd ClaimFundsCommand) (ClaimFundsResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	if paused, err := uc.Admin.IsPaused(ctx); err != nil {
		return ClaimFundsResult{}, err
	} else if paused {
		return ClaimFundsResult{}, domainerrors.ErrLedgerPaused
	}

	if err := uc.Guard.Acquire(cmd.CampaignID); err != nil {
		return ClaimFundsResult{}, err
	}
	defer uc.Guard.Release(cmd.CampaignID)

	now := uc.Clock.Now().UTC()
	caller := strings.TrimSpace(cmd.Caller)
	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return ClaimFundsResult{}, err
	}

	var amount int64
	err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
		campaign, err := tx.GetCampaign(cmd.CampaignID)
		if err != nil {
			return err
		}
		if campaign.Owner != caller {
			return domainerrors.ErrNotCampaignOwner
		}
		if campaign.FundsClaimed {
			return domainerrors.ErrFundsAlreadyClaimed
		}
		if campaign.Cancelled {
			return domainerrors.ErrCampaignCancelled
		}
		if !campaign.Ended(now) {
			return domainerrors.ErrCampaignNotEnded
		}
		if !campaign.GoalMet() {
			return domainerrors.ErrGoalNotReached
		}

		campaign.FundsClaimed = true
		campaign.UpdatedAt = now
		if err := tx.PutCampaign(campaign); err != nil {
			return err
		}
		amount = campaign.TotalRaised

		envelope, err := newLedgerEnvelope(eventID, "funds.claimed", cmd.CampaignID, now, map[string]any{
			"campaign_id": cmd.CampaignID,
			"owner":       campaign.Owner,
			"amount":      amount,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(envelope); err != nil {
			return err
		}

		if err := uc.Vault.Push(ctx, campaign.Owner, amount); err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return ClaimFundsResult{}, err
	}

	logger.Info("campaign funds claimed",
		"event", "campaign_funds_claimed",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"campaign_id", cmd.CampaignID,
		"owner", caller,
		"amount", amount,
	)
	return ClaimFundsResult{Amount: amount}, nil
}
