package commands

import (
	"context"
	"fmt"
	"log/slog"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type PushRefundsCommand struct {
	CampaignID int64
	StartIndex int
	BatchSize  int
}

// PushRefundsUseCase settles the donor window [StartIndex,
// StartIndex+BatchSize) of a failed or cancelled campaign. Callable by
// anyone: the recipient of each refund is fixed by its record. Donors
// already at zero are skipped silently, so overlapping or repeated
// windows are idempotent. Not pause-gated, like cancellation.
type PushRefundsUseCase struct {
	Ledger      ports.LedgerStore
	Vault       ports.FundVault
	Guard       *application.SettlementGuard
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

type PushRefundsResult struct {
	RefundedCount  int
	RefundedAmount int64
	NextIndex      int
	DonorCount     int
}

func (uc PushRefundsUseCase) Execute(ctx context.Context, cmd PushRefundsCommand) (PushRefundsResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	if cmd.StartIndex < 0 || cmd.BatchSize < 0 {
		return PushRefundsResult{}, domainerrors.ErrBatchStartOutOfRange
	}

	if err := uc.Guard.Acquire(cmd.CampaignID); err != nil {
		return PushRefundsResult{}, err
	}
	defer uc.Guard.Release(cmd.CampaignID)

	now := uc.Clock.Now().UTC()

	var (
		donors      []string
		memberCount int
		end         int
	)
	err := uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
		campaign, err := tx.GetCampaign(cmd.CampaignID)
		if err != nil {
			return err
		}
		if campaign.FundsClaimed {
			return domainerrors.ErrFundsAlreadyClaimed
		}
		// Goal-met check is campaign-level, evaluated once per call.
		if !campaign.Cancelled {
			if !campaign.Ended(now) {
				return domainerrors.ErrCampaignNotEnded
			}
			if campaign.GoalMet() {
				return domainerrors.ErrRefundUnavailable
			}
		}

		memberCount, err = tx.DonorCount(cmd.CampaignID)
		if err != nil {
			return err
		}
		if cmd.StartIndex >= memberCount {
			return domainerrors.ErrBatchStartOutOfRange
		}
		end = cmd.StartIndex + cmd.BatchSize
		if end > memberCount {
			end = memberCount
		}

		donors, err = tx.DonorsInRange(cmd.CampaignID, cmd.StartIndex, end)
		return err
	})
	if err != nil {
		return PushRefundsResult{}, err
	}

	// Each donor settles in its own atomic scope with the push as the
	// scope's only external interaction. A failed push discards only
	// that donor's effects; donors already committed stay paid and
	// zeroed, donors not yet reached stay refundable, so a retry of
	// the same window pays nobody twice.
	var (
		refunded int64
		count    int
	)
	for _, donor := range donors {
		eventID, err := uc.IDGenerator.NewID(ctx)
		if err != nil {
			return PushRefundsResult{}, err
		}

		var amount int64
		err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
			amount = 0
			record, found, err := tx.GetDonation(cmd.CampaignID, donor)
			if err != nil {
				return err
			}
			if !found || record.Amount == 0 {
				return nil
			}

			amount = record.Amount
			record.Amount = 0
			record.UpdatedAt = now
			if err := tx.PutDonation(record); err != nil {
				return err
			}

			campaign, err := tx.GetCampaign(cmd.CampaignID)
			if err != nil {
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
			return PushRefundsResult{}, err
		}
		if amount > 0 {
			refunded += amount
			count++
		}
	}

	if refunded > 0 {
		eventID, err := uc.IDGenerator.NewID(ctx)
		if err != nil {
			return PushRefundsResult{}, err
		}
		err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
			envelope, err := newLedgerEnvelope(eventID, "refunds.pushed", cmd.CampaignID, now, map[string]any{
				"campaign_id":     cmd.CampaignID,
				"start_index":     cmd.StartIndex,
				"refunded_count":  count,
				"refunded_amount": refunded,
			})
			if err != nil {
				return err
			}
			return tx.AppendOutbox(envelope)
		})
		if err != nil {
			return PushRefundsResult{}, err
		}
	}

	result := PushRefundsResult{
		RefundedCount:  count,
		RefundedAmount: refunded,
		NextIndex:      end,
		DonorCount:     memberCount,
	}

	if result.RefundedCount > 0 {
		logger.Info("batch refunds pushed",
			"event", "refunds_pushed",
			"module", "funding-core/crowdfund-ledger",
			"layer", "application",
			"campaign_id", cmd.CampaignID,
			"start_index", cmd.StartIndex,
			"refunded_count", result.RefundedCount,
			"refunded_amount", result.RefundedAmount,
		)
	}
	return result, nil
}
