package commands

import (
	"context"
	"log/slog"
	"strings"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type CancelCampaignCommand struct {
	CampaignID int64
	Caller     string
}

// CancelCampaignUseCase flips the irreversible cancelled flag, opening
// the refund path for every donor regardless of the end timestamp. It
// moves no funds, so it is deliberately not pause-gated: an operator
// pause must never trap donor money behind an uncancellable campaign.
type CancelCampaignUseCase struct {
	Ledger      ports.LedgerStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (uc CancelCampaignUseCase) Execute(ctx context.Context, cmd CancelCampaignCommand) error {
	logger := application.ResolveLogger(uc.Logger)

	now := uc.Clock.Now().UTC()
	caller := strings.TrimSpace(cmd.Caller)
	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}

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

		campaign.Cancelled = true
		campaign.UpdatedAt = now
		if err := tx.PutCampaign(campaign); err != nil {
			return err
		}

		envelope, err := newLedgerEnvelope(eventID, "campaign.cancelled", cmd.CampaignID, now, map[string]any{
			"campaign_id":  cmd.CampaignID,
			"owner":        campaign.Owner,
			"total_raised": campaign.TotalRaised,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutbox(envelope)
	})
	if err != nil {
		return err
	}

	logger.Info("campaign cancelled",
		"event", "campaign_cancelled",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"campaign_id", cmd.CampaignID,
		"owner", caller,
	)
	return nil
}
