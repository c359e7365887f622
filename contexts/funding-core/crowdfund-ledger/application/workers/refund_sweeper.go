package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/commands"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

// RefundSweeper pushes refunds for failed or cancelled campaigns in
// bounded windows so donors are made whole without acting themselves.
// Each window is one idempotent PushRefunds call; a campaign another
// actor is settling concurrently is simply skipped this cycle.
type RefundSweeper struct {
	Ledger      ports.LedgerReader
	PushRefunds commands.PushRefundsUseCase
	Clock       ports.Clock
	CampaignCap int
	WindowSize  int
	Logger      *slog.Logger
}

func (s RefundSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)

	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	campaignCap := s.CampaignCap
	if campaignCap <= 0 {
		campaignCap = 10
	}
	windowSize := s.WindowSize
	if windowSize <= 0 {
		windowSize = 50
	}

	campaigns, err := s.Ledger.ListRefundableCampaigns(ctx, now, campaignCap)
	if err != nil {
		logger.Error("refund sweep listing failed",
			"event", "refund_sweep_list_failed",
			"module", "funding-core/crowdfund-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	for _, campaign := range campaigns {
		start := 0
		for {
			result, err := s.PushRefunds.Execute(ctx, commands.PushRefundsCommand{
				CampaignID: campaign.CampaignID,
				StartIndex: start,
				BatchSize:  windowSize,
			})
			if errors.Is(err, domainerrors.ErrSettlementInProgress) {
				break
			}
			if err != nil {
				logger.Error("refund sweep window failed",
					"event", "refund_sweep_window_failed",
					"module", "funding-core/crowdfund-ledger",
					"layer", "worker",
					"campaign_id", campaign.CampaignID,
					"start_index", start,
					"error", err.Error(),
				)
				return err
			}
			if result.NextIndex >= result.DonorCount {
				break
			}
			start = result.NextIndex
		}
	}

	if len(campaigns) > 0 {
		logger.Info("refund sweep cycle completed",
			"event", "refund_sweep_completed",
			"module", "funding-core/crowdfund-ledger",
			"layer", "worker",
			"campaign_count", len(campaigns),
		)
	}
	return nil
}
