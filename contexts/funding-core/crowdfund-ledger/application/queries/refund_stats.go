package queries

import (
	"context"
	"log/slog"

	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type RefundStats struct {
	CampaignID         int64
	DonorCount         int
	PendingRefundCount int
	PendingAmount      int64
	RefundsOpen        bool
}

type RefundStatsUseCase struct {
	Ledger ports.LedgerReader
	Clock  ports.Clock
	Logger *slog.Logger
}

func (uc RefundStatsUseCase) Execute(ctx context.Context, campaignID int64) (RefundStats, error) {
	campaign, err := uc.Ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		return RefundStats{}, err
	}
	donorCount, err := uc.Ledger.DonorCount(ctx, campaignID)
	if err != nil {
		return RefundStats{}, err
	}
	pendingCount, pendingAmount, err := uc.Ledger.PendingRefunds(ctx, campaignID)
	if err != nil {
		return RefundStats{}, err
	}
	return RefundStats{
		CampaignID:         campaignID,
		DonorCount:         donorCount,
		PendingRefundCount: pendingCount,
		PendingAmount:      pendingAmount,
		RefundsOpen:        campaign.RefundsAvailable(uc.Clock.Now()),
	}, nil
}
