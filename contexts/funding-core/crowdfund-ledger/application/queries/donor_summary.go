package queries

import (
	"context"
	"log/slog"
	"strings"

	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type DonorCampaignSummary struct {
	CampaignID   int64
	Amount       int64
	CredentialID int64
	Goal         int64
	TotalRaised  int64
	Active       bool
	Ended        bool
	GoalMet      bool
	Cancelled    bool
	FundsClaimed bool
}

type DonorSummaryUseCase struct {
	Ledger ports.LedgerReader
	Clock  ports.Clock
	Logger *slog.Logger
}

// Execute lists every campaign the donor has ever contributed to, with
// the net amount still custodied (zero after refund) and the campaign's
// current disposition.
func (uc DonorSummaryUseCase) Execute(ctx context.Context, donor string) ([]DonorCampaignSummary, error) {
	records, err := uc.Ledger.ListDonationsByDonor(ctx, strings.TrimSpace(donor))
	if err != nil {
		return nil, err
	}

	now := uc.Clock.Now()
	items := make([]DonorCampaignSummary, 0, len(records))
	for _, record := range records {
		campaign, err := uc.Ledger.GetCampaign(ctx, record.CampaignID)
		if err != nil {
			return nil, err
		}
		items = append(items, DonorCampaignSummary{
			CampaignID:   campaign.CampaignID,
			Amount:       record.Amount,
			CredentialID: record.CredentialID,
			Goal:         campaign.Goal,
			TotalRaised:  campaign.TotalRaised,
			Active:       campaign.AcceptsDonations(now),
			Ended:        campaign.Ended(now),
			GoalMet:      campaign.GoalMet(),
			Cancelled:    campaign.Cancelled,
			FundsClaimed: campaign.FundsClaimed,
		})
	}
	return items, nil
}
