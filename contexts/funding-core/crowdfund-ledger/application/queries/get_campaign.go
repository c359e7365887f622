package queries

import (
	"context"
	"log/slog"

	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type CampaignView struct {
	Campaign   entities.Campaign
	State      entities.SettlementState
	DonorCount int
}

type GetCampaignUseCase struct {
	Ledger ports.LedgerReader
	Clock  ports.Clock
	Logger *slog.Logger
}

func (uc GetCampaignUseCase) Execute(ctx context.Context, campaignID int64) (CampaignView, error) {
	campaign, err := uc.Ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignView{}, err
	}
	donorCount, err := uc.Ledger.DonorCount(ctx, campaignID)
	if err != nil {
		return CampaignView{}, err
	}
	return CampaignView{
		Campaign:   campaign,
		State:      campaign.State(uc.Clock.Now()),
		DonorCount: donorCount,
	}, nil
}

type ListCampaignsUseCase struct {
	Ledger ports.LedgerReader
	Clock  ports.Clock
	Logger *slog.Logger
}

func (uc ListCampaignsUseCase) Execute(ctx context.Context, filter ports.CampaignFilter) ([]CampaignView, error) {
	campaigns, err := uc.Ledger.ListCampaigns(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := uc.Clock.Now()
	items := make([]CampaignView, 0, len(campaigns))
	for _, campaign := range campaigns {
		state := campaign.State(now)
		if filter.State != "" && state != filter.State {
			continue
		}
		items = append(items, CampaignView{Campaign: campaign, State: state})
	}
	return items, nil
}
