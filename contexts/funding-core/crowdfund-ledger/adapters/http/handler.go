package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/commands"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/queries"
	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
	httptransport "fundhouse/contexts/funding-core/crowdfund-ledger/transport/http"
)

type Handler struct {
	CreateCampaign  commands.CreateCampaignUseCase
	RecordDonation  commands.RecordDonationUseCase
	ClaimFunds      commands.ClaimFundsUseCase
	ClaimRefund     commands.ClaimRefundUseCase
	CancelCampaign  commands.CancelCampaignUseCase
	PushRefunds     commands.PushRefundsUseCase
	Admin           commands.AdminUseCase
	GetCampaign     queries.GetCampaignUseCase
	ListCampaigns   queries.ListCampaignsUseCase
	RefundStats     queries.RefundStatsUseCase
	DonorSummary    queries.DonorSummaryUseCase
	DonorCredential queries.GetDonorCredentialUseCase
	Credential      queries.ResolveCredentialUseCase
	Clock           ports.Clock
	Logger          *slog.Logger
}

func (h Handler) CreateCampaignHandler(
	ctx context.Context,
	caller string,
	idempotencyKey string,
	req httptransport.CreateCampaignRequest,
) (httptransport.CreateCampaignResponse, error) {
	result, err := h.CreateCampaign.Execute(ctx, commands.CreateCampaignCommand{
		Owner:           caller,
		IdempotencyKey:  idempotencyKey,
		Goal:            req.Goal,
		DurationSeconds: req.DurationSeconds,
		ContentIDHash:   req.ContentIDHash,
	})
	if err != nil {
		return httptransport.CreateCampaignResponse{}, err
	}
	return httptransport.CreateCampaignResponse{
		Campaign: mapCampaign(result.Campaign, result.Campaign.State(h.Clock.Now()), 0),
		Replayed: result.Replayed,
	}, nil
}

func (h Handler) GetCampaignHandler(ctx context.Context, campaignID int64) (httptransport.GetCampaignResponse, error) {
	view, err := h.GetCampaign.Execute(ctx, campaignID)
	if err != nil {
		return httptransport.GetCampaignResponse{}, err
	}
	return httptransport.GetCampaignResponse{
		Campaign: mapCampaign(view.Campaign, view.State, view.DonorCount),
	}, nil
}

func (h Handler) ListCampaignsHandler(ctx context.Context, owner string, state string) (httptransport.ListCampaignsResponse, error) {
	items, err := h.ListCampaigns.Execute(ctx, ports.CampaignFilter{
		Owner: owner,
		State: entities.SettlementState(state),
	})
	if err != nil {
		return httptransport.ListCampaignsResponse{}, err
	}
	result := make([]httptransport.CampaignDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapCampaign(item.Campaign, item.State, item.DonorCount))
	}
	return httptransport.ListCampaignsResponse{Items: result}, nil
}

func (h Handler) RecordDonationHandler(
	ctx context.Context,
	caller string,
	campaignID int64,
	req httptransport.RecordDonationRequest,
) (httptransport.RecordDonationResponse, error) {
	result, err := h.RecordDonation.Execute(ctx, commands.RecordDonationCommand{
		CampaignID:     campaignID,
		Donor:          caller,
		Amount:         req.Amount,
		DonationIDHash: req.DonationIDHash,
	})
	if err != nil {
		return httptransport.RecordDonationResponse{}, err
	}
	return httptransport.RecordDonationResponse{
		CreditedAmount: result.CreditedAmount,
		CredentialID:   result.CredentialID,
		FirstDonation:  result.FirstDonation,
	}, nil
}

func (h Handler) ClaimFundsHandler(ctx context.Context, caller string, campaignID int64) (httptransport.ClaimFundsResponse, error) {
	result, err := h.ClaimFunds.Execute(ctx, commands.ClaimFundsCommand{
		CampaignID: campaignID,
		Caller:     caller,
	})
	if err != nil {
		return httptransport.ClaimFundsResponse{}, err
	}
	return httptransport.ClaimFundsResponse{Amount: result.Amount}, nil
}

func (h Handler) ClaimRefundHandler(ctx context.Context, caller string, campaignID int64) (httptransport.ClaimRefundResponse, error) {
	result, err := h.ClaimRefund.Execute(ctx, commands.ClaimRefundCommand{
		CampaignID: campaignID,
		Donor:      caller,
	})
	if err != nil {
		return httptransport.ClaimRefundResponse{}, err
	}
	return httptransport.ClaimRefundResponse{Amount: result.Amount}, nil
}

func (h Handler) CancelCampaignHandler(ctx context.Context, caller string, campaignID int64) error {
	return h.CancelCampaign.Execute(ctx, commands.CancelCampaignCommand{
		CampaignID: campaignID,
		Caller:     caller,
	})
}

func (h Handler) PushRefundsHandler(
	ctx context.Context,
	campaignID int64,
	req httptransport.PushRefundsRequest,
) (httptransport.PushRefundsResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.PushRefunds.Execute(ctx, commands.PushRefundsCommand{
		CampaignID: campaignID,
		StartIndex: req.StartIndex,
		BatchSize:  req.BatchSize,
	})
	if err != nil {
		return httptransport.PushRefundsResponse{}, err
	}
	logger.Info("refund batch pushed",
		"event", "refund_batch_pushed",
		"module", "funding-core/crowdfund-ledger",
		"layer", "transport",
		"campaign_id", campaignID,
		"refunded_count", result.RefundedCount,
	)
	return httptransport.PushRefundsResponse{
		RefundedCount:  result.RefundedCount,
		RefundedAmount: result.RefundedAmount,
		NextIndex:      result.NextIndex,
		DonorCount:     result.DonorCount,
	}, nil
}

func (h Handler) RefundStatsHandler(ctx context.Context, campaignID int64) (httptransport.RefundStatsResponse, error) {
	stats, err := h.RefundStats.Execute(ctx, campaignID)
	if err != nil {
		return httptransport.RefundStatsResponse{}, err
	}
	return httptransport.RefundStatsResponse{
		CampaignID:         stats.CampaignID,
		DonorCount:         stats.DonorCount,
		PendingRefundCount: stats.PendingRefundCount,
		PendingAmount:      stats.PendingAmount,
		RefundsOpen:        stats.RefundsOpen,
	}, nil
}

func (h Handler) DonorCredentialHandler(ctx context.Context, campaignID int64, donor string) (httptransport.DonorCredentialResponse, error) {
	credentialID, err := h.DonorCredential.Execute(ctx, campaignID, donor)
	if err != nil {
		return httptransport.DonorCredentialResponse{}, err
	}
	return httptransport.DonorCredentialResponse{
		CampaignID:   campaignID,
		CredentialID: credentialID,
	}, nil
}

func (h Handler) CredentialHandler(ctx context.Context, credentialID int64) (httptransport.CredentialDescriptorResponse, error) {
	descriptor, err := h.Credential.Execute(ctx, credentialID)
	if err != nil {
		return httptransport.CredentialDescriptorResponse{}, err
	}
	return httptransport.CredentialDescriptorResponse{
		CredentialID: descriptor.CredentialID,
		CampaignID:   descriptor.CampaignID,
		Donor:        descriptor.Donor,
		TokenURI:     descriptor.TokenURI,
	}, nil
}

func (h Handler) DonorSummaryHandler(ctx context.Context, donor string) (httptransport.DonorSummaryResponse, error) {
	items, err := h.DonorSummary.Execute(ctx, donor)
	if err != nil {
		return httptransport.DonorSummaryResponse{}, err
	}
	result := make([]httptransport.DonorCampaignSummaryDTO, 0, len(items))
	for _, item := range items {
		result = append(result, httptransport.DonorCampaignSummaryDTO{
			CampaignID:   item.CampaignID,
			Amount:       item.Amount,
			CredentialID: item.CredentialID,
			Goal:         item.Goal,
			TotalRaised:  item.TotalRaised,
			Active:       item.Active,
			Ended:        item.Ended,
			GoalMet:      item.GoalMet,
			Cancelled:    item.Cancelled,
			FundsClaimed: item.FundsClaimed,
		})
	}
	return httptransport.DonorSummaryResponse{Donor: donor, Items: result}, nil
}

func (h Handler) SetPausedHandler(ctx context.Context, caller string, req httptransport.SetPausedRequest) error {
	return h.Admin.SetPaused(ctx, caller, req.Paused)
}

func (h Handler) SetMaxDurationHandler(ctx context.Context, caller string, req httptransport.SetMaxDurationRequest) error {
	return h.Admin.SetMaxDuration(ctx, caller, time.Duration(req.MaxDurationSeconds)*time.Second)
}

func (h Handler) SetMetadataBaseHandler(ctx context.Context, caller string, req httptransport.SetMetadataBaseRequest) error {
	return h.Admin.SetMetadataBaseURL(ctx, caller, req.BaseURL)
}

func (h Handler) RescueAssetHandler(
	ctx context.Context,
	caller string,
	req httptransport.RescueAssetRequest,
) (httptransport.RescueAssetResponse, error) {
	amount, err := h.Admin.RescueAsset(ctx, caller, req.Asset, req.To)
	if err != nil {
		return httptransport.RescueAssetResponse{}, err
	}
	return httptransport.RescueAssetResponse{
		Asset:  req.Asset,
		To:     req.To,
		Amount: amount,
	}, nil
}

func mapCampaign(item entities.Campaign, state entities.SettlementState, donorCount int) httptransport.CampaignDTO {
	return httptransport.CampaignDTO{
		CampaignID:    item.CampaignID,
		Owner:         item.Owner,
		Goal:          item.Goal,
		TotalRaised:   item.TotalRaised,
		EndAt:         item.EndAt.UTC().Format(time.RFC3339),
		ContentIDHash: item.ContentIDHash,
		FundsClaimed:  item.FundsClaimed,
		Cancelled:     item.Cancelled,
		State:         string(state),
		DonorCount:    donorCount,
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
