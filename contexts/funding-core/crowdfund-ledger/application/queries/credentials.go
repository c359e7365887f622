package queries

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type GetDonorCredentialUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

// Execute returns the donor's credential id for a campaign, 0 when the
// donor never contributed. The campaign must exist.
func (uc GetDonorCredentialUseCase) Execute(ctx context.Context, campaignID int64, donor string) (int64, error) {
	if _, err := uc.Ledger.GetCampaign(ctx, campaignID); err != nil {
		return 0, err
	}
	return uc.Ledger.CredentialIDFor(ctx, campaignID, strings.TrimSpace(donor))
}

type ResolveCredentialUseCase struct {
	Ledger ports.LedgerReader
	Admin  ports.AdminConfig
	Logger *slog.Logger
}

// Execute maps a credential back to its owning campaign and renders the
// metadata URI from the admin-configured base.
func (uc ResolveCredentialUseCase) Execute(ctx context.Context, credentialID int64) (entities.CredentialDescriptor, error) {
	credential, err := uc.Ledger.GetCredential(ctx, credentialID)
	if err != nil {
		return entities.CredentialDescriptor{}, err
	}
	base, err := uc.Admin.MetadataBaseURL(ctx)
	if err != nil {
		return entities.CredentialDescriptor{}, err
	}
	tokenURI := ""
	if base != "" {
		tokenURI = strings.TrimSuffix(base, "/") + "/" + strconv.FormatInt(credential.CampaignID, 10)
	}
	return entities.CredentialDescriptor{
		CredentialID: credential.CredentialID,
		CampaignID:   credential.CampaignID,
		Donor:        credential.Donor,
		TokenURI:     tokenURI,
	}, nil
}
