package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type RecordDonationCommand struct {
	CampaignID     int64
	Donor          string
	Amount         int64
	DonationIDHash string
}

type RecordDonationUseCase struct {
	Ledger      ports.LedgerStore
	Admin       ports.AdminConfig
	Vault       ports.FundVault
	Guard       *application.SettlementGuard
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

type RecordDonationResult struct {
	CreditedAmount int64
	CredentialID   int64
	FirstDonation  bool
}

// Execute records a donation: membership and credential on first
// contribution, then the balance and total increments, then the pull
// from the donor as the final interaction of the atomic scope. A failed
// pull discards every ledger effect.
func (uc RecordDonationUseCase) Execute(ctx context.Context, cmd RecordDonationCommand) (RecordDonationResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	if paused, err := uc.Admin.IsPaused(ctx); err != nil {
		return RecordDonationResult{}, err
	} else if paused {
		return RecordDonationResult{}, domainerrors.ErrLedgerPaused
	}
	if cmd.Amount <= 0 {
		return RecordDonationResult{}, domainerrors.ErrInvalidAmount
	}
	donor := strings.TrimSpace(cmd.Donor)

	if err := uc.Guard.Acquire(cmd.CampaignID); err != nil {
		return RecordDonationResult{}, err
	}
	defer uc.Guard.Release(cmd.CampaignID)

	now := uc.Clock.Now().UTC()
	donationID := entities.NormalizeIdentifier(cmd.DonationIDHash)
	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return RecordDonationResult{}, err
	}

	var result RecordDonationResult
	err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
		campaign, err := tx.GetCampaign(cmd.CampaignID)
		if err != nil {
			return err
		}
		if campaign.Cancelled {
			return domainerrors.ErrCampaignCancelled
		}
		if campaign.Ended(now) {
			return domainerrors.ErrCampaignEnded
		}
		if donationID != "" {
			if err := tx.RegisterDonationID(donationID); err != nil {
				return err
			}
		}

		credentialID, err := tx.CredentialIDFor(cmd.CampaignID, donor)
		if err != nil {
			return err
		}
		first := credentialID == 0
		if first {
			if err := tx.AppendDonor(cmd.CampaignID, donor); err != nil {
				return err
			}
			credentialID, err = tx.IssueCredential(entities.Credential{
				CampaignID: cmd.CampaignID,
				Donor:      donor,
				IssuedAt:   now,
			})
			if err != nil {
				return err
			}
		}

		record, found, err := tx.GetDonation(cmd.CampaignID, donor)
		if err != nil {
			return err
		}
		if !found {
			record = entities.DonationRecord{
				CampaignID:     cmd.CampaignID,
				Donor:          donor,
				CredentialID:   credentialID,
				FirstDonatedAt: now,
			}
		}
		record.Amount += cmd.Amount
		record.UpdatedAt = now
		if err := tx.PutDonation(record); err != nil {
			return err
		}

		campaign.TotalRaised += cmd.Amount
		campaign.UpdatedAt = now
		if err := tx.PutCampaign(campaign); err != nil {
			return err
		}

		envelope, err := newLedgerEnvelope(eventID, "donation.recorded", cmd.CampaignID, now, map[string]any{
			"campaign_id":    cmd.CampaignID,
			"donor":          donor,
			"amount":         cmd.Amount,
			"credential_id":  credentialID,
			"first_donation": first,
			"total_raised":   campaign.TotalRaised,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(envelope); err != nil {
			return err
		}

		// Effects are staged; the pull is the final interaction.
		if err := uc.Vault.Pull(ctx, donor, cmd.Amount); err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrTransferFailed, err)
		}

		result = RecordDonationResult{
			CreditedAmount: cmd.Amount,
			CredentialID:   credentialID,
			FirstDonation:  first,
		}
		return nil
	})
	if err != nil {
		return RecordDonationResult{}, err
	}

	logger.Info("donation recorded",
		"event", "donation_recorded",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"campaign_id", cmd.CampaignID,
		"donor", donor,
		"amount", cmd.Amount,
		"credential_id", result.CredentialID,
		"first_donation", result.FirstDonation,
	)
	return result, nil
}
