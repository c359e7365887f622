package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type CreateCampaignCommand struct {
	Owner           string
	IdempotencyKey  string
	Goal            int64
	DurationSeconds int64
	ContentIDHash   string
}

type CreateCampaignUseCase struct {
	Ledger         ports.LedgerStore
	Admin          ports.AdminConfig
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

type CreateCampaignResult struct {
	Campaign entities.Campaign
	Replayed bool
}

type createCampaignReplayPayload struct {
	CampaignID    int64     `json:"campaign_id"`
	Owner         string    `json:"owner"`
	Goal          int64     `json:"goal"`
	EndAt         time.Time `json:"end_at"`
	ContentIDHash string    `json:"content_id_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

func (uc CreateCampaignUseCase) Execute(ctx context.Context, cmd CreateCampaignCommand) (CreateCampaignResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return CreateCampaignResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	if paused, err := uc.Admin.IsPaused(ctx); err != nil {
		return CreateCampaignResult{}, err
	} else if paused {
		return CreateCampaignResult{}, domainerrors.ErrLedgerPaused
	}

	if cmd.Goal <= 0 {
		return CreateCampaignResult{}, domainerrors.ErrInvalidGoal
	}
	if cmd.DurationSeconds <= 0 {
		return CreateCampaignResult{}, domainerrors.ErrInvalidDuration
	}
	maxDuration, err := uc.Admin.MaxDuration(ctx)
	if err != nil {
		return CreateCampaignResult{}, err
	}
	duration := time.Duration(cmd.DurationSeconds) * time.Second
	if duration > maxDuration {
		return CreateCampaignResult{}, domainerrors.ErrDurationTooLong
	}

	now := uc.Clock.Now().UTC()
	requestHash := hashCreateCampaignCommand(cmd)
	if record, found, err := uc.Idempotency.GetRecord(ctx, cmd.IdempotencyKey, now); err != nil {
		return CreateCampaignResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return CreateCampaignResult{}, domainerrors.ErrIdempotencyKeyConflict
		}
		var payload createCampaignReplayPayload
		if err := json.Unmarshal(record.ResponsePayload, &payload); err != nil {
			return CreateCampaignResult{}, err
		}
		// The stored payload pins the campaign id; the response carries
		// the live record so a replay reflects donations made since.
		var live entities.Campaign
		if err := uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
			campaign, err := tx.GetCampaign(payload.CampaignID)
			if err != nil {
				return err
			}
			live = campaign
			return nil
		}); err != nil {
			return CreateCampaignResult{}, err
		}
		return CreateCampaignResult{Campaign: live, Replayed: true}, nil
	}

	contentID := entities.NormalizeIdentifier(cmd.ContentIDHash)
	eventID, err := uc.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateCampaignResult{}, err
	}

	var campaign entities.Campaign
	err = uc.Ledger.Atomically(ctx, func(tx ports.LedgerTx) error {
		if contentID != "" {
			if err := tx.RegisterContentID(contentID); err != nil {
				return err
			}
		}
		campaignID, err := tx.NextCampaignID()
		if err != nil {
			return err
		}
		campaign = entities.Campaign{
			CampaignID:    campaignID,
			Owner:         strings.TrimSpace(cmd.Owner),
			Goal:          cmd.Goal,
			TotalRaised:   0,
			EndAt:         now.Add(duration),
			ContentIDHash: contentID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.PutCampaign(campaign); err != nil {
			return err
		}
		envelope, err := newLedgerEnvelope(eventID, "campaign.created", campaignID, now, map[string]any{
			"campaign_id": campaignID,
			"owner":       campaign.Owner,
			"goal":        campaign.Goal,
			"end_at":      campaign.EndAt,
		})
		if err != nil {
			return err
		}
		return tx.AppendOutbox(envelope)
	})
	if err != nil {
		return CreateCampaignResult{}, err
	}

	serialized, err := json.Marshal(createCampaignReplayPayload{
		CampaignID:    campaign.CampaignID,
		Owner:         campaign.Owner,
		Goal:          campaign.Goal,
		EndAt:         campaign.EndAt,
		ContentIDHash: campaign.ContentIDHash,
		CreatedAt:     campaign.CreatedAt,
	})
	if err != nil {
		return CreateCampaignResult{}, err
	}
	if err := uc.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             cmd.IdempotencyKey,
		RequestHash:     requestHash,
		ResponsePayload: serialized,
		ExpiresAt:       now.Add(uc.IdempotencyTTL),
	}); err != nil {
		return CreateCampaignResult{}, err
	}

	logger.Info("campaign created",
		"event", "campaign_created",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"campaign_id", campaign.CampaignID,
		"owner", campaign.Owner,
		"goal", campaign.Goal,
		"end_at", campaign.EndAt,
	)
	return CreateCampaignResult{Campaign: campaign}, nil
}

func hashCreateCampaignCommand(cmd CreateCampaignCommand) string {
	payload := map[string]any{
		"owner":            strings.TrimSpace(cmd.Owner),
		"goal":             cmd.Goal,
		"duration_seconds": cmd.DurationSeconds,
		"content_id_hash":  entities.NormalizeIdentifier(cmd.ContentIDHash),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
