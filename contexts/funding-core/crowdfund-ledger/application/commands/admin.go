package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

// AdminUseCase is the owner-gated control surface consulted by the
// core: pause switch, maximum campaign duration, credential metadata
// base, and rescue of stray assets. It never touches campaign records.
type AdminUseCase struct {
	Admin        ports.AdminState
	Vault        ports.FundVault
	AdminAddress string
	FundingAsset string
	Logger       *slog.Logger
}

func (uc AdminUseCase) authorize(caller string) error {
	if strings.TrimSpace(caller) == "" || strings.TrimSpace(caller) != uc.AdminAddress {
		return domainerrors.ErrNotLedgerAdmin
	}
	return nil
}

func (uc AdminUseCase) SetPaused(ctx context.Context, caller string, paused bool) error {
	if err := uc.authorize(caller); err != nil {
		return err
	}
	if err := uc.Admin.SetPaused(ctx, paused); err != nil {
		return err
	}
	application.ResolveLogger(uc.Logger).Info("ledger pause switched",
		"event", "ledger_pause_switched",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"paused", paused,
	)
	return nil
}

func (uc AdminUseCase) SetMaxDuration(ctx context.Context, caller string, max time.Duration) error {
	if err := uc.authorize(caller); err != nil {
		return err
	}
	if max <= 0 {
		return domainerrors.ErrInvalidDuration
	}
	if err := uc.Admin.SetMaxDuration(ctx, max); err != nil {
		return err
	}
	application.ResolveLogger(uc.Logger).Info("max campaign duration updated",
		"event", "ledger_max_duration_updated",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"max_duration", max.String(),
	)
	return nil
}

func (uc AdminUseCase) SetMetadataBaseURL(ctx context.Context, caller string, base string) error {
	if err := uc.authorize(caller); err != nil {
		return err
	}
	if err := uc.Admin.SetMetadataBaseURL(ctx, strings.TrimSpace(base)); err != nil {
		return err
	}
	application.ResolveLogger(uc.Logger).Info("credential metadata base updated",
		"event", "ledger_metadata_base_updated",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
	)
	return nil
}

// RescueAsset releases the ledger's full balance of a stray asset. The
// funding asset itself is never rescuable; its custody belongs to the
// settlement paths alone.
func (uc AdminUseCase) RescueAsset(ctx context.Context, caller string, asset string, to string) (int64, error) {
	if err := uc.authorize(caller); err != nil {
		return 0, err
	}
	asset = strings.TrimSpace(asset)
	if asset == "" || asset == uc.FundingAsset {
		return 0, domainerrors.ErrRescueFundingAsset
	}
	amount, err := uc.Vault.RescueAsset(ctx, asset, strings.TrimSpace(to))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domainerrors.ErrTransferFailed, err)
	}
	application.ResolveLogger(uc.Logger).Info("stray asset rescued",
		"event", "ledger_asset_rescued",
		"module", "funding-core/crowdfund-ledger",
		"layer", "application",
		"asset", asset,
		"amount", amount,
	)
	return amount, nil
}
