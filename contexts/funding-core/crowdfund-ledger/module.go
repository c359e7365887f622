package crowdfundledger

import (
	"log/slog"
	"time"

	httpadapter "fundhouse/contexts/funding-core/crowdfund-ledger/adapters/http"
	"fundhouse/contexts/funding-core/crowdfund-ledger/adapters/memory"
	application "fundhouse/contexts/funding-core/crowdfund-ledger/application"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/commands"
	"fundhouse/contexts/funding-core/crowdfund-ledger/application/queries"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Guard   *application.SettlementGuard
	Store   *memory.Store
	Vault   *memory.Vault
}

type Dependencies struct {
	Ledger         ports.LedgerStore
	Reader         ports.LedgerReader
	Vault          ports.FundVault
	Admin          ports.AdminState
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	AdminAddress   string
	FundingAsset   string
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	guard := application.NewSettlementGuard()

	createCampaign := commands.CreateCampaignUseCase{
		Ledger:         deps.Ledger,
		Admin:          deps.Admin,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	recordDonation := commands.RecordDonationUseCase{
		Ledger:      deps.Ledger,
		Admin:       deps.Admin,
		Vault:       deps.Vault,
		Guard:       guard,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	claimFunds := commands.ClaimFundsUseCase{
		Ledger:      deps.Ledger,
		Admin:       deps.Admin,
		Vault:       deps.Vault,
		Guard:       guard,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	claimRefund := commands.ClaimRefundUseCase{
		Ledger:      deps.Ledger,
		Admin:       deps.Admin,
		Vault:       deps.Vault,
		Guard:       guard,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	cancelCampaign := commands.CancelCampaignUseCase{
		Ledger:      deps.Ledger,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	pushRefunds := commands.PushRefundsUseCase{
		Ledger:      deps.Ledger,
		Vault:       deps.Vault,
		Guard:       guard,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	admin := commands.AdminUseCase{
		Admin:        deps.Admin,
		Vault:        deps.Vault,
		AdminAddress: deps.AdminAddress,
		FundingAsset: deps.FundingAsset,
		Logger:       deps.Logger,
	}

	getCampaign := queries.GetCampaignUseCase{
		Ledger: deps.Reader,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	listCampaigns := queries.ListCampaignsUseCase{
		Ledger: deps.Reader,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	refundStats := queries.RefundStatsUseCase{
		Ledger: deps.Reader,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	donorSummary := queries.DonorSummaryUseCase{
		Ledger: deps.Reader,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	donorCredential := queries.GetDonorCredentialUseCase{
		Ledger: deps.Reader,
		Logger: deps.Logger,
	}
	credential := queries.ResolveCredentialUseCase{
		Ledger: deps.Reader,
		Admin:  deps.Admin,
		Logger: deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			CreateCampaign:  createCampaign,
			RecordDonation:  recordDonation,
			ClaimFunds:      claimFunds,
			ClaimRefund:     claimRefund,
			CancelCampaign:  cancelCampaign,
			PushRefunds:     pushRefunds,
			Admin:           admin,
			GetCampaign:     getCampaign,
			ListCampaigns:   listCampaigns,
			RefundStats:     refundStats,
			DonorSummary:    donorSummary,
			DonorCredential: donorCredential,
			Credential:      credential,
			Clock:           deps.Clock,
			Logger:          deps.Logger,
		},
		Guard: guard,
	}
}

// NewInMemoryModule wires the module against the in-memory ledger and
// vault, for tests and local runs without postgres.
func NewInMemoryModule(adminAddress string, fundingAsset string, logger *slog.Logger) Module {
	store := memory.NewStore()
	vault := memory.NewVault(fundingAsset)
	module := NewModule(Dependencies{
		Ledger:         store,
		Reader:         store,
		Vault:          vault,
		Admin:          store,
		Idempotency:    store,
		Clock:          store,
		IDGenerator:    store,
		AdminAddress:   adminAddress,
		FundingAsset:   fundingAsset,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	module.Vault = vault
	return module
}
