package ports

import (
	"context"
	"time"

	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	"fundhouse/internal/shared/events"
)

type CampaignFilter struct {
	Owner string
	State entities.SettlementState
}

// LedgerTx is the transactional view handed to the function passed to
// LedgerStore.Atomically. Every method operates on uncommitted state;
// returning an error from the scope discards all of it. Methods carry
// no context because the scope is already bound to one.
type LedgerTx interface {
	NextCampaignID() (int64, error)
	GetCampaign(campaignID int64) (entities.Campaign, error)
	PutCampaign(campaign entities.Campaign) error

	GetDonation(campaignID int64, donor string) (entities.DonationRecord, bool, error)
	PutDonation(record entities.DonationRecord) error

	// AppendDonor adds the donor to the campaign's append-only
	// membership list. The caller guarantees first-contribution
	// semantics via CredentialIDFor.
	AppendDonor(campaignID int64, donor string) error
	DonorCount(campaignID int64) (int, error)
	DonorsInRange(campaignID int64, start, end int) ([]string, error)

	// CredentialIDFor returns 0 when the donor holds no credential for
	// the campaign.
	CredentialIDFor(campaignID int64, donor string) (int64, error)
	IssueCredential(credential entities.Credential) (int64, error)

	// RegisterContentID / RegisterDonationID insert into the global
	// identifier sets, failing with the matching duplicate error when
	// the hash was already consumed. The zero identifier is never
	// passed here; callers normalize it away first.
	RegisterContentID(hash string) error
	RegisterDonationID(hash string) error

	AppendOutbox(envelope events.Envelope) error
}

// LedgerStore is the write side of the donation ledger. Atomically runs
// fn as a single all-or-nothing unit of work; implementations serialize
// scopes touching the same campaign.
type LedgerStore interface {
	Atomically(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerReader is the committed-state read side used by queries.
type LedgerReader interface {
	GetCampaign(ctx context.Context, campaignID int64) (entities.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]entities.Campaign, error)
	GetDonation(ctx context.Context, campaignID int64, donor string) (entities.DonationRecord, bool, error)
	ListDonationsByDonor(ctx context.Context, donor string) ([]entities.DonationRecord, error)
	DonorCount(ctx context.Context, campaignID int64) (int, error)
	// PendingRefunds counts donors with a non-zero balance and sums the
	// amount still custodied for them.
	PendingRefunds(ctx context.Context, campaignID int64) (int, int64, error)
	CredentialIDFor(ctx context.Context, campaignID int64, donor string) (int64, error)
	GetCredential(ctx context.Context, credentialID int64) (entities.Credential, error)
	// ListRefundableCampaigns returns campaigns whose refund path is
	// open and that still custody funds, for the sweeper worker.
	ListRefundableCampaigns(ctx context.Context, now time.Time, limit int) ([]entities.Campaign, error)
}

// FundVault is the external value-transfer medium. Pull custodies funds
// from an account into the ledger, Push releases custodied funds to an
// account. Either can fail; the failure aborts the calling operation.
type FundVault interface {
	Pull(ctx context.Context, from string, amount int64) error
	Push(ctx context.Context, to string, amount int64) error
	// RescueAsset moves the ledger's full stray balance of a
	// non-funding asset to the recipient and returns the amount moved.
	RescueAsset(ctx context.Context, asset string, to string) (int64, error)
}

// AdminConfig is the narrow read surface the core consults.
type AdminConfig interface {
	IsPaused(ctx context.Context) (bool, error)
	MaxDuration(ctx context.Context) (time.Duration, error)
	MetadataBaseURL(ctx context.Context) (string, error)
}

// AdminState adds the owner-gated mutation path.
type AdminState interface {
	AdminConfig
	SetPaused(ctx context.Context, paused bool) error
	SetMaxDuration(ctx context.Context, max time.Duration) error
	SetMetadataBaseURL(ctx context.Context, base string) error
}

type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = events.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
