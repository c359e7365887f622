package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	identifierKindContent  = "content"
	identifierKindDonation = "donation"

	campaignCounterName = "campaign_id"
)

type campaignModel struct {
	CampaignID    int64     `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	Owner         string    `gorm:"column:owner;index"`
	Goal          int64     `gorm:"column:goal"`
	TotalRaised   int64     `gorm:"column:total_raised"`
	EndAt         time.Time `gorm:"column:end_at"`
	ContentIDHash string    `gorm:"column:content_id_hash"`
	FundsClaimed  bool      `gorm:"column:funds_claimed"`
	Cancelled     bool      `gorm:"column:cancelled"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (campaignModel) TableName() string { return "crowdfund_campaigns" }

func (m campaignModel) toEntity() entities.Campaign {
	return entities.Campaign{
		CampaignID:    m.CampaignID,
		Owner:         m.Owner,
		Goal:          m.Goal,
		TotalRaised:   m.TotalRaised,
		EndAt:         m.EndAt.UTC(),
		ContentIDHash: m.ContentIDHash,
		FundsClaimed:  m.FundsClaimed,
		Cancelled:     m.Cancelled,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func campaignModelFromEntity(c entities.Campaign) campaignModel {
	return campaignModel{
		CampaignID:    c.CampaignID,
		Owner:         c.Owner,
		Goal:          c.Goal,
		TotalRaised:   c.TotalRaised,
		EndAt:         c.EndAt.UTC(),
		ContentIDHash: c.ContentIDHash,
		FundsClaimed:  c.FundsClaimed,
		Cancelled:     c.Cancelled,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

type donationModel struct {
	CampaignID     int64     `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	Donor          string    `gorm:"column:donor;primaryKey"`
	Amount         int64     `gorm:"column:amount"`
	CredentialID   int64     `gorm:"column:credential_id"`
	FirstDonatedAt time.Time `gorm:"column:first_donated_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (donationModel) TableName() string { return "crowdfund_donations" }

func (m donationModel) toEntity() entities.DonationRecord {
	return entities.DonationRecord{
		CampaignID:     m.CampaignID,
		Donor:          m.Donor,
		Amount:         m.Amount,
		CredentialID:   m.CredentialID,
		FirstDonatedAt: m.FirstDonatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type donorMemberModel struct {
	CampaignID int64  `gorm:"column:campaign_id;primaryKey;autoIncrement:false"`
	Position   int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Donor      string `gorm:"column:donor;uniqueIndex:idx_donor_member"`
}

func (donorMemberModel) TableName() string { return "crowdfund_donor_members" }

type credentialModel struct {
	CredentialID int64     `gorm:"column:credential_id;primaryKey"`
	CampaignID   int64     `gorm:"column:campaign_id;uniqueIndex:idx_campaign_donor_credential"`
	Donor        string    `gorm:"column:donor;uniqueIndex:idx_campaign_donor_credential"`
	IssuedAt     time.Time `gorm:"column:issued_at"`
}

func (credentialModel) TableName() string { return "crowdfund_credentials" }

type identifierModel struct {
	Kind string `gorm:"column:kind;primaryKey"`
	Hash string `gorm:"column:hash;primaryKey"`
}

func (identifierModel) TableName() string { return "crowdfund_identifiers" }

type counterModel struct {
	Name      string `gorm:"column:name;primaryKey"`
	NextValue int64  `gorm:"column:next_value"`
}

func (counterModel) TableName() string { return "crowdfund_counters" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "crowdfund_outbox" }

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string { return "crowdfund_idempotency_keys" }

type adminStateModel struct {
	ID                 int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	Paused             bool   `gorm:"column:paused"`
	MaxDurationSeconds int64  `gorm:"column:max_duration_seconds"`
	MetadataBaseURL    string `gorm:"column:metadata_base_url"`
}

func (adminStateModel) TableName() string { return "crowdfund_admin_state" }

// Repository is the postgres ledger adapter. Atomic scopes run inside a
// gorm transaction with the campaign row locked FOR UPDATE, which gives
// the serialized-transaction model the settlement paths assume.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&campaignModel{},
		&donationModel{},
		&donorMemberModel{},
		&credentialModel{},
		&identifierModel{},
		&counterModel{},
		&outboxModel{},
		&idempotencyModel{},
		&adminStateModel{},
	)
}

func (r *Repository) Atomically(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgTx{db: tx})
	})
}

type pgTx struct {
	db *gorm.DB
}

func (t *pgTx) NextCampaignID() (int64, error) {
	var counter counterModel
	err := t.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", campaignCounterName).
		First(&counter).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = counterModel{Name: campaignCounterName, NextValue: 0}
		if err := t.db.Create(&counter).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	id := counter.NextValue
	err = t.db.
		Model(&counterModel{}).
		Where("name = ?", campaignCounterName).
		Update("next_value", id+1).
		Error
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTx) GetCampaign(campaignID int64) (entities.Campaign, error) {
	var row campaignModel
	err := t.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ?", campaignID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Campaign{}, domainerrors.ErrCampaignNotFound
		}
		return entities.Campaign{}, err
	}
	return row.toEntity(), nil
}

func (t *pgTx) PutCampaign(campaign entities.Campaign) error {
	row := campaignModelFromEntity(campaign)
	return t.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}},
			UpdateAll: true,
		}).
		Create(&row).
		Error
}

func (t *pgTx) GetDonation(campaignID int64, donor string) (entities.DonationRecord, bool, error) {
	var row donationModel
	err := t.db.
		Where("campaign_id = ? AND donor = ?", campaignID, donor).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.DonationRecord{}, false, nil
		}
		return entities.DonationRecord{}, false, err
	}
	return row.toEntity(), true, nil
}

func (t *pgTx) PutDonation(record entities.DonationRecord) error {
	row := donationModel{
		CampaignID:     record.CampaignID,
		Donor:          record.Donor,
		Amount:         record.Amount,
		CredentialID:   record.CredentialID,
		FirstDonatedAt: record.FirstDonatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
	return t.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "donor"}},
			UpdateAll: true,
		}).
		Create(&row).
		Error
}

func (t *pgTx) AppendDonor(campaignID int64, donor string) error {
	var count int64
	err := t.db.
		Model(&donorMemberModel{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).
		Error
	if err != nil {
		return err
	}
	row := donorMemberModel{CampaignID: campaignID, Position: int(count), Donor: donor}
	err = t.db.Create(&row).Error
	if isUniqueViolation(err) {
		// Donor already listed; membership is append-once.
		return nil
	}
	return err
}

func (t *pgTx) DonorCount(campaignID int64) (int, error) {
	var count int64
	err := t.db.
		Model(&donorMemberModel{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).
		Error
	return int(count), err
}

func (t *pgTx) DonorsInRange(campaignID int64, start, end int) ([]string, error) {
	if end <= start {
		return nil, nil
	}
	var donors []string
	err := t.db.
		Model(&donorMemberModel{}).
		Where("campaign_id = ? AND position >= ? AND position < ?", campaignID, start, end).
		Order("position ASC").
		Pluck("donor", &donors).
		Error
	return donors, err
}

func (t *pgTx) CredentialIDFor(campaignID int64, donor string) (int64, error) {
	var row credentialModel
	err := t.db.
		Where("campaign_id = ? AND donor = ?", campaignID, donor).
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.CredentialID, nil
}

func (t *pgTx) IssueCredential(credential entities.Credential) (int64, error) {
	// credential_id is a bigserial, which counts from 1 and so keeps 0
	// free as the "no credential" sentinel.
	row := credentialModel{
		CampaignID: credential.CampaignID,
		Donor:      credential.Donor,
		IssuedAt:   credential.IssuedAt.UTC(),
	}
	if err := t.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.CredentialID, nil
}

func (t *pgTx) RegisterContentID(hash string) error {
	err := t.db.Create(&identifierModel{Kind: identifierKindContent, Hash: hash}).Error
	if isUniqueViolation(err) {
		return domainerrors.ErrDuplicateContentID
	}
	return err
}

func (t *pgTx) RegisterDonationID(hash string) error {
	err := t.db.Create(&identifierModel{Kind: identifierKindDonation, Hash: hash}).Error
	if isUniqueViolation(err) {
		return domainerrors.ErrDuplicateDonationID
	}
	return err
}

func (t *pgTx) AppendOutbox(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     uuid.NewString(),
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	return t.db.Create(&row).Error
}

func (r *Repository) GetCampaign(ctx context.Context, campaignID int64) (entities.Campaign, error) {
	var row campaignModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Campaign{}, domainerrors.ErrCampaignNotFound
		}
		return entities.Campaign{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListCampaigns(ctx context.Context, filter ports.CampaignFilter) ([]entities.Campaign, error) {
	tx := r.db.WithContext(ctx).Model(&campaignModel{})
	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		tx = tx.Where("owner = ?", owner)
	}

	var rows []campaignModel
	if err := tx.Order("campaign_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]entities.Campaign, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetDonation(ctx context.Context, campaignID int64, donor string) (entities.DonationRecord, bool, error) {
	var row donationModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND donor = ?", campaignID, strings.TrimSpace(donor)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.DonationRecord{}, false, nil
		}
		return entities.DonationRecord{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListDonationsByDonor(ctx context.Context, donor string) ([]entities.DonationRecord, error) {
	var rows []donationModel
	err := r.db.WithContext(ctx).
		Where("donor = ?", strings.TrimSpace(donor)).
		Order("campaign_id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]entities.DonationRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) DonorCount(ctx context.Context, campaignID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&donorMemberModel{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).
		Error
	return int(count), err
}

func (r *Repository) PendingRefunds(ctx context.Context, campaignID int64) (int, int64, error) {
	var result struct {
		PendingCount  int64
		PendingAmount int64
	}
	err := r.db.WithContext(ctx).
		Model(&donationModel{}).
		Select("COUNT(*) AS pending_count, COALESCE(SUM(amount), 0) AS pending_amount").
		Where("campaign_id = ? AND amount > 0", campaignID).
		Scan(&result).
		Error
	return int(result.PendingCount), result.PendingAmount, err
}

func (r *Repository) CredentialIDFor(ctx context.Context, campaignID int64, donor string) (int64, error) {
	var row credentialModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND donor = ?", campaignID, strings.TrimSpace(donor)).
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.CredentialID, nil
}

func (r *Repository) GetCredential(ctx context.Context, credentialID int64) (entities.Credential, error) {
	var row credentialModel
	err := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Credential{}, domainerrors.ErrCredentialNotFound
		}
		return entities.Credential{}, err
	}
	return entities.Credential{
		CredentialID: row.CredentialID,
		CampaignID:   row.CampaignID,
		Donor:        row.Donor,
		IssuedAt:     row.IssuedAt.UTC(),
	}, nil
}

func (r *Repository) ListRefundableCampaigns(ctx context.Context, now time.Time, limit int) ([]entities.Campaign, error) {
	var rows []campaignModel
	tx := r.db.WithContext(ctx).
		Where("funds_claimed = ? AND total_raised > 0", false).
		Where("cancelled = ? OR (end_at <= ? AND total_raised < goal)", true, now.UTC()).
		Order("campaign_id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]entities.Campaign, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	publishedAt = publishedAt.UTC()
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &publishedAt,
		}).
		Error
}

func (r *Repository) GetRecord(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	if !row.ExpiresAt.After(now) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:             row.Key,
		RequestHash:     row.RequestHash,
		ResponsePayload: row.ResponsePayload,
		ExpiresAt:       row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) PutRecord(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:             record.Key,
		RequestHash:     record.RequestHash,
		ResponsePayload: record.ResponsePayload,
		ExpiresAt:       record.ExpiresAt.UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&row).
		Error
}

func (r *Repository) adminRow(ctx context.Context) (adminStateModel, error) {
	row := adminStateModel{ID: 1, MaxDurationSeconds: int64((90 * 24 * time.Hour).Seconds())}
	err := r.db.WithContext(ctx).
		Where(adminStateModel{ID: 1}).
		FirstOrCreate(&row).
		Error
	return row, err
}

func (r *Repository) IsPaused(ctx context.Context) (bool, error) {
	row, err := r.adminRow(ctx)
	return row.Paused, err
}

func (r *Repository) MaxDuration(ctx context.Context) (time.Duration, error) {
	row, err := r.adminRow(ctx)
	return time.Duration(row.MaxDurationSeconds) * time.Second, err
}

func (r *Repository) MetadataBaseURL(ctx context.Context) (string, error) {
	row, err := r.adminRow(ctx)
	return row.MetadataBaseURL, err
}

func (r *Repository) SetPaused(ctx context.Context, paused bool) error {
	if _, err := r.adminRow(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&adminStateModel{}).
		Where("id = ?", 1).
		Update("paused", paused).
		Error
}

func (r *Repository) SetMaxDuration(ctx context.Context, max time.Duration) error {
	if _, err := r.adminRow(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&adminStateModel{}).
		Where("id = ?", 1).
		Update("max_duration_seconds", int64(max.Seconds())).
		Error
}

func (r *Repository) SetMetadataBaseURL(ctx context.Context, base string) error {
	if _, err := r.adminRow(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&adminStateModel{}).
		Where("id = ?", 1).
		Update("metadata_base_url", base).
		Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
