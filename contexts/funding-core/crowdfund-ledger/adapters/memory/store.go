package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"fundhouse/contexts/funding-core/crowdfund-ledger/domain/entities"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"

	"github.com/google/uuid"
)

type credentialKey struct {
	campaignID int64
	donor      string
}

type outboxRow struct {
	message     ports.OutboxMessage
	published   bool
	publishedAt time.Time
}

// Store is the in-memory ledger used by tests and local development.
// Atomically snapshots all mutable state up front and restores it when
// the scope fails, so a failed transfer leaves no ledger effect.
type Store struct {
	mu sync.RWMutex

	campaigns       map[int64]entities.Campaign
	donations       map[int64]map[string]entities.DonationRecord
	donorLists      map[int64][]string
	donorSets       map[int64]map[string]struct{}
	credentials     map[int64]entities.Credential
	credentialIndex map[credentialKey]int64
	contentIDs      map[string]struct{}
	donationIDs     map[string]struct{}

	nextCampaignID   int64
	nextCredentialID int64

	outbox      []outboxRow
	idempotency map[string]ports.IdempotencyRecord

	paused          bool
	maxDuration     time.Duration
	metadataBaseURL string
}

func NewStore() *Store {
	return &Store{
		campaigns:       make(map[int64]entities.Campaign),
		donations:       make(map[int64]map[string]entities.DonationRecord),
		donorLists:      make(map[int64][]string),
		donorSets:       make(map[int64]map[string]struct{}),
		credentials:     make(map[int64]entities.Credential),
		credentialIndex: make(map[credentialKey]int64),
		contentIDs:      make(map[string]struct{}),
		donationIDs:     make(map[string]struct{}),
		// Campaign ids count from 0, credential ids from 1 with 0
		// reserved as "no credential".
		nextCampaignID:   0,
		nextCredentialID: 1,
		idempotency:      make(map[string]ports.IdempotencyRecord),
		maxDuration:      90 * 24 * time.Hour,
	}
}

type snapshot struct {
	campaigns        map[int64]entities.Campaign
	donations        map[int64]map[string]entities.DonationRecord
	donorLists       map[int64][]string
	donorSets        map[int64]map[string]struct{}
	credentials      map[int64]entities.Credential
	credentialIndex  map[credentialKey]int64
	contentIDs       map[string]struct{}
	donationIDs      map[string]struct{}
	nextCampaignID   int64
	nextCredentialID int64
	outboxLen        int
}

func (s *Store) capture() snapshot {
	snap := snapshot{
		campaigns:        make(map[int64]entities.Campaign, len(s.campaigns)),
		donations:        make(map[int64]map[string]entities.DonationRecord, len(s.donations)),
		donorLists:       make(map[int64][]string, len(s.donorLists)),
		donorSets:        make(map[int64]map[string]struct{}, len(s.donorSets)),
		credentials:      make(map[int64]entities.Credential, len(s.credentials)),
		credentialIndex:  make(map[credentialKey]int64, len(s.credentialIndex)),
		contentIDs:       make(map[string]struct{}, len(s.contentIDs)),
		donationIDs:      make(map[string]struct{}, len(s.donationIDs)),
		nextCampaignID:   s.nextCampaignID,
		nextCredentialID: s.nextCredentialID,
		outboxLen:        len(s.outbox),
	}
	for id, campaign := range s.campaigns {
		snap.campaigns[id] = campaign
	}
	for id, records := range s.donations {
		inner := make(map[string]entities.DonationRecord, len(records))
		for donor, record := range records {
			inner[donor] = record
		}
		snap.donations[id] = inner
	}
	for id, list := range s.donorLists {
		snap.donorLists[id] = append([]string(nil), list...)
	}
	for id, set := range s.donorSets {
		inner := make(map[string]struct{}, len(set))
		for donor := range set {
			inner[donor] = struct{}{}
		}
		snap.donorSets[id] = inner
	}
	for id, credential := range s.credentials {
		snap.credentials[id] = credential
	}
	for key, id := range s.credentialIndex {
		snap.credentialIndex[key] = id
	}
	for hash := range s.contentIDs {
		snap.contentIDs[hash] = struct{}{}
	}
	for hash := range s.donationIDs {
		snap.donationIDs[hash] = struct{}{}
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.campaigns = snap.campaigns
	s.donations = snap.donations
	s.donorLists = snap.donorLists
	s.donorSets = snap.donorSets
	s.credentials = snap.credentials
	s.credentialIndex = snap.credentialIndex
	s.contentIDs = snap.contentIDs
	s.donationIDs = snap.donationIDs
	s.nextCampaignID = snap.nextCampaignID
	s.nextCredentialID = snap.nextCredentialID
	s.outbox = s.outbox[:snap.outboxLen]
}

func (s *Store) Atomically(_ context.Context, fn func(tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.capture()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memTx struct {
	store *Store
}

func (t *memTx) NextCampaignID() (int64, error) {
	id := t.store.nextCampaignID
	t.store.nextCampaignID++
	return id, nil
}

func (t *memTx) GetCampaign(campaignID int64) (entities.Campaign, error) {
	campaign, exists := t.store.campaigns[campaignID]
	if !exists {
		return entities.Campaign{}, domainerrors.ErrCampaignNotFound
	}
	return campaign, nil
}

func (t *memTx) PutCampaign(campaign entities.Campaign) error {
	t.store.campaigns[campaign.CampaignID] = campaign
	return nil
}

func (t *memTx) GetDonation(campaignID int64, donor string) (entities.DonationRecord, bool, error) {
	records, exists := t.store.donations[campaignID]
	if !exists {
		return entities.DonationRecord{}, false, nil
	}
	record, exists := records[donor]
	return record, exists, nil
}

func (t *memTx) PutDonation(record entities.DonationRecord) error {
	records, exists := t.store.donations[record.CampaignID]
	if !exists {
		records = make(map[string]entities.DonationRecord)
		t.store.donations[record.CampaignID] = records
	}
	records[record.Donor] = record
	return nil
}

func (t *memTx) AppendDonor(campaignID int64, donor string) error {
	set, exists := t.store.donorSets[campaignID]
	if !exists {
		set = make(map[string]struct{})
		t.store.donorSets[campaignID] = set
	}
	if _, member := set[donor]; member {
		return nil
	}
	set[donor] = struct{}{}
	t.store.donorLists[campaignID] = append(t.store.donorLists[campaignID], donor)
	return nil
}

func (t *memTx) DonorCount(campaignID int64) (int, error) {
	return len(t.store.donorLists[campaignID]), nil
}

func (t *memTx) DonorsInRange(campaignID int64, start, end int) ([]string, error) {
	list := t.store.donorLists[campaignID]
	if start < 0 || start > len(list) {
		return nil, domainerrors.ErrBatchStartOutOfRange
	}
	if end > len(list) {
		end = len(list)
	}
	if end <= start {
		return nil, nil
	}
	return append([]string(nil), list[start:end]...), nil
}

func (t *memTx) CredentialIDFor(campaignID int64, donor string) (int64, error) {
	return t.store.credentialIndex[credentialKey{campaignID: campaignID, donor: donor}], nil
}

func (t *memTx) IssueCredential(credential entities.Credential) (int64, error) {
	credential.CredentialID = t.store.nextCredentialID
	t.store.nextCredentialID++
	t.store.credentials[credential.CredentialID] = credential
	t.store.credentialIndex[credentialKey{campaignID: credential.CampaignID, donor: credential.Donor}] = credential.CredentialID
	return credential.CredentialID, nil
}

func (t *memTx) RegisterContentID(hash string) error {
	if _, used := t.store.contentIDs[hash]; used {
		return domainerrors.ErrDuplicateContentID
	}
	t.store.contentIDs[hash] = struct{}{}
	return nil
}

func (t *memTx) RegisterDonationID(hash string) error {
	if _, used := t.store.donationIDs[hash]; used {
		return domainerrors.ErrDuplicateDonationID
	}
	t.store.donationIDs[hash] = struct{}{}
	return nil
}

func (t *memTx) AppendOutbox(envelope ports.EventEnvelope) error {
	payload, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}
	t.store.outbox = append(t.store.outbox, outboxRow{
		message: ports.OutboxMessage{
			OutboxID:     uuid.NewString(),
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt,
		},
	})
	return nil
}

func (s *Store) GetCampaign(_ context.Context, campaignID int64) (entities.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, exists := s.campaigns[campaignID]
	if !exists {
		return entities.Campaign{}, domainerrors.ErrCampaignNotFound
	}
	return campaign, nil
}

func (s *Store) ListCampaigns(_ context.Context, filter ports.CampaignFilter) ([]entities.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner := strings.TrimSpace(filter.Owner)
	items := make([]entities.Campaign, 0, len(s.campaigns))
	for _, campaign := range s.campaigns {
		if owner != "" && campaign.Owner != owner {
			continue
		}
		items = append(items, campaign)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CampaignID < items[j].CampaignID
	})
	return items, nil
}

func (s *Store) GetDonation(_ context.Context, campaignID int64, donor string) (entities.DonationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, exists := s.donations[campaignID]
	if !exists {
		return entities.DonationRecord{}, false, nil
	}
	record, exists := records[strings.TrimSpace(donor)]
	return record, exists, nil
}

func (s *Store) ListDonationsByDonor(_ context.Context, donor string) ([]entities.DonationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	donor = strings.TrimSpace(donor)
	items := make([]entities.DonationRecord, 0)
	for _, records := range s.donations {
		if record, exists := records[donor]; exists {
			items = append(items, record)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CampaignID < items[j].CampaignID
	})
	return items, nil
}

func (s *Store) DonorCount(_ context.Context, campaignID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.donorLists[campaignID]), nil
}

func (s *Store) PendingRefunds(_ context.Context, campaignID int64) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var amount int64
	for _, record := range s.donations[campaignID] {
		if record.Amount > 0 {
			count++
			amount += record.Amount
		}
	}
	return count, amount, nil
}

func (s *Store) CredentialIDFor(_ context.Context, campaignID int64, donor string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.credentialIndex[credentialKey{campaignID: campaignID, donor: strings.TrimSpace(donor)}], nil
}

func (s *Store) GetCredential(_ context.Context, credentialID int64) (entities.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, exists := s.credentials[credentialID]
	if !exists {
		return entities.Credential{}, domainerrors.ErrCredentialNotFound
	}
	return credential, nil
}

func (s *Store) ListRefundableCampaigns(_ context.Context, now time.Time, limit int) ([]entities.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Campaign, 0)
	for _, campaign := range s.campaigns {
		if campaign.TotalRaised == 0 {
			continue
		}
		if !campaign.RefundsAvailable(now) {
			continue
		}
		items = append(items, campaign)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CampaignID < items[j].CampaignID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.OutboxMessage, 0, limit)
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].message.OutboxID == outboxID {
			s.outbox[i].published = true
			s.outbox[i].publishedAt = publishedAt
			return nil
		}
	}
	return nil
}

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.idempotency[record.Key]; exists && existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) IsPaused(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.paused, nil
}

func (s *Store) MaxDuration(_ context.Context) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.maxDuration, nil
}

func (s *Store) MetadataBaseURL(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.metadataBaseURL, nil
}

func (s *Store) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = paused
	return nil
}

func (s *Store) SetMaxDuration(_ context.Context, max time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxDuration = max
	return nil
}

func (s *Store) SetMetadataBaseURL(_ context.Context, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadataBaseURL = base
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func marshalEnvelope(envelope ports.EventEnvelope) ([]byte, error) {
	return json.Marshal(envelope)
}
