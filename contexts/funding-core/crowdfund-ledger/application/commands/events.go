package commands

import (
	"encoding/json"
	"strconv"
	"time"

	"fundhouse/contexts/funding-core/crowdfund-ledger/ports"
)

func newLedgerEnvelope(
	eventID string,
	eventType string,
	campaignID int64,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "crowdfund-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "campaign_id",
		PartitionKey:     strconv.FormatInt(campaignID, 10),
		Data:             payload,
	}, nil
}
