package entities

import "time"

// DonationRecord is the cumulative, per-donor ledger position for one
// campaign. Amount is net of refunds: a refund zeroes it rather than
// deleting the row, so "zero balance" always reads as "fully refunded
// or never donated".
type DonationRecord struct {
	CampaignID     int64
	Donor          string
	Amount         int64
	CredentialID   int64
	FirstDonatedAt time.Time
	UpdatedAt      time.Time
}
