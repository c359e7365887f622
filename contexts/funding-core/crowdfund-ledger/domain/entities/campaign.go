package entities

import (
	"strings"
	"time"
)

// SettlementState is the derived lifecycle position of a campaign.
// Claimed and cancelled are sticky flags on the record; the rest is a
// function of the clock and the raised total.
type SettlementState string

const (
	SettlementStateOpen       SettlementState = "open"
	SettlementStateResolvable SettlementState = "resolvable"
	SettlementStateClaimed    SettlementState = "claimed"
	SettlementStateRefunding  SettlementState = "refunding"
	SettlementStateCancelled  SettlementState = "cancelled"
)

// Campaign is the authoritative fundraising record. Amounts are integer
// base units of the ledger's funding asset. Records are never deleted;
// terminal campaigns stay queryable.
type Campaign struct {
	CampaignID    int64
	Owner         string
	Goal          int64
	TotalRaised   int64
	EndAt         time.Time
	ContentIDHash string
	FundsClaimed  bool
	Cancelled     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// State derives the settlement state at the given instant. FundsClaimed
// and Cancelled are mutually exclusive by construction, so precedence
// between them never matters in practice.
func (c Campaign) State(now time.Time) SettlementState {
	switch {
	case c.Cancelled:
		return SettlementStateCancelled
	case c.FundsClaimed:
		return SettlementStateClaimed
	case now.UTC().Before(c.EndAt):
		return SettlementStateOpen
	case c.TotalRaised >= c.Goal:
		return SettlementStateResolvable
	default:
		return SettlementStateRefunding
	}
}

func (c Campaign) Ended(now time.Time) bool {
	return !now.UTC().Before(c.EndAt)
}

func (c Campaign) GoalMet() bool {
	return c.TotalRaised >= c.Goal
}

// AcceptsDonations reports whether a donation may still be recorded:
// strictly before the end timestamp and not cancelled.
func (c Campaign) AcceptsDonations(now time.Time) bool {
	return !c.Cancelled && now.UTC().Before(c.EndAt)
}

// RefundsAvailable reports whether the donor-refund path is open:
// never after an owner claim, and either cancelled (immediately) or
// ended with the goal missed.
func (c Campaign) RefundsAvailable(now time.Time) bool {
	if c.FundsClaimed {
		return false
	}
	return c.Cancelled || (c.Ended(now) && !c.GoalMet())
}

// NormalizeIdentifier canonicalizes an externally supplied identifier
// hash. The empty string and the all-zero digest both mean "no
// identifier supplied" and are exempt from deduplication.
func NormalizeIdentifier(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	if strings.Trim(value, "0") == "" {
		return ""
	}
	return value
}
