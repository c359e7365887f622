package entities

import "time"

// Credential is the proof-of-contribution token minted once per
// (campaign, donor) pair on the donor's first donation. Credential ids
// are assigned sequentially starting at 1; 0 is reserved to mean "no
// credential". Credentials are never revoked or reassigned.
type Credential struct {
	CredentialID int64
	CampaignID   int64
	Donor        string
	IssuedAt     time.Time
}

// CredentialDescriptor is the resolved metadata view of a credential,
// keyed by its owning campaign.
type CredentialDescriptor struct {
	CredentialID int64
	CampaignID   int64
	Donor        string
	TokenURI     string
}
