package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateCampaignRequest struct {
	Goal            int64  `json:"goal"`
	DurationSeconds int64  `json:"duration_seconds"`
	ContentIDHash   string `json:"content_id_hash"`
}

type CreateCampaignResponse struct {
	Campaign CampaignDTO `json:"campaign"`
	Replayed bool        `json:"replayed"`
}

type CampaignDTO struct {
	CampaignID    int64  `json:"campaign_id"`
	Owner         string `json:"owner"`
	Goal          int64  `json:"goal"`
	TotalRaised   int64  `json:"total_raised"`
	EndAt         string `json:"end_at"`
	ContentIDHash string `json:"content_id_hash,omitempty"`
	FundsClaimed  bool   `json:"funds_claimed"`
	Cancelled     bool   `json:"cancelled"`
	State         string `json:"state"`
	DonorCount    int    `json:"donor_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ListCampaignsResponse struct {
	Items []CampaignDTO `json:"items"`
}

type GetCampaignResponse struct {
	Campaign CampaignDTO `json:"campaign"`
}

type RecordDonationRequest struct {
	Amount         int64  `json:"amount"`
	DonationIDHash string `json:"donation_id_hash"`
}

type RecordDonationResponse struct {
	CreditedAmount int64 `json:"credited_amount"`
	CredentialID   int64 `json:"credential_id"`
	FirstDonation  bool  `json:"first_donation"`
}

type ClaimFundsResponse struct {
	Amount int64 `json:"amount"`
}

type ClaimRefundResponse struct {
	Amount int64 `json:"amount"`
}

type PushRefundsRequest struct {
	StartIndex int `json:"start_index"`
	BatchSize  int `json:"batch_size"`
}

type PushRefundsResponse struct {
	RefundedCount  int   `json:"refunded_count"`
	RefundedAmount int64 `json:"refunded_amount"`
	NextIndex      int   `json:"next_index"`
	DonorCount     int   `json:"donor_count"`
}

type RefundStatsResponse struct {
	CampaignID         int64 `json:"campaign_id"`
	DonorCount         int   `json:"donor_count"`
	PendingRefundCount int   `json:"pending_refund_count"`
	PendingAmount      int64 `json:"pending_amount"`
	RefundsOpen        bool  `json:"refunds_open"`
}

type DonorCredentialResponse struct {
	CampaignID   int64 `json:"campaign_id"`
	CredentialID int64 `json:"credential_id"`
}

type CredentialDescriptorResponse struct {
	CredentialID int64  `json:"credential_id"`
	CampaignID   int64  `json:"campaign_id"`
	Donor        string `json:"donor"`
	TokenURI     string `json:"token_uri,omitempty"`
}

type DonorCampaignSummaryDTO struct {
	CampaignID   int64 `json:"campaign_id"`
	Amount       int64 `json:"amount"`
	CredentialID int64 `json:"credential_id"`
	Goal         int64 `json:"goal"`
	TotalRaised  int64 `json:"total_raised"`
	Active       bool  `json:"active"`
	Ended        bool  `json:"ended"`
	GoalMet      bool  `json:"goal_met"`
	Cancelled    bool  `json:"cancelled"`
	FundsClaimed bool  `json:"funds_claimed"`
}

type DonorSummaryResponse struct {
	Donor string                    `json:"donor"`
	Items []DonorCampaignSummaryDTO `json:"items"`
}

type SetPausedRequest struct {
	Paused bool `json:"paused"`
}

type SetMaxDurationRequest struct {
	MaxDurationSeconds int64 `json:"max_duration_seconds"`
}

type SetMetadataBaseRequest struct {
	BaseURL string `json:"base_url"`
}

type RescueAssetRequest struct {
	Asset string `json:"asset"`
	To    string `json:"to"`
}

type RescueAssetResponse struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}
