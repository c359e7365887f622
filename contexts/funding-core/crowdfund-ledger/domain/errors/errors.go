package errors

import "errors"

// Validation.
var (
	ErrInvalidGoal     = errors.New("campaign goal must be positive")
	ErrInvalidDuration = errors.New("campaign duration must be positive")
	ErrDurationTooLong = errors.New("campaign duration exceeds maximum")
	ErrInvalidAmount   = errors.New("donation amount must be positive")
)

// Not found.
var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// State conflict.
var (
	ErrDuplicateContentID     = errors.New("content identifier already used")
	ErrDuplicateDonationID    = errors.New("donation identifier already used")
	ErrCampaignEnded          = errors.New("campaign has ended")
	ErrCampaignNotEnded       = errors.New("campaign has not ended")
	ErrCampaignCancelled      = errors.New("campaign already cancelled")
	ErrFundsAlreadyClaimed    = errors.New("campaign funds already claimed")
	ErrGoalNotReached         = errors.New("funding goal not reached")
	ErrRefundUnavailable      = errors.New("refunds unavailable while funding goal is met")
	ErrNoDonationToRefund     = errors.New("no donation to refund")
	ErrBatchStartOutOfRange   = errors.New("batch start index out of range")
	ErrSettlementInProgress   = errors.New("settlement operation already in progress")
	ErrLedgerPaused           = errors.New("ledger is paused")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyKeyConflict = errors.New("idempotency key conflict")
	ErrRescueFundingAsset     = errors.New("funding asset cannot be rescued")
)

// Authorization.
var (
	ErrNotCampaignOwner = errors.New("caller is not the campaign owner")
	ErrNotLedgerAdmin   = errors.New("caller is not the ledger admin")
)

// Transfer failure. Vault errors are wrapped with this sentinel so the
// transport layer can map them without knowing the vault implementation.
var ErrTransferFailed = errors.New("fund transfer failed")
