package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	crowdfundledger "fundhouse/contexts/funding-core/crowdfund-ledger"
	domainerrors "fundhouse/contexts/funding-core/crowdfund-ledger/domain/errors"
	ledgerhttp "fundhouse/contexts/funding-core/crowdfund-ledger/transport/http"

	_ "fundhouse/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	ledger crowdfundledger.Module
}

func New(ledger crowdfundledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		ledger: ledger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/campaigns", s.handleCreateCampaign)
	s.mux.HandleFunc("GET /v1/campaigns", s.handleListCampaigns)
	s.mux.HandleFunc("GET /v1/campaigns/{campaign_id}", s.handleGetCampaign)
	s.mux.HandleFunc("POST /v1/campaigns/{campaign_id}/donations", s.handleRecordDonation)
	s.mux.HandleFunc("POST /v1/campaigns/{campaign_id}/claim", s.handleClaimFunds)
	s.mux.HandleFunc("POST /v1/campaigns/{campaign_id}/refund", s.handleClaimRefund)
	s.mux.HandleFunc("POST /v1/campaigns/{campaign_id}/cancel", s.handleCancelCampaign)
	s.mux.HandleFunc("POST /v1/campaigns/{campaign_id}/refunds/push", s.handlePushRefunds)
	s.mux.HandleFunc("GET /v1/campaigns/{campaign_id}/refund-stats", s.handleRefundStats)
	s.mux.HandleFunc("GET /v1/campaigns/{campaign_id}/credential", s.handleDonorCredential)
	s.mux.HandleFunc("GET /v1/credentials/{credential_id}", s.handleCredential)
	s.mux.HandleFunc("GET /v1/donors/{address}/summary", s.handleDonorSummary)

	s.mux.HandleFunc("POST /v1/admin/pause", s.handlePause)
	s.mux.HandleFunc("POST /v1/admin/unpause", s.handleUnpause)
	s.mux.HandleFunc("PUT /v1/admin/max-duration", s.handleSetMaxDuration)
	s.mux.HandleFunc("PUT /v1/admin/metadata-base", s.handleSetMetadataBase)
	s.mux.HandleFunc("POST /v1/admin/rescue", s.handleRescueAsset)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.CreateCampaignHandler(
		r.Context(),
		caller,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.ledger.Handler.ListCampaignsHandler(r.Context(), query.Get("owner"), query.Get("state"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.GetCampaignHandler(r.Context(), campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordDonation(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.RecordDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.RecordDonationHandler(r.Context(), caller, campaignID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaimFunds(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ClaimFundsHandler(r.Context(), caller, campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ClaimRefundHandler(r.Context(), caller, campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Handler.CancelCampaignHandler(r.Context(), caller, campaignID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePushRefunds(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.PushRefundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.PushRefundsHandler(r.Context(), campaignID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefundStats(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.RefundStatsHandler(r.Context(), campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDonorCredential(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := resolveCampaignID(w, r)
	if !ok {
		return
	}
	donor := strings.TrimSpace(r.URL.Query().Get("donor"))
	if donor == "" {
		var callerOK bool
		donor, callerOK = resolveCaller(w, r)
		if !callerOK {
			return
		}
	}
	resp, err := s.ledger.Handler.DonorCredentialHandler(r.Context(), campaignID, donor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	credentialID, err := strconv.ParseInt(r.PathValue("credential_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credential_id", "credential_id must be an integer")
		return
	}
	resp, err := s.ledger.Handler.CredentialHandler(r.Context(), credentialID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDonorSummary(w http.ResponseWriter, r *http.Request) {
	donor := strings.TrimSpace(r.PathValue("address"))
	if donor == "" {
		writeError(w, http.StatusBadRequest, "invalid_address", "donor address is required")
		return
	}
	resp, err := s.ledger.Handler.DonorSummaryHandler(r.Context(), donor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Handler.SetPausedHandler(r.Context(), caller, ledgerhttp.SetPausedRequest{Paused: true}); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Handler.SetPausedHandler(r.Context(), caller, ledgerhttp.SetPausedRequest{Paused: false}); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMaxDuration(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.SetMaxDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.MaxDurationSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_max_duration", "max_duration_seconds must be positive")
		return
	}

	if err := s.ledger.Handler.SetMaxDurationHandler(r.Context(), caller, req); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMetadataBase(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.SetMetadataBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	if err := s.ledger.Handler.SetMetadataBaseHandler(r.Context(), caller, req); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRescueAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := resolveCaller(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.RescueAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.RescueAssetHandler(r.Context(), caller, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, "campaign_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidGoal),
		errors.Is(err, domainerrors.ErrInvalidDuration),
		errors.Is(err, domainerrors.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domainerrors.ErrDurationTooLong):
		writeError(w, http.StatusUnprocessableEntity, "duration_too_long", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyKeyRequired):
		writeError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyKeyConflict):
		writeError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrDuplicateContentID):
		writeError(w, http.StatusConflict, "duplicate_content_id", err.Error())
	case errors.Is(err, domainerrors.ErrDuplicateDonationID):
		writeError(w, http.StatusConflict, "duplicate_donation_id", err.Error())
	case errors.Is(err, domainerrors.ErrCampaignEnded),
		errors.Is(err, domainerrors.ErrCampaignNotEnded),
		errors.Is(err, domainerrors.ErrCampaignCancelled),
		errors.Is(err, domainerrors.ErrFundsAlreadyClaimed),
		errors.Is(err, domainerrors.ErrGoalNotReached),
		errors.Is(err, domainerrors.ErrRefundUnavailable),
		errors.Is(err, domainerrors.ErrNoDonationToRefund),
		errors.Is(err, domainerrors.ErrRescueFundingAsset):
		writeError(w, http.StatusConflict, "settlement_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrBatchStartOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, "batch_start_out_of_range", err.Error())
	case errors.Is(err, domainerrors.ErrSettlementInProgress):
		writeError(w, http.StatusConflict, "settlement_in_progress", err.Error())
	case errors.Is(err, domainerrors.ErrNotCampaignOwner),
		errors.Is(err, domainerrors.ErrNotLedgerAdmin):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domainerrors.ErrLedgerPaused):
		writeError(w, http.StatusServiceUnavailable, "ledger_paused", err.Error())
	case errors.Is(err, domainerrors.ErrTransferFailed):
		writeError(w, http.StatusPaymentRequired, "transfer_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get("X-Caller-Address"))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Address header is required")
		return "", false
	}
	return caller, true
}

func resolveCampaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	campaignID, err := strconv.ParseInt(r.PathValue("campaign_id"), 10, 64)
	if err != nil || campaignID < 0 {
		writeError(w, http.StatusBadRequest, "invalid_campaign_id", "campaign_id must be a non-negative integer")
		return 0, false
	}
	return campaignID, true
}
