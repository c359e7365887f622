package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	crowdfundledger "fundhouse/contexts/funding-core/crowdfund-ledger"
	ledgerhttp "fundhouse/contexts/funding-core/crowdfund-ledger/transport/http"
)

func newTestServer(t *testing.T) (*Server, crowdfundledger.Module) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module := crowdfundledger.NewInMemoryModule("ledger-admin", "FUND", logger)
	return New(module, logger, ":0"), module
}

func doJSON(t *testing.T, server *Server, method, path, caller, idempotencyKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set("X-Caller-Address", caller)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateCampaignRoute(t *testing.T) {
	server, _ := newTestServer(t)

	// Caller identity is mandatory.
	rec := doJSON(t, server, http.MethodPost, "/v1/campaigns", "", "k1", `{"goal":100,"duration_seconds":3600}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k1", `{"goal":100,"duration_seconds":3600}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created ledgerhttp.CreateCampaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Campaign.CampaignID != 0 || created.Campaign.Owner != "alice" {
		t.Fatalf("unexpected campaign %+v", created.Campaign)
	}

	// Replay of the same request is a 200, not a fresh 201.
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k1", `{"goal":100,"duration_seconds":3600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}

	// Missing idempotency key maps to 400.
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "", `{"goal":100,"duration_seconds":3600}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", rec.Code)
	}

	// Over-long duration maps to 422.
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k2", `{"goal":100,"duration_seconds":86400000}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for over-long duration, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k3", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
}

func TestDonationRouteAndErrorMapping(t *testing.T) {
	server, module := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k1", `{"goal":1000,"duration_seconds":3600}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	// No vault balance: the transfer fails and maps to 402.
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/0/donations", "bob", "", `{"amount":50}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for failed pull, got %d: %s", rec.Code, rec.Body.String())
	}

	module.Vault.MintFunding("bob", 50)
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/0/donations", "bob", "", `{"amount":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var donation ledgerhttp.RecordDonationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &donation); err != nil {
		t.Fatalf("decode donation: %v", err)
	}
	if donation.CredentialID != 1 || !donation.FirstDonation {
		t.Fatalf("unexpected donation response %+v", donation)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/999/donations", "bob", "", `{"amount":50}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown campaign, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/abc/donations", "bob", "", `{"amount":50}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/0/refund", "bob", "", ``)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for refund on open campaign, got %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/admin/pause", "mallory", "", ``)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/admin/pause", "ledger-admin", "", ``)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	// Paused ledger rejects new campaigns with 503.
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k1", `{"goal":100,"duration_seconds":3600}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/admin/unpause", "ledger-admin", "", ``)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPut, "/v1/admin/max-duration", "ledger-admin", "", `{"max_duration_seconds":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-positive cap, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPut, "/v1/admin/max-duration", "ledger-admin", "", `{"max_duration_seconds":60}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k2", `{"goal":100,"duration_seconds":120}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 under the new cap, got %d", rec.Code)
	}
}

func TestQueryRoutes(t *testing.T) {
	server, module := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/campaigns", "alice", "k1", `{"goal":1000,"duration_seconds":3600}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	module.Vault.MintFunding("bob", 100)
	rec = doJSON(t, server, http.MethodPost, "/v1/campaigns/0/donations", "bob", "", `{"amount":100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("donate: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/campaigns/0", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("get campaign: %d", rec.Code)
	}
	var got ledgerhttp.GetCampaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode campaign: %v", err)
	}
	if got.Campaign.TotalRaised != 100 || got.Campaign.DonorCount != 1 || got.Campaign.State != "open" {
		t.Fatalf("unexpected campaign view %+v", got.Campaign)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/campaigns/0/credential?donor=bob", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("donor credential: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/credentials/1", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("credential descriptor: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/donors/bob/summary", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("donor summary: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/campaigns/0/refund-stats", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("refund stats: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/campaigns?owner=alice", "", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("list campaigns: %d", rec.Code)
	}
}
