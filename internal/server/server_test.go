package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expertline/internal/config"
	"expertline/internal/db"
	"expertline/internal/domain"
	"expertline/internal/draft"
	"expertline/internal/engine"
	"expertline/internal/migrate"
)

const (
	testJWTSecret      = "test-secret"
	testCallbackSecret = "cb-secret"
)

type stubDrafter struct{}

func (stubDrafter) RefineRequest(ctx context.Context, rc draft.RequestContext) (string, error) {
	return "Refined: " + rc.Title, nil
}

func (stubDrafter) DraftPack(ctx context.Context, pc draft.PackContext) (draft.Pack, error) {
	return draft.Pack{Summary: "Session summary.", KeyDecisions: "Decided things."}, nil
}

func (stubDrafter) ExplainMatches(ctx context.Context, rc draft.RequestContext, candidates []draft.Candidate) ([]string, error) {
	out := make([]string, len(candidates))
	for i := range candidates {
		out[i] = "Good fit."
	}
	return out, nil
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), stubDrafter{})
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:             testJWTSecret,
			PaymentCallbackSecret: testCallbackSecret,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/requests", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if errCode(t, data) != "UNAUTHORIZED" {
		t.Fatalf("code = %s", errCode(t, data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/requests", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	if errCode(t, data) != "AUTH_FAILED" {
		t.Fatalf("code = %s", errCode(t, data))
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	clientTok := mintToken(t, "client-1")
	consultantTok := mintToken(t, "consultant-1")

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/profiles/me", map[string]any{
		"headline":          "Postgres specialist",
		"hourly_rate_cents": 20000,
		"skills":            []string{"postgres"},
	}, bearer(consultantTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upsert profile: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"title":       "Migration review",
		"description": "Check our cutover plan.",
		"skills":      []string{"postgres"},
	}, bearer(clientTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", res.StatusCode, string(data))
	}
	var rq domain.Request
	if err := json.Unmarshal(data, &rq); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+rq.ID+"/publish", nil, bearer(clientTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/offers", map[string]any{
		"request_id":          rq.ID,
		"proposed_rate_cents": 20000,
	}, bearer(consultantTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create offer: %d %s", res.StatusCode, string(data))
	}
	var offer domain.Offer
	_ = json.Unmarshal(data, &offer)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/offers/"+offer.ID+"/accept", map[string]any{}, bearer(clientTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var accepted engine.AcceptResult
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatalf("unmarshal accept: %v", err)
	}
	engID := accepted.Engagement.ID

	// workspace locked before payment
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/messages", map[string]any{
		"body": "hello",
	}, bearer(clientTok))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before payment, got %d: %s", res.StatusCode, string(data))
	}
	if errCode(t, data) != "PAYMENT_REQUIRED" {
		t.Fatalf("code = %s", errCode(t, data))
	}

	// callback without the shared secret is rejected
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/payments/callback", map[string]any{
		"booking_id": accepted.Booking.ID,
		"status":     "SUCCEEDED",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 callback, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/payments/callback", map[string]any{
		"booking_id":   accepted.Booking.ID,
		"status":       "SUCCEEDED",
		"provider_ref": "txn-9",
	}, map[string]string{"X-Callback-Secret": testCallbackSecret})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("callback: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/messages", map[string]any{
		"body": "hello",
	}, bearer(clientTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("message after payment: %d %s", res.StatusCode, string(data))
	}

	// completing without a finalized pack is blocked
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/complete", nil, bearer(clientTok))
	if res.StatusCode != http.StatusUnprocessableEntity || errCode(t, data) != "TRANSFER_REQUIRED" {
		t.Fatalf("expected TRANSFER_REQUIRED, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/transfer-pack/generate", nil, bearer(consultantTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate pack: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/transfer-pack/finalize", nil, bearer(consultantTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize pack: %d %s", res.StatusCode, string(data))
	}

	// finalizing twice conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/transfer-pack/finalize", nil, bearer(consultantTok))
	if res.StatusCode != http.StatusConflict || errCode(t, data) != "ALREADY_FINALIZED" {
		t.Fatalf("expected ALREADY_FINALIZED, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/engagements/"+engID+"/complete", nil, bearer(clientTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}
	var done domain.Engagement
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal engagement: %v", err)
	}
	if done.Status != domain.EngagementCompleted {
		t.Fatalf("engagement status = %s", done.Status)
	}
}

func TestSelfOfferConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tok := mintToken(t, "solo")

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/profiles/me", map[string]any{
		"headline":          "Solo",
		"hourly_rate_cents": 100,
	}, bearer(tok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("profile: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"title":       "My own request",
		"description": "Help me.",
	}, bearer(tok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var rq domain.Request
	_ = json.Unmarshal(data, &rq)
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+rq.ID+"/publish", nil, bearer(tok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/offers", map[string]any{
		"request_id":          rq.ID,
		"proposed_rate_cents": 100,
	}, bearer(tok))
	if res.StatusCode != http.StatusConflict || errCode(t, data) != "SELF_OFFER" {
		t.Fatalf("expected SELF_OFFER, got %d %s", res.StatusCode, string(data))
	}
}

func TestAuditVisibleToAdminsOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	userTok := mintToken(t, "user-1")
	adminTok := mintToken(t, "root", "admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"title":       "Audit me",
		"description": "d",
	}, bearer(userTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit", nil, bearer(userTok))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit", nil, bearer(adminTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin audit: %d %s", res.StatusCode, string(data))
	}
	var entries []domain.AuditLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected audit entries")
	}
}
