package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskwatch/internal/config"
	"github.com/mbd888/riskwatch/internal/realtime"
	"github.com/mbd888/riskwatch/internal/risk"
	"github.com/mbd888/riskwatch/internal/scoring"
	"github.com/mbd888/riskwatch/internal/transaction"
)

// stubScorer returns a fixed score without calling any provider. A fresh
// result is produced per call because escalation mutates it in place.
type stubScorer struct {
	score  float64
	action risk.Action
	calls  int
}

func (s *stubScorer) Score(ctx context.Context, tx *transaction.Transaction) *risk.Result {
	s.calls++
	return &risk.Result{
		RiskScore:         s.score,
		RiskFactors:       []string{"Stubbed factor"},
		Reasoning:         "stubbed",
		RecommendedAction: s.action,
	}
}

var _ scoring.Scorer = (*stubScorer)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		LogLevel:       "error",
		GroqAPIURL:     config.DefaultGroqAPIURL,
		GroqModel:      config.DefaultGroqModel,
		AuthUsername:   "admin",
		AuthPassword:   "secret123",
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newTestServer(t *testing.T, sc scoring.Scorer) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(testConfig(), WithLogger(logger), WithScorer(sc))
	require.NoError(t, err)
	return srv
}

func authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret123"))
}

func txBody(customerCountry, paymentCountry string, amount float64) string {
	return fmt.Sprintf(`{
		"transaction_id": "txn_e2e_001",
		"timestamp": "2026-08-29T10:00:00Z",
		"amount": %g,
		"currency": "USD",
		"customer": {"id": "cust_001", "country": %q, "ip_address": "203.0.113.10"},
		"payment_method": {"type": "credit_card", "last_four": "4242", "country_of_issue": %q},
		"merchant": {"id": "merch_001", "name": "Acme Supplies", "category": "retail"}
	}`, amount, customerCountry, paymentCountry)
}

func doRequest(srv *Server, method, path, body, contentType, auth string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestWebhook_Unauthorized(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	tests := []struct {
		name string
		auth string
	}{
		{"no credential", ""},
		{"bearer scheme", "Bearer sometoken"},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:wrong"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, "POST", "/webhook", txBody("US", "US", 50), "application/json", tt.auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
		})
	}
}

func TestWebhook_RequiresJSON(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	w := doRequest(srv, "POST", "/webhook", "transaction_id=1", "application/x-www-form-urlencoded", authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Request must be JSON"}`, w.Body.String())
}

func TestWebhook_InvalidTransaction(t *testing.T) {
	sc := &stubScorer{score: 0.2, action: risk.ActionAllow}
	srv := newTestServer(t, sc)

	body := `{"transaction_id": "txn_1", "timestamp": "2026-08-29T10:00:00Z"}`
	w := doRequest(srv, "POST", "/webhook", body, "application/json", authHeader())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid transaction data: Missing required field: amount")
	assert.Zero(t, sc.calls, "scorer must not run for invalid input")

	// Validation failures never reach history
	w = doRequest(srv, "GET", "/admin/all-transactions", "", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transactions":[]}`, w.Body.String())
}

func TestWebhook_LowRisk(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	w := doRequest(srv, "POST", "/webhook", txBody("US", "US", 50), "application/json", authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "txn_e2e_001", resp["transaction_id"])
	assert.Equal(t, "processed", resp["status"])
	assert.NotContains(t, resp, "admin_notification_sent")
	assert.NotContains(t, resp, "alert_type")

	analysis := resp["risk_analysis"].(map[string]interface{})
	assert.Equal(t, 0.2, analysis["risk_score"])
	assert.Equal(t, "allow", analysis["recommended_action"])

	ts, ok := resp["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)

	// One record, zero notifications
	w = doRequest(srv, "GET", "/admin/all-transactions", "", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	var txs struct {
		Transactions []map[string]interface{} `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txs))
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, "txn_e2e_001", txs.Transactions[0]["transaction_id"])

	w = doRequest(srv, "GET", "/admin/notifications", "", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notifications":[]}`, w.Body.String())
}

func TestWebhook_HighRiskCountryEscalates(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.85, action: risk.ActionReview})

	w := doRequest(srv, "POST", "/webhook", txBody("US", "RU", 5000), "application/json", authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["admin_notification_sent"])
	assert.Equal(t, "high_risk_transaction", resp["alert_type"])

	analysis := resp["risk_analysis"].(map[string]interface{})
	assert.Equal(t, "block", analysis["recommended_action"])
	factors := analysis["risk_factors"].([]interface{})
	require.Len(t, factors, 2)
	assert.Equal(t, "Transaction involves high-risk country: RU", factors[1])

	// Notification is stored and denormalized
	w = doRequest(srv, "GET", "/admin/notifications", "", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	var ns struct {
		Notifications []map[string]interface{} `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ns))
	require.Len(t, ns.Notifications, 1)
	n := ns.Notifications[0]
	assert.Equal(t, "txn_e2e_001", n["transaction_id"])
	assert.Equal(t, "flagged", n["status"])
	assert.Equal(t, "high_risk_transaction", n["alert_type"])
	assert.Equal(t, true, n["admin_notification_sent"])
	assert.Equal(t, 5000.0, n["amount"])
	assert.NotEmpty(t, n["id"])
	assert.NotNil(t, n["transaction_details"])
}

func TestWebhook_ModeratelyHighScoreNotifiesWithoutOverride(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.75, action: risk.ActionReview})

	w := doRequest(srv, "POST", "/webhook", txBody("US", "US", 900), "application/json", authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["admin_notification_sent"])

	analysis := resp["risk_analysis"].(map[string]interface{})
	assert.Equal(t, 0.75, analysis["risk_score"])
	assert.Equal(t, "review", analysis["recommended_action"])
}

func TestAdminReads_Idempotent(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.85, action: risk.ActionReview})

	doRequest(srv, "POST", "/webhook", txBody("RU", "US", 100), "application/json", authHeader())
	doRequest(srv, "POST", "/webhook", txBody("US", "US", 200), "application/json", authHeader())

	first := doRequest(srv, "GET", "/admin/all-transactions", "", "", authHeader())
	second := doRequest(srv, "GET", "/admin/all-transactions", "", "", authHeader())
	assert.Equal(t, first.Body.String(), second.Body.String())

	firstN := doRequest(srv, "GET", "/admin/notifications", "", "", authHeader())
	secondN := doRequest(srv, "GET", "/admin/notifications", "", "", authHeader())
	assert.Equal(t, firstN.Body.String(), secondN.Body.String())
}

func TestAdminReads_RequireAuth(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	for _, path := range []string{"/admin/notifications", "/admin/all-transactions"} {
		w := doRequest(srv, "GET", path, "", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	w := doRequest(srv, "GET", "/nope", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp struct {
		Error              string   `json:"error"`
		AvailableEndpoints []string `json:"available_endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Endpoint not found", resp.Error)
	assert.Contains(t, resp.AvailableEndpoints, "POST /webhook")
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	w := doRequest(srv, "GET", "/health/live", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Readiness flips only once Run has started
	w = doRequest(srv, "GET", "/health/ready", "", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	srv.ready.Store(true)
	w = doRequest(srv, "GET", "/health/ready", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.2, action: risk.ActionAllow})

	w := doRequest(srv, "GET", "/metrics", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestWebhook_BroadcastsToWebSocketClients(t *testing.T) {
	srv := newTestServer(t, &stubScorer{score: 0.85, action: risk.ActionReview})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Hub().Run(ctx)
	time.Sleep(50 * time.Millisecond)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event realtime.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, realtime.EventConnectionEstablished, event.Type)

	// Flagged transaction reaches the subscriber
	req, err := http.NewRequest("POST", ts.URL+"/webhook", strings.NewReader(txBody("RU", "US", 5000)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, realtime.EventNewTransaction, event.Type)

	payload, ok := event.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "txn_e2e_001", payload["transaction_id"])
}
