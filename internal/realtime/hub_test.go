package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbd888/riskwatch/internal/history"
	"github.com/mbd888/riskwatch/internal/risk"
)

func testHub() *Hub {
	return NewHub(slog.Default(), nil)
}

func notification(score float64, currency string) *history.Notification {
	return &history.Notification{
		ID:            "ntf_test",
		TransactionID: "txn_test",
		Amount:        100,
		Currency:      currency,
		AlertType:     history.AlertTypeHighRisk,
		Status:        history.StatusFlagged,
		RiskAnalysis: &risk.Result{
			RiskScore:         score,
			RiskFactors:       []string{"test"},
			Reasoning:         "test",
			RecommendedAction: risk.ActionReview,
		},
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventNewTransaction, Data: notification(0.9, "USD")}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_MinRiskScoreFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{MinRiskScore: 0.9}}

	high := &Event{Type: EventNewTransaction, Data: notification(0.95, "USD")}
	low := &Event{Type: EventNewTransaction, Data: notification(0.75, "USD")}

	if !h.shouldSend(client, high) {
		t.Error("Should receive high-score notification")
	}
	if h.shouldSend(client, low) {
		t.Error("Should NOT receive notification below min score")
	}
}

func TestShouldSend_CurrencyFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Currencies: []string{"USD", "EUR"}}}

	usd := &Event{Type: EventNewTransaction, Data: notification(0.8, "USD")}
	gbp := &Event{Type: EventNewTransaction, Data: notification(0.8, "GBP")}

	if !h.shouldSend(client, usd) {
		t.Error("Should receive USD notification")
	}
	if h.shouldSend(client, gbp) {
		t.Error("Should NOT receive GBP notification")
	}
}

func TestShouldSend_MissingRiskAnalysis(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{MinRiskScore: 0.5}}

	n := notification(0.9, "USD")
	n.RiskAnalysis = nil
	event := &Event{Type: EventNewTransaction, Data: n}

	if h.shouldSend(client, event) {
		t.Error("Notification without analysis should not pass a score filter")
	}
}

func TestShouldSend_NonNotificationData(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{MinRiskScore: 0.9}}

	// Connection acks and other non-notification events always pass.
	event := &Event{Type: EventConnectionEstablished, Data: map[string]string{"status": "connected"}}
	if !h.shouldSend(client, event) {
		t.Error("Non-notification events should pass through filters")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.BroadcastNotification(notification(0.9, "USD"))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastNotification(notification(0.9, "USD"))

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if event.Type != EventNewTransaction {
			t.Errorf("event type = %s, want new_transaction", event.Type)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants scores at or above 0.9
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{MinRiskScore: 0.9},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Below the filter threshold: should be dropped
	h.BroadcastNotification(notification(0.75, "USD"))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive low-score notification")
	default:
		// Good - filtered out
	}

	h.BroadcastNotification(notification(0.95, "USD"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive high-score notification")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

// ---------------------------------------------------------------------------
// End-to-end WebSocket tests
// ---------------------------------------------------------------------------

func TestHub_WebSocketConnectionAck(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}

	var event Event
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if event.Type != EventConnectionEstablished {
		t.Errorf("first event = %s, want connection_established", event.Type)
	}

	// A notification broadcast after join is delivered.
	h.BroadcastNotification(notification(0.9, "USD"))

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if event.Type != EventNewTransaction {
		t.Errorf("event type = %s, want new_transaction", event.Type)
	}
}
