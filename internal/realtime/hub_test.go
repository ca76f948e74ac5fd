package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(hub *Hub, dealershipID int64) *Client {
	return &Client{
		hub:          hub,
		send:         make(chan []byte, sendBuffer),
		dealershipID: dealershipID,
		done:         make(chan struct{}),
	}
}

func TestBroadcast_TenantScoped(t *testing.T) {
	hub := NewHub(testLogger())
	a := testClient(hub, 1)
	b := testClient(hub, 2)
	hub.register(a)
	hub.register(b)

	err := hub.Broadcast(Notification{
		Type:         TypeNewLead,
		DealershipID: 1,
		Title:        "New lead",
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-a.send:
		var n Notification
		if err := json.Unmarshal(msg, &n); err != nil {
			t.Fatal(err)
		}
		if n.DealershipID != 1 || n.Type != TypeNewLead {
			t.Errorf("got %+v", n)
		}
		if n.Timestamp.IsZero() {
			t.Error("timestamp must be stamped on broadcast")
		}
	default:
		t.Fatal("tenant 1 client received nothing")
	}

	select {
	case msg := <-b.send:
		t.Fatalf("tenant 2 client must not receive tenant 1 traffic, got %s", msg)
	default:
	}
}

func TestNotification_WireFrame(t *testing.T) {
	b, err := json.Marshal(Notification{
		Type:         TypeSystem,
		DealershipID: 4,
		Title:        "Heads up",
		Message:      "scrape finished",
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	var frame map[string]any
	if err := json.Unmarshal(b, &frame); err != nil {
		t.Fatal(err)
	}
	if frame["message"] != "scrape finished" {
		t.Errorf(`frame["message"] = %v, want the notification text`, frame["message"])
	}
	if _, ok := frame["body"]; ok {
		t.Error("frame must not carry a body key")
	}
	for _, key := range []string{"type", "title", "timestamp"} {
		if _, ok := frame[key]; !ok {
			t.Errorf("frame missing %q", key)
		}
	}
}

func TestBroadcast_InvalidNotificationRejected(t *testing.T) {
	hub := NewHub(testLogger())
	if err := hub.Broadcast(Notification{Type: "bogus", DealershipID: 1}); err == nil {
		t.Error("unknown notification type must be rejected")
	}
	if err := hub.Broadcast(Notification{Type: TypeNewLead, DealershipID: 0}); err == nil {
		t.Error("missing dealership must be rejected")
	}
}

func TestRegisterUnregister_Count(t *testing.T) {
	hub := NewHub(testLogger())
	a := testClient(hub, 1)
	b := testClient(hub, 1)
	hub.register(a)
	hub.register(b)
	if n := hub.ClientCount(1); n != 2 {
		t.Fatalf("ClientCount = %d, want 2", n)
	}
	hub.unregister(a)
	if n := hub.ClientCount(1); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}
	// Unregistering twice is harmless.
	hub.unregister(a)
	if n := hub.ClientCount(1); n != 1 {
		t.Fatalf("ClientCount = %d after double unregister, want 1", n)
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	const secret = "ws-test-secret"
	hub := NewHub(testLogger())
	h := NewHandler(hub, secret, testLogger())

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	did := int64(3)
	u := &store.User{ID: 9, Email: "mgr@dealer.test", Role: store.RoleManager, DealershipID: &did}
	token, err := auth.IssueJWT(secret, u, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Registration races the dial return; wait for the hub to see it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount(3) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount(3) != 1 {
		t.Fatal("client never registered")
	}

	if err := hub.Broadcast(Notification{Type: TypeChatMessage, DealershipID: 3, Title: "hi"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var n Notification
	if err := json.Unmarshal(msg, &n); err != nil {
		t.Fatal(err)
	}
	if n.Type != TypeChatMessage || n.DealershipID != 3 {
		t.Errorf("got %+v", n)
	}
}

func TestHandler_RejectsBadToken(t *testing.T) {
	hub := NewHub(testLogger())
	h := NewHandler(hub, "secret", testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with a bad token must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", resp)
	}
}

func TestHandler_RejectsSuperAdminWithoutDealership(t *testing.T) {
	const secret = "secret"
	hub := NewHub(testLogger())
	h := NewHandler(hub, secret, testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u := &store.User{ID: 1, Email: "root@lotview.test", Role: store.RoleSuperAdmin}
	token, err := auth.IssueJWT(secret, u, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without a dealership must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}
}
