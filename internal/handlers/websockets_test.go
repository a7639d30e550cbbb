package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stovewatch/internal/models"
	"stovewatch/internal/service"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsEnvelope
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestWebSocket_PushesInitialStatus(t *testing.T) {
	geo := &mockGeofence{status: models.GeofenceStatus{
		Running:   true,
		Enabled:   true,
		Proximity: models.ProximityNearHome,
	}}
	router := newTestRouter(&service.Service{Geofence: geo, EventLog: &mockEventLog{}}, nil, "")

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")
	env := readEnvelope(t, conn)
	if env.Type != "status" {
		t.Fatalf("envelope type: want %q, got %q", "status", env.Type)
	}

	data, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var st models.GeofenceStatus
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Running || st.Proximity != models.ProximityNearHome {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestWebSocket_PeriodicUpdates(t *testing.T) {
	geo := &mockGeofence{}
	router := newTestRouter(&service.Service{Geofence: geo, EventLog: &mockEventLog{}}, nil, "")

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws?interval=50ms")

	// Initial push plus at least two ticks.
	for i := 0; i < 3; i++ {
		env := readEnvelope(t, conn)
		if env.Type != "status" {
			t.Fatalf("message %d: want type %q, got %q", i, "status", env.Type)
		}
	}
}
