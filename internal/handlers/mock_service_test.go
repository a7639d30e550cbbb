package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"stovewatch/internal/location"
	"stovewatch/internal/models"
	"stovewatch/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockGeofence struct {
	restoreResp  bool
	startErr     error
	setHomeErr   error
	clearErr     error
	checkResp    models.DetectionResult
	checkErr     error
	status       models.GeofenceStatus
	startCalls   int
	stopCalls    int
	setHomeCalls int
	clearCalls   int
	checkCalls   int
	lastHome     models.Coordinate
}

func (m *mockGeofence) Restore(ctx context.Context) bool { return m.restoreResp }

func (m *mockGeofence) Start(ctx context.Context) error {
	m.startCalls++
	return m.startErr
}

func (m *mockGeofence) Stop(ctx context.Context) {
	m.stopCalls++
}

func (m *mockGeofence) Shutdown(ctx context.Context) {}

func (m *mockGeofence) SetHomeLocation(ctx context.Context, loc models.Coordinate) error {
	m.setHomeCalls++
	m.lastHome = loc
	return m.setHomeErr
}

func (m *mockGeofence) ClearHomeLocation(ctx context.Context) error {
	m.clearCalls++
	return m.clearErr
}

func (m *mockGeofence) Status() models.GeofenceStatus { return m.status }

func (m *mockGeofence) SetObserver(fn func(isNear bool, distanceMiles float64)) {}

func (m *mockGeofence) CheckNow(ctx context.Context) (models.DetectionResult, error) {
	m.checkCalls++
	return m.checkResp, m.checkErr
}

type mockEventLog struct {
	resp     []models.GeofenceEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.GeofenceEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, relay *location.Relay, token string) *gin.Engine {
	h := NewHandler(s, relay, token, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func doRequest(router *gin.Engine, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
