package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/store"
)

type fakeStore struct {
	movers      []models.MoverEvent
	moverCount  int
	research    map[string]*models.ResearchReport
	counts      map[string]int
	daily       []models.DailyStats
	researchCnt int

	lastDirection string
	lastLimit     int
}

func (s *fakeStore) MoversSince(_ context.Context, _ time.Time, direction string, limit int) ([]models.MoverEvent, error) {
	s.lastDirection = direction
	s.lastLimit = limit
	return s.movers, nil
}

func (s *fakeStore) CountMoversSince(context.Context, time.Time) (int, error) {
	return s.moverCount, nil
}

func (s *fakeStore) ResearchReportByEvent(_ context.Context, eventID string) (*models.ResearchReport, error) {
	if r, ok := s.research[eventID]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) PredictionStatusCountsSince(context.Context, time.Time) (map[string]int, error) {
	return s.counts, nil
}

func (s *fakeStore) DailyStatsSince(context.Context, string) ([]models.DailyStats, error) {
	return s.daily, nil
}

func (s *fakeStore) CountResearchSince(context.Context, time.Time) (int, error) {
	return s.researchCnt, nil
}

func newTestRouter(s *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON response: %v", err)
		}
	}
	return w, body
}

func TestGetMoversSortsByMagnitude(t *testing.T) {
	s := &fakeStore{
		movers: []models.MoverEvent{
			{ID: "a", Symbol: "ada", Magnitude: 12},
			{ID: "b", Symbol: "sol", Magnitude: -25},
			{ID: "c", Symbol: "doge", Magnitude: 18},
		},
		moverCount: 3,
	}
	r := newTestRouter(s)

	w, body := doRequest(t, r, "/api/movers?hours=24")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	movers := body["movers"].([]any)
	first := movers[0].(map[string]any)
	if first["symbol"] != "sol" {
		t.Errorf("expected biggest absolute move first, got %v", first["symbol"])
	}
	if body["total"].(float64) != 3 {
		t.Errorf("expected total 3, got %v", body["total"])
	}
}

func TestGetMoversValidatesDirection(t *testing.T) {
	r := newTestRouter(&fakeStore{})
	w, _ := doRequest(t, r, "/api/movers?direction=sideways")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad direction, got %d", w.Code)
	}
}

func TestGetMoversClampsLimit(t *testing.T) {
	s := &fakeStore{}
	r := newTestRouter(s)
	doRequest(t, r, "/api/movers?limit=9999")
	if s.lastLimit != 200 {
		t.Errorf("expected limit clamped to 200, got %d", s.lastLimit)
	}
}

func TestGetResearchFound(t *testing.T) {
	s := &fakeStore{
		research: map[string]*models.ResearchReport{
			"evt-1": {ID: "r-1", MoverEventID: "evt-1", Catalyst: "listing"},
		},
	}
	r := newTestRouter(s)

	w, body := doRequest(t, r, "/api/research/evt-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["catalyst"] != "listing" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestGetResearchNotFound(t *testing.T) {
	r := newTestRouter(&fakeStore{})
	w, body := doRequest(t, r, "/api/research/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if body["error"] != "research report not found" {
		t.Errorf("unexpected error body: %v", body)
	}
}

func TestGetStats(t *testing.T) {
	s := &fakeStore{
		moverCount:  42,
		researchCnt: 7,
		counts: map[string]int{
			models.StatusCorrect:   6,
			models.StatusPartial:   2,
			models.StatusIncorrect: 2,
			models.StatusPending:   5,
		},
		daily: []models.DailyStats{{Date: "2026-08-27", TotalMovers: 10}},
	}
	r := newTestRouter(s)

	w, body := doRequest(t, r, "/api/stats?days=7")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	summary := body["summary"].(map[string]any)
	if summary["totalMovers"].(float64) != 42 {
		t.Errorf("unexpected totalMovers: %v", summary["totalMovers"])
	}
	if summary["researchReports"].(float64) != 7 {
		t.Errorf("unexpected researchReports: %v", summary["researchReports"])
	}
	// (6 + 0.5*2) / 10 = 0.7
	if acc := summary["predictionAccuracy"].(float64); acc != 0.7 {
		t.Errorf("expected accuracy 0.7, got %v", acc)
	}

	daily := body["dailyStats"].([]any)
	if len(daily) != 1 {
		t.Errorf("expected one daily row, got %d", len(daily))
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeStore{})
	w, body := doRequest(t, r, "/healthz")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response: %d %v", w.Code, body)
	}
}
