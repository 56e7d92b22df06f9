package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/Krimson/vitals-monitory/internal/aggregate"
	"github.com/Krimson/vitals-monitory/internal/cache"
	"github.com/Krimson/vitals-monitory/internal/classify"
	"github.com/Krimson/vitals-monitory/internal/history"
	"github.com/Krimson/vitals-monitory/internal/live"
	"github.com/Krimson/vitals-monitory/pkg/models"
)

func f(v float64) *float64 { return &v }

// fakeSubscriber вместо живого websocket клиента
type fakeSubscriber struct {
	subscribed   []string
	unsubscribed []string
}

func (fs *fakeSubscriber) Subscribe(patientID string) error {
	fs.subscribed = append(fs.subscribed, patientID)
	return nil
}

func (fs *fakeSubscriber) Unsubscribe(patientID string) error {
	fs.unsubscribed = append(fs.unsubscribed, patientID)
	return nil
}

// fakeFetcher отдает заранее заданную историю
type fakeFetcher struct {
	result *models.FetchResult
}

func (ff *fakeFetcher) FetchHistory(ctx context.Context, patientID string, start, end time.Time) (*models.FetchResult, error) {
	if ff.result == nil {
		return &models.FetchResult{}, nil
	}
	return ff.result, nil
}

func newTestRouter(fetcher history.Fetcher) (*mux.Router, *fakeSubscriber, *live.Tracker) {
	subscriber := &fakeSubscriber{}
	tracker := live.NewTracker(time.Minute)

	synchronizer := history.NewSynchronizer(fetcher, cache.NewMemoryStore(), history.Options{
		RequestDelay:    time.Minute,
		RequestLookback: 5 * time.Minute,
		WindowDays:      30,
	})

	handler := NewHTTPHandler(
		subscriber,
		tracker,
		synchronizer,
		aggregate.NewAggregator(30, 60),
		classify.NewClassifier(nil),
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router, subscriber, tracker
}

func doRequest(t *testing.T, router *mux.Router, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return recorder, body
}

func TestWatchPatient_SwitchesSubscription(t *testing.T) {
	router, subscriber, _ := newTestRouter(&fakeFetcher{})

	recorder, _ := doRequest(t, router, "POST", "/api/patients/patientA/watch")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	// Переключение: старая подписка снимается до установки новой
	recorder, _ = doRequest(t, router, "POST", "/api/patients/patientB/watch")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	if len(subscriber.subscribed) != 2 || subscriber.subscribed[1] != "patientB" {
		t.Errorf("Unexpected subscribe calls: %v", subscriber.subscribed)
	}
	if len(subscriber.unsubscribed) != 1 || subscriber.unsubscribed[0] != "patientA" {
		t.Errorf("Expected unsubscribe for patientA, got %v", subscriber.unsubscribed)
	}
}

func TestGetCurrentVitals_PatientGuard(t *testing.T) {
	router, _, _ := newTestRouter(&fakeFetcher{})

	// Пациент не наблюдается — конфликт, а не пустой снапшот
	recorder, _ := doRequest(t, router, "GET", "/api/patients/patientA/vitals/current")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for unwatched patient, got %d", recorder.Code)
	}

	doRequest(t, router, "POST", "/api/patients/patientA/watch")

	recorder, body := doRequest(t, router, "GET", "/api/patients/patientA/vitals/current")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if body["patient_id"] != "patientA" {
		t.Errorf("Expected snapshot for patientA, got %v", body["patient_id"])
	}
}

func TestGetHistoryWindows_EmptyState(t *testing.T) {
	router, _, _ := newTestRouter(&fakeFetcher{})

	doRequest(t, router, "POST", "/api/patients/patientA/watch")

	recorder, body := doRequest(t, router, "GET", "/api/patients/patientA/vitals/windows")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 for empty history, got %d", recorder.Code)
	}
	if body["message"] == nil {
		t.Error("Empty history must carry an empty-state message")
	}
}

func TestGetHistoryWindows_AbnormalFlow(t *testing.T) {
	now := time.Now().Unix()
	fetcher := &fakeFetcher{result: &models.FetchResult{
		Vitals: []models.VitalSample{
			{Timestamp: now - 120, HR: f(150), ThresholdsID: "th1"},
			{Timestamp: now - 60, HR: f(82), ThresholdsID: "th1"},
		},
		Thresholds: []models.ThresholdSet{
			{ThresholdsID: "th1", MinHR: f(60), MaxHR: f(140), SetAt: 1000},
		},
	}}
	router, _, _ := newTestRouter(fetcher)

	doRequest(t, router, "POST", "/api/patients/patientA/watch")

	recorder, body := doRequest(t, router, "GET", "/api/patients/patientA/vitals/windows?channel=hr&abnormal=true")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	windows, ok := body["windows"].([]interface{})
	if !ok || len(windows) != 1 {
		t.Fatalf("Expected 1 abnormal window, got %v", body["windows"])
	}

	recorder, _ = doRequest(t, router, "GET", "/api/patients/patientA/vitals/windows?channel=bogus")
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown channel, got %d", recorder.Code)
	}
}

func TestGetSummary_ReturnsSeries(t *testing.T) {
	now := time.Now().Unix()
	fetcher := &fakeFetcher{result: &models.FetchResult{
		Vitals: []models.VitalSample{
			{Timestamp: now - 300, HR: f(80), ThresholdsID: "th1"},
		},
	}}
	router, _, _ := newTestRouter(fetcher)

	doRequest(t, router, "POST", "/api/patients/patientA/watch")

	recorder, body := doRequest(t, router, "GET", "/api/patients/patientA/vitals/summary")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if body["interval_seconds"].(float64) != 60 {
		t.Errorf("Expected 60s interval for 1h window, got %v", body["interval_seconds"])
	}
	summary, ok := body["summary"].([]interface{})
	if !ok || len(summary) != 60 {
		t.Fatalf("Expected 60 interval entries, got %d", len(summary))
	}
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(&fakeFetcher{})

	recorder, body := doRequest(t, router, "GET", "/healthz")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}
