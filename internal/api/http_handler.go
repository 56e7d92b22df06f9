package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Krimson/vitals-monitory/internal/aggregate"
	"github.com/Krimson/vitals-monitory/internal/classify"
	"github.com/Krimson/vitals-monitory/internal/history"
	"github.com/Krimson/vitals-monitory/internal/live"
	"github.com/Krimson/vitals-monitory/pkg/models"
)

// Subscriber — управление подпиской канала реального времени
type Subscriber interface {
	Subscribe(patientID string) error
	Unsubscribe(patientID string) error
}

// HTTPHandler отдает оболочке интерфейса готовые к отображению
// структуры конвейера (Presentation Layer)
type HTTPHandler struct {
	subscriber   Subscriber
	tracker      *live.Tracker
	synchronizer *history.Synchronizer
	aggregator   *aggregate.Aggregator
	classifier   *classify.Classifier
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(
	subscriber Subscriber,
	tracker *live.Tracker,
	synchronizer *history.Synchronizer,
	aggregator *aggregate.Aggregator,
	classifier *classify.Classifier,
) *HTTPHandler {
	return &HTTPHandler{
		subscriber:   subscriber,
		tracker:      tracker,
		synchronizer: synchronizer,
		aggregator:   aggregator,
		classifier:   classifier,
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/patients").Subrouter()

	api.HandleFunc("/{id}/watch", h.WatchPatient).Methods("POST")
	api.HandleFunc("/{id}/sync", h.SyncHistory).Methods("POST")
	api.HandleFunc("/{id}/vitals/current", h.GetCurrentVitals).Methods("GET")
	api.HandleFunc("/{id}/vitals/summary", h.GetSummary).Methods("GET")
	api.HandleFunc("/{id}/vitals/windows", h.GetHistoryWindows).Methods("GET")

	router.HandleFunc("/healthz", h.Healthz).Methods("GET")
}

// WatchPatient переключает наблюдаемого пациента: живая подписка
// перевыставляется, история перечитывается полным окном
// POST /api/patients/{id}/watch
func (h *HTTPHandler) WatchPatient(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	previous := h.synchronizer.Patient()
	if previous != "" && previous != patientID {
		// Старую подписку снимаем до установки новой
		if err := h.subscriber.Unsubscribe(previous); err != nil {
			log.Printf("[WARN] Failed to unsubscribe from patient %s: %v", previous, err)
		}
	}

	h.tracker.SetPatient(patientID)

	if err := h.subscriber.Subscribe(patientID); err != nil {
		log.Printf("[ERROR] Failed to subscribe to patient %s: %v", patientID, err)
		respondError(w, http.StatusBadGateway, "Failed to subscribe to live updates")
		return
	}

	if _, err := h.synchronizer.Sync(r.Context(), patientID, true); err != nil {
		// История догрузится следующим триггером — живой поток уже идет
		log.Printf("[ERROR] Initial history sync failed for patient %s: %v", patientID, err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"message":    "Watching patient",
	})
}

// SyncHistory запускает проход синхронизации истории
// POST /api/patients/{id}/sync?force=false
func (h *HTTPHandler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"

	result, err := h.synchronizer.Sync(r.Context(), patientID, force)
	if err != nil {
		log.Printf("[ERROR] Sync failed for patient %s: %v", patientID, err)
		respondError(w, http.StatusBadGateway, "History sync failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"samples":    len(result.Vitals),
		"thresholds": len(result.Thresholds),
	})
}

// GetCurrentVitals возвращает снапшот живых показаний с флагом устаревания
// GET /api/patients/{id}/vitals/current
func (h *HTTPHandler) GetCurrentVitals(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	snapshot := h.tracker.Snapshot()
	if snapshot.PatientID != patientID {
		respondError(w, http.StatusConflict, "Patient is not being watched")
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// GetSummary возвращает агрегированный ряд по интервалам
// GET /api/patients/{id}/vitals/summary?start=&end=
func (h *HTTPHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if h.synchronizer.Patient() != patientID {
		respondError(w, http.StatusConflict, "Patient is not being watched")
		return
	}

	now := time.Now().Unix()
	end := getQueryInt64(r, "end", now)
	start := getQueryInt64(r, "start", end-3600)

	samples, _ := h.synchronizer.State()
	summary, interval, err := h.aggregator.Aggregate(samples, start, end)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid time range")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":       patientID,
		"start":            start,
		"end":              end,
		"interval_seconds": interval,
		"summary":          summary,
	})
}

// GetHistoryWindows возвращает окна истории с разметкой отклонений
// GET /api/patients/{id}/vitals/windows?channel=all&order=desc&abnormal=false
func (h *HTTPHandler) GetHistoryWindows(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if h.synchronizer.Patient() != patientID {
		respondError(w, http.StatusConflict, "Patient is not being watched")
		return
	}

	filter := r.URL.Query().Get("channel")
	if filter == "" {
		filter = classify.FilterAll
	}
	if filter != classify.FilterAll {
		if _, ok := models.ParseChannel(filter); !ok {
			respondError(w, http.StatusBadRequest, "Unknown channel")
			return
		}
	}

	order := classify.OrderDescending
	if r.URL.Query().Get("order") == "asc" {
		order = classify.OrderAscending
	}

	samples, thresholds := h.synchronizer.State()
	windows := h.classifier.Classify(samples, thresholds, filter, order)

	if r.URL.Query().Get("abnormal") == "true" {
		windows = abnormalOnly(windows)
	}

	response := map[string]interface{}{
		"patient_id": patientID,
		"windows":    windows,
		"count":      len(windows),
	}
	if len(windows) == 0 {
		// Пустое состояние — не ошибка
		response["message"] = "No history windows for the selected channel"
	}

	respondJSON(w, http.StatusOK, response)
}

// Healthz — проверка живости для оболочки интерфейса
// GET /healthz
func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func abnormalOnly(windows []models.HistoryWindow) []models.HistoryWindow {
	result := make([]models.HistoryWindow, 0, len(windows))
	for _, window := range windows {
		for _, channel := range window.Channels {
			if !channel.IsNormal {
				result = append(result, window)
				break
			}
		}
	}
	return result
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getQueryInt64(r *http.Request, key string, defaultValue int64) int64 {
	if value := r.URL.Query().Get(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
