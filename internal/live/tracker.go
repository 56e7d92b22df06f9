package live

import (
	"log"
	"sync"
	"time"

	"github.com/Krimson/vitals-monitory/internal/realtime"
)

// Snapshot — последние известные показания по каждому каналу
type Snapshot struct {
	PatientID     string    `json:"patient_id"`
	HR            *float64  `json:"hr"`
	Temp          *float64  `json:"temp"`
	SpO2          *float64  `json:"spo2"`
	RR            *float64  `json:"rr"`
	BP            *string   `json:"bp"`
	Fall          *bool     `json:"fall"`
	LastUpdate    time.Time `json:"last_update"`
	UpdatingEnded bool      `json:"updating_ended"`
}

// Tracker хранит текущие показания и флаг устаревания.
// Если обновлений нет дольше таймаута, выставляется UpdatingEnded —
// это рекомендация ("давно не слышали устройство"), а не ошибка.
type Tracker struct {
	timeout time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
	timer    *time.Timer
}

// NewTracker создает трекер с заданным таймаутом устаревания
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{timeout: timeout}
}

// SetPatient переключает контекст пациента и сбрасывает снапшот
func (t *Tracker) SetPatient(patientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot = Snapshot{PatientID: patientID}
	t.stopTimerLocked()
}

// Apply вливает обновление: переносятся только присутствующие каналы.
// Любое обновление снимает флаг устаревания и перезапускает таймер,
// независимо от того, какие каналы оно содержит.
func (t *Tracker) Apply(u realtime.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Обновления чужого пациента не применяем
	if t.snapshot.PatientID != "" && u.PatientID != t.snapshot.PatientID {
		log.Printf("[WARN] Ignoring update for patient %s (tracking %s)", u.PatientID, t.snapshot.PatientID)
		return
	}

	if u.Data.HR != nil {
		t.snapshot.HR = u.Data.HR
	}
	if u.Data.Temp != nil {
		t.snapshot.Temp = u.Data.Temp
	}
	if u.Data.SpO2 != nil {
		t.snapshot.SpO2 = u.Data.SpO2
	}
	if u.Data.RR != nil {
		t.snapshot.RR = u.Data.RR
	}
	if u.Data.BP != nil {
		t.snapshot.BP = u.Data.BP
	}
	if u.Data.Fall != nil {
		t.snapshot.Fall = u.Data.Fall
	}

	t.snapshot.LastUpdate = u.ReceivedAt
	t.snapshot.UpdatingEnded = false

	t.stopTimerLocked()
	t.timer = time.AfterFunc(t.timeout, t.markStale)
}

// Snapshot возвращает копию текущего состояния
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// Close останавливает таймер устаревания
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
}

func (t *Tracker) markStale() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.snapshot.UpdatingEnded {
		t.snapshot.UpdatingEnded = true
		log.Printf("[LIVE] No updates for %v, marking feed stale", t.timeout)
	}
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
