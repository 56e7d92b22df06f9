package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Krimson/vitals-monitory/internal/cache"
	"github.com/Krimson/vitals-monitory/pkg/models"
)

// Options — параметры синхронизации
type Options struct {
	RequestDelay    time.Duration // минимальная пауза между фетчами одного пациента
	RequestLookback time.Duration // перекрытие окна для опоздавших сэмплов
	WindowDays      int           // глубина полного окна истории
}

// Synchronizer решает, какое окно истории запрашивать (полный рефреш
// или инкремент), и вливает результат в локальное хранилище и
// состояние в памяти. Единственный писатель хранилища.
//
// Курсор — значение, принадлежащее экземпляру синхронизатора
// (не глобальная переменная): одна запись на активный контекст пациента.
type Synchronizer struct {
	fetcher Fetcher
	store   cache.Store
	opts    Options
	now     func() time.Time

	mu         sync.Mutex
	cursor     models.SyncCursor
	inFlight   bool
	samples    map[string]models.VitalSample  // ключ "ts:source"
	thresholds map[string]models.ThresholdSet // ключ thresholds_id
	users      map[string]models.UserRef
}

// NewSynchronizer создает синхронизатор истории
func NewSynchronizer(fetcher Fetcher, store cache.Store, opts Options) *Synchronizer {
	return &Synchronizer{
		fetcher:    fetcher,
		store:      store,
		opts:       opts,
		now:        time.Now,
		samples:    make(map[string]models.VitalSample),
		thresholds: make(map[string]models.ThresholdSet),
		users:      make(map[string]models.UserRef),
	}
}

// Sync выполняет один проход синхронизации.
//
// force=true (смена пациента или явный полный рефреш): хранилище
// очищается, курсор сбрасывается, запрашивается полное окно.
// Иначе — инкремент от курсора с lookback-перекрытием; повторный
// вызов раньше RequestDelay — no-op с возвратом закэшированного
// состояния (redundant polling глушится, запросы не ставятся в очередь).
func (s *Synchronizer) Sync(ctx context.Context, patientID string, force bool) (*models.FetchResult, error) {
	s.mu.Lock()

	// Смена наблюдаемого пациента — всегда полный рефреш
	if s.cursor.PatientID != patientID {
		force = true
	}

	now := s.now()
	end := now
	start := now.AddDate(0, 0, -s.opts.WindowDays)

	if !force {
		if s.inFlight {
			result := s.cachedResultLocked()
			s.mu.Unlock()
			return result, nil
		}
		if !s.cursor.LastRequestTime.IsZero() {
			gap := now.Sub(s.cursor.LastRequestTime)
			if gap < s.opts.RequestDelay {
				result := s.cachedResultLocked()
				s.mu.Unlock()
				log.Printf("[SYNC] Throttled for patient %s (gap %v < %v)", patientID, gap, s.opts.RequestDelay)
				return result, nil
			}
			// Сужаем окно: от курсора назад на lookback,
			// чтобы подобрать опоздавшие и переупорядоченные сэмплы
			start = s.cursor.LastRequestTime.Add(-s.opts.RequestLookback)
		}
	} else {
		s.cursor.Reset()
		s.cursor.PatientID = patientID
		s.samples = make(map[string]models.VitalSample)
		s.thresholds = make(map[string]models.ThresholdSet)
		s.users = make(map[string]models.UserRef)

		if err := s.store.Clear(ctx, patientID); err != nil {
			// Хранилище — best-effort: продолжаем с состоянием в памяти
			log.Printf("[ERROR] Failed to clear cache for patient %s: %v", patientID, err)
		}
	}

	s.inFlight = true
	s.mu.Unlock()

	result, err := s.fetcher.FetchHistory(ctx, patientID, start, end)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if err != nil {
		// Курсор не двигаем — следующий триггер повторит это же окно
		log.Printf("[ERROR] History fetch failed for patient %s: %v", patientID, err)
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}

	// Фетч мог завершиться после переключения пациента —
	// результат чужого контекста отбрасываем
	if s.cursor.PatientID != patientID {
		log.Printf("[WARN] Discarding fetch result for patient %s (now tracking %s)", patientID, s.cursor.PatientID)
		return nil, models.ErrPatientMismatch
	}

	s.mergeLocked(result)
	s.cursor.LastRequestTime = end

	if err := s.store.AppendSamples(ctx, patientID, result.Vitals); err != nil {
		log.Printf("[ERROR] Failed to persist samples for patient %s: %v", patientID, err)
	}
	if err := s.store.UpsertThresholds(ctx, patientID, result.Thresholds); err != nil {
		log.Printf("[ERROR] Failed to persist thresholds for patient %s: %v", patientID, err)
	}

	log.Printf("[SYNC] Fetched %d samples, %d threshold sets for patient %s (window %v..%v)",
		len(result.Vitals), len(result.Thresholds), patientID,
		start.Unix(), end.Unix())

	return s.cachedResultLocked(), nil
}

// AppendLive вливает живой сэмпл в состояние и хранилище между
// проходами синхронизации. Сэмплы чужого пациента отбрасываются.
func (s *Synchronizer) AppendLive(ctx context.Context, patientID string, sample models.VitalSample) {
	s.mu.Lock()
	if s.cursor.PatientID != patientID {
		s.mu.Unlock()
		return
	}
	key := fmt.Sprintf("%d:%s", sample.Timestamp, sample.Source)
	s.samples[key] = sample
	s.mu.Unlock()

	if err := s.store.AppendSamples(ctx, patientID, []models.VitalSample{sample}); err != nil {
		log.Printf("[ERROR] Failed to persist live sample for patient %s: %v", patientID, err)
	}
}

// Restore подгружает состояние пациента из локального хранилища
// (офлайн-старт до первого успешного фетча)
func (s *Synchronizer) Restore(ctx context.Context, patientID string) error {
	samples, thresholds, err := s.store.ReadAll(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to restore cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.PatientID != patientID {
		s.cursor.Reset()
		s.cursor.PatientID = patientID
		s.samples = make(map[string]models.VitalSample)
		s.thresholds = make(map[string]models.ThresholdSet)
		s.users = make(map[string]models.UserRef)
	}
	s.mergeLocked(&models.FetchResult{Vitals: samples, Thresholds: thresholds})

	log.Printf("[SYNC] Restored %d samples, %d threshold sets for patient %s from local cache",
		len(samples), len(thresholds), patientID)
	return nil
}

// State возвращает текущее состояние в памяти: сэмплы по возрастанию
// времени и пороги пациента
func (s *Synchronizer) State() ([]models.VitalSample, []models.ThresholdSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.cachedResultLocked()
	return result.Vitals, result.Thresholds
}

// Patient возвращает пациента активного контекста
func (s *Synchronizer) Patient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.PatientID
}

// CurrentThresholds возвращает действующий (последний по set_at) набор порогов
func (s *Synchronizer) CurrentThresholds() *models.ThresholdSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.ThresholdSet
	for id := range s.thresholds {
		set := s.thresholds[id]
		if latest == nil || set.SetAt > latest.SetAt {
			latest = &set
		}
	}
	return latest
}

func (s *Synchronizer) mergeLocked(result *models.FetchResult) {
	for i := range result.Vitals {
		sample := result.Vitals[i]
		key := fmt.Sprintf("%d:%s", sample.Timestamp, sample.Source)
		s.samples[key] = sample
	}
	for _, set := range result.Thresholds {
		existing, ok := s.thresholds[set.ThresholdsID]
		if !ok || set.SetAt >= existing.SetAt {
			s.thresholds[set.ThresholdsID] = set
		}
	}
	for _, user := range result.Users {
		s.users[user.ID] = user
	}
}

func (s *Synchronizer) cachedResultLocked() *models.FetchResult {
	samples := make([]models.VitalSample, 0, len(s.samples))
	for _, sample := range s.samples {
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })

	thresholds := make([]models.ThresholdSet, 0, len(s.thresholds))
	for _, set := range s.thresholds {
		thresholds = append(thresholds, set)
	}
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i].SetAt < thresholds[j].SetAt })

	users := make([]models.UserRef, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return &models.FetchResult{Vitals: samples, Thresholds: thresholds, Users: users}
}
