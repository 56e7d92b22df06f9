package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

// MemoryStore — хранилище в памяти: для тестов и как запасной
// вариант, когда локальная персистентность недоступна.
type MemoryStore struct {
	mu         sync.RWMutex
	vitals     map[string]map[string]models.VitalSample  // patient -> "ts:source" -> sample
	thresholds map[string]map[string]models.ThresholdSet // patient -> thresholds_id -> set
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vitals:     make(map[string]map[string]models.VitalSample),
		thresholds: make(map[string]map[string]models.ThresholdSet),
	}
}

func (m *MemoryStore) AppendSamples(ctx context.Context, patientID string, samples []models.VitalSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.vitals[patientID]
	if !ok {
		table = make(map[string]models.VitalSample)
		m.vitals[patientID] = table
	}
	for i := range samples {
		table[sampleField(&samples[i])] = samples[i]
	}
	return nil
}

func (m *MemoryStore) UpsertThresholds(ctx context.Context, patientID string, sets []models.ThresholdSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.thresholds[patientID]
	if !ok {
		table = make(map[string]models.ThresholdSet)
		m.thresholds[patientID] = table
	}
	for _, set := range sets {
		table[set.ThresholdsID] = set
	}
	return nil
}

func (m *MemoryStore) ReadAll(ctx context.Context, patientID string) ([]models.VitalSample, []models.ThresholdSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	samples := make([]models.VitalSample, 0, len(m.vitals[patientID]))
	for _, sample := range m.vitals[patientID] {
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })

	sets := make([]models.ThresholdSet, 0, len(m.thresholds[patientID]))
	for _, set := range m.thresholds[patientID] {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetAt < sets[j].SetAt })

	return samples, sets, nil
}

func (m *MemoryStore) Clear(ctx context.Context, patientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vitals, patientID)
	delete(m.thresholds, patientID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
