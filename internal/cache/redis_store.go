package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/Krimson/vitals-monitory/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore — вариант хранилища для развертываний с прикроватным
// шлюзом, где несколько клиентов делят один Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает хранилище поверх существующего клиента Redis
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ===== Ключи Redis =====

func vitalsKey(patientID string) string {
	return fmt.Sprintf("patient:%s:vitals", patientID)
}

func thresholdsKey(patientID string) string {
	return fmt.Sprintf("patient:%s:thresholds", patientID)
}

// Поле хеша — составной ключ сэмпла, обеспечивает дедупликацию
func sampleField(sample *models.VitalSample) string {
	return fmt.Sprintf("%d:%s", sample.Timestamp, sample.Source)
}

// AppendSamples пишет сэмплы в хеш пациента, дубликаты замещаются
func (r *RedisStore) AppendSamples(ctx context.Context, patientID string, samples []models.VitalSample) error {
	if len(samples) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for i := range samples {
		data, err := json.Marshal(&samples[i])
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		pipe.HSet(ctx, vitalsKey(patientID), sampleField(&samples[i]), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append samples: %w", err)
	}
	return nil
}

// UpsertThresholds сохраняет наборы порогов, выигрывает последняя запись
func (r *RedisStore) UpsertThresholds(ctx context.Context, patientID string, sets []models.ThresholdSet) error {
	if len(sets) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for i := range sets {
		data, err := json.Marshal(&sets[i])
		if err != nil {
			return fmt.Errorf("failed to marshal threshold set: %w", err)
		}
		pipe.HSet(ctx, thresholdsKey(patientID), sets[i].ThresholdsID, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert thresholds: %w", err)
	}
	return nil
}

// ReadAll возвращает все сэмплы (по возрастанию времени) и пороги пациента
func (r *RedisStore) ReadAll(ctx context.Context, patientID string) ([]models.VitalSample, []models.ThresholdSet, error) {
	rawSamples, err := r.client.HGetAll(ctx, vitalsKey(patientID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read vitals: %w", err)
	}

	samples := make([]models.VitalSample, 0, len(rawSamples))
	for _, item := range rawSamples {
		var sample models.VitalSample
		if err := json.Unmarshal([]byte(item), &sample); err != nil {
			log.Printf("[WARN] Skipping corrupted sample record: %v", err)
			continue
		}
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })

	rawSets, err := r.client.HGetAll(ctx, thresholdsKey(patientID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read thresholds: %w", err)
	}

	sets := make([]models.ThresholdSet, 0, len(rawSets))
	for _, item := range rawSets {
		var set models.ThresholdSet
		if err := json.Unmarshal([]byte(item), &set); err != nil {
			log.Printf("[WARN] Skipping corrupted threshold record: %v", err)
			continue
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetAt < sets[j].SetAt })

	return samples, sets, nil
}

// Clear удаляет оба ключа пациента одним вызовом
func (r *RedisStore) Clear(ctx context.Context, patientID string) error {
	if err := r.client.Del(ctx, vitalsKey(patientID), thresholdsKey(patientID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
