package cache

import (
	"context"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

// Store — локальное хранилище сэмплов и порогов (Infrastructure Layer).
// Единственный писатель — синхронизатор истории; агрегатор и
// классификатор только читают. Хранилище — слой необязательной
// долговечности, а не источник истины: ошибки записи логируются
// вызывающим кодом и не прерывают работу с состоянием в памяти.
//
// Сэмплы дозаписываются с дедупликацией по (timestamp, source):
// перекрытие окон фетча при lookback не должно плодить дубликаты.
// Пороги — идемпотентный upsert по thresholds_id, выигрывает
// последняя запись.
type Store interface {
	AppendSamples(ctx context.Context, patientID string, samples []models.VitalSample) error
	UpsertThresholds(ctx context.Context, patientID string, sets []models.ThresholdSet) error
	ReadAll(ctx context.Context, patientID string) ([]models.VitalSample, []models.ThresholdSet, error)
	// Clear атомарно очищает обе таблицы; используется только при
	// смене пациента или явном полном рефреше
	Clear(ctx context.Context, patientID string) error
	Close() error
}
