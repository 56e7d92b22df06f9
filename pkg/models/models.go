package models

import (
	"errors"
	"time"
)

// Channel — закрытый набор физиологических каналов.
// Вместо строковых имен ('hr' | 'temp' | ...) используем перечисление
// с явной таблицей соответствия полям порогов.
type Channel int

const (
	ChannelHeartRate Channel = iota
	ChannelTemperature
	ChannelSaturation
	ChannelRespiration
	ChannelFall
)

// TelemetryChannels — каналы, по которым считается статистика.
// Fall — булевый флаг, в агрегацию по среднему не входит.
var TelemetryChannels = []Channel{
	ChannelHeartRate,
	ChannelTemperature,
	ChannelSaturation,
	ChannelRespiration,
}

func (c Channel) String() string {
	switch c {
	case ChannelHeartRate:
		return "hr"
	case ChannelTemperature:
		return "temp"
	case ChannelSaturation:
		return "spo2"
	case ChannelRespiration:
		return "rr"
	case ChannelFall:
		return "fall"
	default:
		return "unknown"
	}
}

// ParseChannel разбирает имя канала из API запросов
func ParseChannel(name string) (Channel, bool) {
	switch name {
	case "hr":
		return ChannelHeartRate, true
	case "temp":
		return ChannelTemperature, true
	case "spo2":
		return ChannelSaturation, true
	case "rr":
		return ChannelRespiration, true
	case "fall":
		return ChannelFall, true
	default:
		return 0, false
	}
}

// VitalSample — одно измерение в момент времени.
// nil-поле означает отсутствие показания по каналу.
type VitalSample struct {
	Timestamp    int64    `json:"timestamp"` // unix-секунды
	HR           *float64 `json:"hr"`
	Temp         *float64 `json:"temp"`
	SpO2         *float64 `json:"spo2"`
	RR           *float64 `json:"rr"`
	Fall         *bool    `json:"fall"`
	Source       string   `json:"source,omitempty"` // идентификатор устройства
	ThresholdsID string   `json:"thresholds_id"`
}

// Value возвращает значение сэмпла по каналу (nil — показания нет)
func (s *VitalSample) Value(c Channel) *float64 {
	switch c {
	case ChannelHeartRate:
		return s.HR
	case ChannelTemperature:
		return s.Temp
	case ChannelSaturation:
		return s.SpO2
	case ChannelRespiration:
		return s.RR
	default:
		return nil
	}
}

// IsEmpty — сэмпл-заполнитель без показаний, в статистику не входит
func (s *VitalSample) IsEmpty() bool {
	return s.HR == nil && s.Temp == nil && s.SpO2 == nil && s.RR == nil && s.Fall == nil
}

// UserRef — ссылка на пользователя (врача), установившего пороги
type UserRef struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
}

// ThresholdSet — границы нормы, действовавшие для пациента в некоторый период.
// Пороги не изменяются на месте — только замещаются новым набором,
// исторические сэмплы продолжают ссылаться на свой thresholds_id.
type ThresholdSet struct {
	ThresholdsID string   `json:"thresholds_id"`
	MinHR        *float64 `json:"min_hr"`
	MaxHR        *float64 `json:"max_hr"`
	MinTemp      *float64 `json:"min_temp"`
	MaxTemp      *float64 `json:"max_temp"`
	MinSpO2      *float64 `json:"min_spo2"` // у сатурации только нижняя граница
	MinRR        *float64 `json:"min_rr"`
	MaxRR        *float64 `json:"max_rr"`
	SetBy        *UserRef `json:"set_by"`
	SetAt        int64    `json:"set_at"`
}

// Bounds возвращает границы нормы для канала.
// nil означает отсутствие границы с соответствующей стороны.
func (t *ThresholdSet) Bounds(c Channel) (min, max *float64) {
	switch c {
	case ChannelHeartRate:
		return t.MinHR, t.MaxHR
	case ChannelTemperature:
		return t.MinTemp, t.MaxTemp
	case ChannelSaturation:
		return t.MinSpO2, nil
	case ChannelRespiration:
		return t.MinRR, t.MaxRR
	default:
		return nil, nil
	}
}

// ChannelReport — сводка по одному каналу внутри окна истории
type ChannelReport struct {
	Name             string   `json:"name"`
	IsNormal         bool     `json:"is_normal"`
	AbnormalMinValue *float64 `json:"abnormal_min_value"`
	AbnormalMaxValue *float64 `json:"abnormal_max_value"`
	TotalMean        *float64 `json:"total_mean"`
	Disabled         bool     `json:"disabled,omitempty"` // для каналов без непрерывной телеметрии
}

// HistoryWindow — непрерывный интервал времени с метаданными отклонений.
// Производная структура: пересчитывается из сэмплов и порогов, не хранится.
type HistoryWindow struct {
	StartTimestamp int64           `json:"start_timestamp"`
	EndTimestamp   int64           `json:"end_timestamp"`
	ThresholdsID   string          `json:"thresholds_id"`
	Channels       []ChannelReport `json:"channels"`
}

// SyncCursor — состояние инкрементальной синхронизации для пациента.
// Сбрасывается при смене наблюдаемого пациента.
type SyncCursor struct {
	PatientID       string
	LastRequestTime time.Time // нулевое значение — курсора нет
}

// Reset обнуляет курсор (смена пациента или полный рефреш)
func (c *SyncCursor) Reset() {
	c.PatientID = ""
	c.LastRequestTime = time.Time{}
}

// FetchResult — ответ эндпоинта истории
type FetchResult struct {
	Vitals     []VitalSample  `json:"vitals"`
	Thresholds []ThresholdSet `json:"thresholds"`
	Users      []UserRef      `json:"users"`
}

// ErrPatientMismatch — результат запроса относится к другому пациенту
// (пациент сменился, пока запрос был в полете)
var ErrPatientMismatch = errors.New("result belongs to another patient")
