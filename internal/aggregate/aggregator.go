package aggregate

import (
	"fmt"
	"math"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

// ChannelStat — статистика канала внутри интервала.
// nil-тройка означает отсутствие показаний по каналу в интервале.
type ChannelStat struct {
	Value  *float64 `json:"value"`   // среднее
	MinStd *float64 `json:"min_std"` // mean - stddev (полоса)
	MaxStd *float64 `json:"max_std"` // mean + stddev
}

// IntervalSummary — сводка одного интервала.
// Timestamp — среднее времен вошедших сэмплов (не граница интервала),
// чтобы точки на графике отражали реальную плотность данных.
// Для пустого интервала — середина интервала.
type IntervalSummary struct {
	Timestamp int64       `json:"timestamp"`
	HR        ChannelStat `json:"hr"`
	Temp      ChannelStat `json:"temp"`
	SpO2      ChannelStat `json:"spo2"`
	RR        ChannelStat `json:"rr"`
}

// Summary — непрерывный равномерный ряд сводок по интервалам
type Summary []IntervalSummary

// Aggregator режет диапазон времени на ограниченное число интервалов
// и считает статистику по каналам
type Aggregator struct {
	minIntervalSeconds int64
	maxIntervals       int64
}

// NewAggregator создает агрегатор с ограничениями на интервалы
func NewAggregator(minIntervalSeconds, maxIntervals int64) *Aggregator {
	return &Aggregator{
		minIntervalSeconds: minIntervalSeconds,
		maxIntervals:       maxIntervals,
	}
}

// Aggregate считает сводки по интервалам диапазона [start, end].
// Возвращает ровно ceil((end-start)/interval) записей: пустые
// интервалы представлены заполнителями, а не дырами — потребители
// видят непрерывный равномерный ряд.
func (a *Aggregator) Aggregate(samples []models.VitalSample, start, end int64) (Summary, int64, error) {
	if end <= start {
		return nil, 0, fmt.Errorf("invalid range: end %d <= start %d", end, start)
	}

	interval := (end - start) / a.maxIntervals
	if interval < a.minIntervalSeconds {
		interval = a.minIntervalSeconds
	}

	count := (end - start + interval - 1) / interval
	summary := make(Summary, 0, count)

	next := 0 // сэмплы отсортированы по времени — идем одним проходом
	for i := int64(0); i < count; i++ {
		lower := start + i*interval
		upper := lower + interval

		// Первый интервал расширяем вниз на единицу, чтобы захватить
		// граничный сэмпл ровно в точке start
		effLower := lower
		if i == 0 {
			effLower = lower - 1
		}

		for next < len(samples) && samples[next].Timestamp <= effLower {
			next++
		}

		var bucket []models.VitalSample
		for next < len(samples) && samples[next].Timestamp <= upper {
			// Сэмплы-заполнители без показаний в статистику не входят
			if !samples[next].IsEmpty() {
				bucket = append(bucket, samples[next])
			}
			next++
		}

		summary = append(summary, summarizeInterval(bucket, lower, upper))
	}

	return summary, interval, nil
}

func summarizeInterval(bucket []models.VitalSample, lower, upper int64) IntervalSummary {
	if len(bucket) == 0 {
		// Заполнитель: все каналы null, время — середина интервала
		return IntervalSummary{Timestamp: lower + (upper-lower)/2}
	}

	var tsSum int64
	for i := range bucket {
		tsSum += bucket[i].Timestamp
	}

	return IntervalSummary{
		Timestamp: tsSum / int64(len(bucket)),
		HR:        channelStat(bucket, models.ChannelHeartRate, 0),
		Temp:      channelStat(bucket, models.ChannelTemperature, 1),
		SpO2:      channelStat(bucket, models.ChannelSaturation, 0),
		RR:        channelStat(bucket, models.ChannelRespiration, 0),
	}
}

// channelStat считает среднее и стандартное отклонение
// (популяционная формула) по каналу внутри интервала
func channelStat(bucket []models.VitalSample, channel models.Channel, decimals int) ChannelStat {
	var values []float64
	for i := range bucket {
		if v := bucket[i].Value(channel); v != nil {
			values = append(values, *v)
		}
	}

	if len(values) == 0 {
		return ChannelStat{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		sqDiff += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sqDiff / float64(len(values)))

	value := roundTo(mean, decimals)
	minStd := roundTo(mean-std, decimals)
	maxStd := roundTo(mean+std, decimals)

	return ChannelStat{Value: &value, MinStd: &minStd, MaxStd: &maxStd}
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
