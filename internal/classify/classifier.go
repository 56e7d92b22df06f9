package classify

import (
	"sort"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

// Order — порядок сортировки окон по времени начала
type Order int

const (
	OrderAscending Order = iota
	OrderDescending
)

// FilterAll — фильтр "все каналы"
const FilterAll = "all"

// Псевдоканал давления: непрерывной телеметрией в этом конвейере не
// подкреплен, добавляется к каждому окну как выключенный заполнитель.
// Явный спецслучай, обобщать не нужно.
const bloodPressureChannel = "bp"

// GroupFunc решает, принадлежат ли два соседних сэмпла одному окну
// (правило "клинической непрерывности" задается извне)
type GroupFunc func(prev, next *models.VitalSample) bool

// DefaultGroupFunc — запасное правило: один набор порогов и разрыв
// не больше maxGapSeconds
func DefaultGroupFunc(maxGapSeconds int64) GroupFunc {
	return func(prev, next *models.VitalSample) bool {
		return prev.ThresholdsID == next.ThresholdsID &&
			next.Timestamp-prev.Timestamp <= maxGapSeconds
	}
}

// Classifier строит окна истории с разметкой нормы/отклонения по каналам
type Classifier struct {
	group GroupFunc
}

// NewClassifier создает классификатор; при nil используется правило
// по умолчанию с разрывом в 30 минут
func NewClassifier(group GroupFunc) *Classifier {
	if group == nil {
		group = DefaultGroupFunc(1800)
	}
	return &Classifier{group: group}
}

// Classify группирует сэмплы в окна и размечает каналы по порогам.
// Окно помечается отклонением только если хотя бы одно значение
// строго вышло за [min, max]; у каналов без max (сатурация)
// проверяется только нижняя граница. Отсутствующий набор порогов —
// валидные-но-неинформативные данные: канал остается нормальным,
// экстремумы не заполняются.
func (c *Classifier) Classify(samples []models.VitalSample, thresholds []models.ThresholdSet, filter string, order Order) []models.HistoryWindow {
	sets := make(map[string]*models.ThresholdSet, len(thresholds))
	for i := range thresholds {
		sets[thresholds[i].ThresholdsID] = &thresholds[i]
	}

	var windows []models.HistoryWindow
	for _, group := range c.groupSamples(samples) {
		if window, ok := c.buildWindow(group, sets, filter); ok {
			windows = append(windows, window)
		}
	}

	sort.Slice(windows, func(i, j int) bool {
		if order == OrderDescending {
			return windows[i].StartTimestamp > windows[j].StartTimestamp
		}
		return windows[i].StartTimestamp < windows[j].StartTimestamp
	})

	return windows
}

// groupSamples режет последовательность на непрерывные группы
func (c *Classifier) groupSamples(samples []models.VitalSample) [][]models.VitalSample {
	var groups [][]models.VitalSample
	var current []models.VitalSample

	for i := range samples {
		// Заполнители без показаний окна не образуют
		if samples[i].IsEmpty() {
			continue
		}
		if len(current) > 0 && !c.group(&current[len(current)-1], &samples[i]) {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, samples[i])
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

func (c *Classifier) buildWindow(group []models.VitalSample, sets map[string]*models.ThresholdSet, filter string) (models.HistoryWindow, bool) {
	thresholdsID := group[0].ThresholdsID
	set := sets[thresholdsID] // может отсутствовать

	window := models.HistoryWindow{
		StartTimestamp: group[0].Timestamp,
		EndTimestamp:   group[len(group)-1].Timestamp,
		ThresholdsID:   thresholdsID,
	}

	for _, channel := range models.TelemetryChannels {
		if filter != FilterAll && filter != channel.String() {
			continue
		}
		if report, ok := channelReport(group, channel, set); ok {
			window.Channels = append(window.Channels, report)
		}
	}

	// Окна без данных по запрошенным каналам из результата исключаются
	if len(window.Channels) == 0 {
		return models.HistoryWindow{}, false
	}

	window.Channels = append(window.Channels, models.ChannelReport{
		Name:     bloodPressureChannel,
		IsNormal: true,
		Disabled: true,
	})

	return window, true
}

// channelReport размечает один канал внутри окна.
// ok=false — показаний по каналу в окне нет.
func channelReport(group []models.VitalSample, channel models.Channel, set *models.ThresholdSet) (models.ChannelReport, bool) {
	var values []float64
	for i := range group {
		if v := group[i].Value(channel); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return models.ChannelReport{}, false
	}

	observedMin, observedMax := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < observedMin {
			observedMin = v
		}
		if v > observedMax {
			observedMax = v
		}
	}
	mean := sum / float64(len(values))

	report := models.ChannelReport{
		Name:      channel.String(),
		IsNormal:  true,
		TotalMean: &mean,
	}

	if set == nil {
		// Нет набора порогов — судить о норме не по чему
		return report, true
	}

	min, max := set.Bounds(channel)
	for _, v := range values {
		if (min != nil && v < *min) || (max != nil && v > *max) {
			report.IsNormal = false
			break
		}
	}

	if !report.IsNormal {
		report.AbnormalMinValue = &observedMin
		report.AbnormalMaxValue = &observedMax
	}

	return report, true
}
