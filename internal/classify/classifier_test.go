package classify

import (
	"testing"

	"github.com/Krimson/vitals-monitory/pkg/models"
)

func f(v float64) *float64 { return &v }

func testThresholds() []models.ThresholdSet {
	return []models.ThresholdSet{
		{
			ThresholdsID: "th1",
			MinHR:        f(60),
			MaxHR:        f(140),
			MinTemp:      f(36.0),
			MaxTemp:      f(37.5),
			MinSpO2:      f(92),
			SetAt:        1000,
		},
	}
}

func findChannel(t *testing.T, window models.HistoryWindow, name string) models.ChannelReport {
	t.Helper()
	for _, channel := range window.Channels {
		if channel.Name == name {
			return channel
		}
	}
	t.Fatalf("Channel %s not found in window", name)
	return models.ChannelReport{}
}

func TestClassify_AbnormalWindow(t *testing.T) {
	classifier := NewClassifier(nil)

	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(80), ThresholdsID: "th1"},
		{Timestamp: 1800, HR: f(150), ThresholdsID: "th1"},
		{Timestamp: 3600, HR: f(82), ThresholdsID: "th1"},
	}

	windows := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(windows))
	}

	hr := findChannel(t, windows[0], "hr")
	if hr.IsNormal {
		t.Error("Expected hr channel marked abnormal (150 > 140)")
	}
	if hr.AbnormalMaxValue == nil || *hr.AbnormalMaxValue != 150 {
		t.Errorf("Expected abnormal max 150, got %v", hr.AbnormalMaxValue)
	}
	if hr.AbnormalMinValue == nil || *hr.AbnormalMinValue != 80 {
		t.Errorf("Expected abnormal min 80, got %v", hr.AbnormalMinValue)
	}
	if hr.TotalMean == nil || *hr.TotalMean != 104 {
		t.Errorf("Expected total mean 104, got %v", hr.TotalMean)
	}
}

func TestClassify_NormalWindowNeverFlagged(t *testing.T) {
	classifier := NewClassifier(nil)

	// Все значения строго внутри границ
	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(60), ThresholdsID: "th1"},
		{Timestamp: 60, HR: f(140), ThresholdsID: "th1"},
	}

	windows := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(windows))
	}

	hr := findChannel(t, windows[0], "hr")
	if !hr.IsNormal {
		t.Error("Window flagged abnormal without any value outside [min, max]")
	}
	if hr.AbnormalMinValue != nil || hr.AbnormalMaxValue != nil {
		t.Error("Normal window must not carry abnormal extremes")
	}
}

func TestClassify_SaturationMinBoundOnly(t *testing.T) {
	classifier := NewClassifier(nil)

	// У сатурации нет верхней границы — высокие значения не отклонение
	samples := []models.VitalSample{
		{Timestamp: 0, SpO2: f(100), ThresholdsID: "th1"},
	}
	windows := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if spo2 := findChannel(t, windows[0], "spo2"); !spo2.IsNormal {
		t.Error("High saturation must not be flagged on a min-only channel")
	}

	// Ниже нижней границы — отклонение
	samples = []models.VitalSample{
		{Timestamp: 0, SpO2: f(88), ThresholdsID: "th1"},
	}
	windows = classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if spo2 := findChannel(t, windows[0], "spo2"); spo2.IsNormal {
		t.Error("Saturation below min must be flagged")
	}
}

func TestClassify_GroupSplitting(t *testing.T) {
	classifier := NewClassifier(DefaultGroupFunc(600))

	// Разрыв больше 600с и смена порогов — отдельные окна
	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(80), ThresholdsID: "th1"},
		{Timestamp: 300, HR: f(81), ThresholdsID: "th1"},
		{Timestamp: 5000, HR: f(82), ThresholdsID: "th1"},
		{Timestamp: 5100, HR: f(83), ThresholdsID: "th2"},
	}

	windows := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 3 {
		t.Fatalf("Expected 3 windows, got %d", len(windows))
	}
	if windows[0].StartTimestamp != 0 || windows[0].EndTimestamp != 300 {
		t.Errorf("Unexpected first window bounds: [%d, %d]", windows[0].StartTimestamp, windows[0].EndTimestamp)
	}
	if windows[2].ThresholdsID != "th2" {
		t.Errorf("Expected third window thresholds th2, got %s", windows[2].ThresholdsID)
	}
}

func TestClassify_SortOrder(t *testing.T) {
	classifier := NewClassifier(DefaultGroupFunc(600))

	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(80), ThresholdsID: "th1"},
		{Timestamp: 5000, HR: f(82), ThresholdsID: "th1"},
	}

	asc := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if asc[0].StartTimestamp != 0 {
		t.Errorf("Expected ascending order, first window starts at %d", asc[0].StartTimestamp)
	}

	desc := classifier.Classify(samples, testThresholds(), FilterAll, OrderDescending)
	if desc[0].StartTimestamp != 5000 {
		t.Errorf("Expected descending order, first window starts at %d", desc[0].StartTimestamp)
	}
}

func TestClassify_ChannelFilter(t *testing.T) {
	classifier := NewClassifier(nil)

	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(80), Temp: f(36.6), ThresholdsID: "th1"},
	}

	windows := classifier.Classify(samples, testThresholds(), "hr", OrderAscending)
	if len(windows) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(windows))
	}

	// Остается отфильтрованный канал плюс заполнитель давления
	if len(windows[0].Channels) != 2 {
		t.Fatalf("Expected 2 channel reports (hr + bp), got %d", len(windows[0].Channels))
	}
	if windows[0].Channels[0].Name != "hr" {
		t.Errorf("Expected hr channel, got %s", windows[0].Channels[0].Name)
	}

	bp := findChannel(t, windows[0], "bp")
	if !bp.Disabled {
		t.Error("Blood pressure placeholder must be disabled")
	}
}

func TestClassify_FilterExcludesWindowsWithoutData(t *testing.T) {
	classifier := NewClassifier(nil)

	// Нет показаний дыхания — при фильтре rr окон быть не должно
	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(80), ThresholdsID: "th1"},
	}

	windows := classifier.Classify(samples, testThresholds(), "rr", OrderAscending)
	if len(windows) != 0 {
		t.Errorf("Expected no windows for channel without data, got %d", len(windows))
	}
}

func TestClassify_MissingThresholdSet(t *testing.T) {
	classifier := NewClassifier(nil)

	// Ссылка на неизвестный набор порогов — деградируем, не падаем
	samples := []models.VitalSample{
		{Timestamp: 0, HR: f(200), ThresholdsID: "missing"},
	}

	windows := classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(windows))
	}

	hr := findChannel(t, windows[0], "hr")
	if !hr.IsNormal {
		t.Error("Channel without thresholds must not be flagged abnormal")
	}
	if hr.AbnormalMinValue != nil || hr.AbnormalMaxValue != nil {
		t.Error("Channel without thresholds must not carry abnormal extremes")
	}
}

func TestClassify_EmptySamples(t *testing.T) {
	classifier := NewClassifier(nil)

	windows := classifier.Classify(nil, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 0 {
		t.Errorf("Expected no windows for empty input, got %d", len(windows))
	}

	// Одни заполнители — окон тоже нет
	samples := []models.VitalSample{
		{Timestamp: 0, ThresholdsID: "th1"},
		{Timestamp: 60, ThresholdsID: "th1"},
	}
	windows = classifier.Classify(samples, testThresholds(), FilterAll, OrderAscending)
	if len(windows) != 0 {
		t.Errorf("Expected no windows for gap fillers only, got %d", len(windows))
	}
}
