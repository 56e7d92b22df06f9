package history

import (
	"context"
	"fmt"
	"time"

	"github.com/Krimson/vitals-monitory/pkg/models"
	"github.com/go-resty/resty/v2"
)

// Fetcher — эндпоинт истории (внешний, конвейером не владеется)
type Fetcher interface {
	FetchHistory(ctx context.Context, patientID string, start, end time.Time) (*models.FetchResult, error)
}

// HTTPFetcher ходит за историей по HTTP.
// Авто-ретраев нет намеренно: неудачный фетч логируется выше, курсор
// не двигается, следующий триггер повторит то же окно сам.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher создает клиента эндпоинта истории
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &HTTPFetcher{client: client}
}

// FetchHistory запрашивает сэмплы и пороги за окно [start, end]
func (f *HTTPFetcher) FetchHistory(ctx context.Context, patientID string, start, end time.Time) (*models.FetchResult, error) {
	var result models.FetchResult

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"patientId": patientID,
			"startDate": start.UTC().Format(time.RFC3339),
			"endDate":   end.UTC().Format(time.RFC3339),
		}).
		SetResult(&result).
		Get("/api/history")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("history endpoint returned %s", resp.Status())
	}

	return &result, nil
}
