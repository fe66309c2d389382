package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/TheMichaelB/chatsync/internal/config"
	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
)

// HTTPFetcher pulls history batches from the bridge's REST endpoint.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	logger  *events.Logger
}

// NewHTTPFetcher creates a fetcher against the bridge API.
func NewHTTPFetcher(cfg *config.BridgeConfig, logger *events.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger.WithField("component", "http_fetcher"),
	}
}

// FetchBatch requests one page of history records for a chat.
func (f *HTTPFetcher) FetchBatch(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", models.ErrValidation, batchSize)
	}

	q := url.Values{}
	q.Set("chat_jid", targetID)
	q.Set("limit", strconv.Itoa(batchSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	reqURL := f.baseURL + "/history/messages?" + q.Encode()

	f.logger.WithFields(map[string]interface{}{
		"target_id": targetID,
		"cursor":    cursor,
		"limit":     batchSize,
	}).Debug("Fetching history batch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.TransientError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &models.TransientError{
			Op:  "fetch",
			Err: fmt.Errorf("bridge returned %d: %s", resp.StatusCode, body),
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bridge returned %d: %s", resp.StatusCode, body)
	}

	var batch models.RecordBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	return &batch, nil
}
