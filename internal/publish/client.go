package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/ratelimit"
)

const maxAttempts = 5

// Client posts finished batches to the downstream import API.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type batchPayload struct {
	RunID   int    `json:"runId"`
	TraceID string `json:"traceId"`
	internal.ArticulationBatch
}

// ImportResult is what the import API reports back for one batch.
type ImportResult struct {
	BatchID  string `json:"batchId"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ImportTimeoutMs) * time.Millisecond},
		limiter:    ratelimit.NewRateLimiter(cfg.ImportRateLimitRPS),
	}
}

func (c *Client) PublishBatch(ctx context.Context, run internal.RunRow, batch internal.ArticulationBatch) (ImportResult, error) {
	body, err := json.Marshal(batchPayload{RunID: run.ID, TraceID: run.TraceID, ArticulationBatch: batch})
	if err != nil {
		return ImportResult{}, err
	}
	data, err := c.postJSON(ctx, "articulations/batches", body)
	if err != nil {
		return ImportResult{}, err
	}
	var out ImportResult
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &out); err != nil {
			return ImportResult{}, err
		}
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	if err := c.cfg.Require("IMPORT_API_TOKEN", c.cfg.ImportAPIToken); err != nil {
		return nil, err
	}
	if err := c.cfg.Require("IMPORT_API_BASE_URL", c.cfg.ImportAPIBaseURL); err != nil {
		return nil, err
	}
	target := strings.TrimRight(c.cfg.ImportAPIBaseURL, "/") + "/" + endpoint

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.ImportAPIToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxAttempts {
				if err := sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("import status %d", resp.StatusCode)
				if err := sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("import api error: status=%d body=%s", resp.StatusCode, string(respBody))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("import api unsuccessful: %s %s", apiResp.Message, string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("import request failed")
	}
	return nil, lastErr
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
