package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testConfig() config.Config {
	return config.Config{
		ImportAPIBaseURL:   "https://example.test/api/v1",
		ImportAPIToken:     "test",
		ImportTimeoutMs:    1000,
		ImportRateLimitRPS: 1000,
	}
}

func testBatch() internal.ArticulationBatch {
	return internal.ArticulationBatch{
		SourceInstitution: "DAC",
		DestInstitution:   "UCB",
		Entries: []internal.ArticulationEntry{{
			SourceCode: "MATH 3A", SourceName: "Calculus I", SourceUnits: "4",
			DestCode: "MATH 51", DestName: "Calculus", Relationship: internal.RelationshipNone,
		}},
	}
}

func TestPublishBatchWithRetry(t *testing.T) {
	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/articulations/batches" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test" {
				t.Fatalf("auth=%q", r.Header.Get("Authorization"))
			}
			attempt++
			if attempt == 1 {
				return jsonResponse(http.StatusServiceUnavailable, `{"error":"busy"}`), nil
			}

			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload["traceId"] != "trace-1" || payload["sourceInstitution"] != "DAC" {
				t.Fatalf("payload=%v", payload)
			}
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"batchId":"b-1","imported":1,"skipped":0}}`), nil
		}),
	}

	res, err := client.PublishBatch(context.Background(), internal.RunRow{ID: 7, TraceID: "trace-1"}, testBatch())
	require.NoError(t, err)
	require.Equal(t, 2, attempt)
	require.Equal(t, "b-1", res.BatchID)
	require.Equal(t, 1, res.Imported)
}

func TestPublishBatchRejected(t *testing.T) {
	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempt++
			return jsonResponse(http.StatusBadRequest, `{"success":false}`), nil
		}),
	}

	_, err := client.PublishBatch(context.Background(), internal.RunRow{ID: 1}, testBatch())
	require.ErrorContains(t, err, "status=400")
	require.Equal(t, 1, attempt)

	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"success":false,"message":"unknown institution","errors":["UCB"]}`), nil
		}),
	}
	_, err = client.PublishBatch(context.Background(), internal.RunRow{ID: 1}, testBatch())
	require.ErrorContains(t, err, "unknown institution")
}

func TestPublishBatchRetriesTransportErrors(t *testing.T) {
	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempt++
			if attempt == 1 {
				return nil, errors.New("connection reset")
			}
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"batchId":"b-2","imported":1,"skipped":0}}`), nil
		}),
	}

	res, err := client.PublishBatch(context.Background(), internal.RunRow{ID: 3}, testBatch())
	require.NoError(t, err)
	require.Equal(t, 2, attempt)
	require.Equal(t, "b-2", res.BatchID)
}

func TestPublishBatchStopsBackoffOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempt++
			cancel()
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"busy"}`), nil
		}),
	}

	_, err := client.PublishBatch(ctx, internal.RunRow{ID: 4}, testBatch())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempt)
}

func TestPublishBatchRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.ImportAPIToken = ""
	_, err := NewClient(cfg).PublishBatch(context.Background(), internal.RunRow{}, testBatch())
	require.ErrorContains(t, err, "IMPORT_API_TOKEN")
}

func TestPublishRunMarksRunPublished(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	runID, err := db.SaveRun(internal.RunRow{
		TraceID: "trace-9", SourceInstitution: "DAC", DestInstitution: "UCB", InputRef: "page.html",
		Status: "completed", TimingsJSON: "{}", CountsJSON: "{}",
	}, testBatch().Entries, nil)
	require.NoError(t, err)

	svc := NewService(db, testConfig(), nil)
	svc.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"batchId":"b-9","imported":1}}`), nil
		}),
	}

	res, err := svc.PublishRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, "b-9", res.BatchID)

	run, err := db.MustRun(runID)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, run.Status)
}
