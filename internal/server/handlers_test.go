package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/ledger"
	"github.com/clipflow/pipeline/internal/queue"
	"github.com/clipflow/pipeline/internal/service"
)

type testServer struct {
	handler http.Handler
	store   *job.MemoryStore
	ledger  *ledger.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := job.NewMemoryStore()
	led := ledger.NewMemoryLedger(time.Hour)
	svc := service.NewJobService(store, queue.NewMemoryQueue(16), led, logger)
	h := NewHandlers(svc, logger)
	return &testServer{
		handler: NewRouter(h, prometheus.NewRegistry(), logger),
		store:   store,
		ledger:  led,
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/jobs", CreateJobRequest{
		Type:     "media-export",
		InputRef: "media/input.mp4",
		Params:   json.RawMessage(`{"resolution":"720p","quality":"high"}`),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "QUEUED", resp.Status)

	stored, err := ts.store.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, job.TypeMediaExport, stored.Type)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestCreateJob_UnknownType(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/jobs", CreateJobRequest{
		Type:     "resize",
		InputRef: "media/input.mp4",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_JOB_TYPE", resp.Code)
}

func TestCreateJob_BadParams(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/jobs", CreateJobRequest{
		Type:     "media-export",
		InputRef: "media/input.mp4",
		Params:   json.RawMessage(`{"resolution":"144p","quality":"high"}`),
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := job.New(job.TypeTranscription, "media/talk.mp4", nil)
	require.NoError(t, ts.store.Create(ctx, created))

	rec := ts.do(http.MethodGet, "/jobs/"+created.ID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, "transcription", resp.Type)
	assert.Equal(t, "QUEUED", resp.Status)
	assert.Zero(t, resp.Progress)
}

func TestGetJob_LedgerProgress(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := job.New(job.TypeTranscription, "media/talk.mp4", nil)
	require.NoError(t, ts.store.Create(ctx, created))
	_, err := ts.store.Claim(ctx, created.ID)
	require.NoError(t, err)

	eta := 90
	require.NoError(t, ts.ledger.Set(ctx, created.ID, ledger.Progress{
		Percent: 35, StageLabel: "transcribing audio", ETASeconds: &eta,
	}))

	rec := ts.do(http.MethodGet, "/jobs/"+created.ID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "PROCESSING", resp.Status)
	assert.Equal(t, 35, resp.Progress)
	assert.Equal(t, "transcribing audio", resp.StageLabel)
	require.NotNil(t, resp.ETASeconds)
	assert.Equal(t, 90, *resp.ETASeconds)
}

func TestGetJob_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/jobs/job-missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.store.Create(ctx, job.New(job.TypeTranscription, "a.mp4", nil)))
	require.NoError(t, ts.store.Create(ctx, job.New(job.TypeHighlightDetection, "b.mp4", nil)))

	rec := ts.do(http.MethodGet, "/jobs", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)
}

func TestCancelJob(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := job.New(job.TypeTranscription, "a.mp4", nil)
	require.NoError(t, ts.store.Create(ctx, created))

	rec := ts.do(http.MethodPost, "/jobs/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := ts.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, stored.Status)

	// Cancelling again conflicts: the job is already finished.
	rec = ts.do(http.MethodPost, "/jobs/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_FINISHED", resp.Code)
}

func TestDeleteJob(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := job.New(job.TypeTranscription, "a.mp4", nil)
	require.NoError(t, ts.store.Create(ctx, created))

	// Still queued: refused.
	rec := ts.do(http.MethodDelete, "/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "JOB_ACTIVE", resp.Code)

	require.NoError(t, ts.store.Cancel(ctx, created.ID))

	rec = ts.do(http.MethodDelete, "/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := ts.store.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestDeleteJob_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, "/jobs/job-missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
