package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/middleware"
	"github.com/zkinzler/dfw-openings/pkg/models"
)

type fakeRuns struct {
	runs      []*models.IngestionRun
	lastLimit int
}

func (f *fakeRuns) Get(_ context.Context, id string) (*models.IngestionRun, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "ingestion run not found")
}

func (f *fakeRuns) ListRecent(_ context.Context, limit int) ([]*models.IngestionRun, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func TestRuns(t *testing.T) {
	fake := &fakeRuns{runs: []*models.IngestionRun{
		{ID: "run-2", Trigger: "kafka", Status: models.RunStatusCompleted, Total: 4},
		{ID: "run-1", Trigger: "api", Status: models.RunStatusFailed},
	}}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(fake).Register(e.Group("/api/v1/runs"))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*models.IngestionRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)
	assert.Equal(t, 5, fake.lastLimit)

	rec = get("/api/v1/runs/run-2")
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.IngestionRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 4, run.Total)

	assert.Equal(t, http.StatusNotFound, get("/api/v1/runs/missing").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/runs?limit=x").Code)
}
