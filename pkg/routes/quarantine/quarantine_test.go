package quarantine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/middleware"
	"github.com/zkinzler/dfw-openings/pkg/models"
	q "github.com/zkinzler/dfw-openings/pkg/quarantine"
)

func TestList(t *testing.T) {
	store := q.NewMemory(10)
	ctx := context.Background()
	for _, reason := range []string{"first", "second", "third"} {
		require.NoError(t, store.Add(ctx, q.NewEntry(q.StageValidate, errors.New(reason), map[string]string{"raw_name": ""})))
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(store).Register(e.Group("/api/v1/quarantine"))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/v1/quarantine?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []*models.QuarantinedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Reason)

	rec = get("/api/v1/quarantine")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)

	rec = get("/api/v1/quarantine?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body.Message, "HTTP Error")
}
