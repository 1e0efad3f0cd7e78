package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/middleware"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/processor"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/rules"
)

func setup(t *testing.T) (*echo.Echo, *registry.Memory) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := registry.NewMemory()
	proc, err := processor.New(logger, store, rules.Default())
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(proc, 0).Register(e.Group("/api/v1/records"))
	return e, store
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIngest(t *testing.T) {
	e, store := setup(t)

	body := `[
		{"source":"TABC","event_type":"license_issued","event_date":"2026-01-01","raw_name":"Joe's BBQ LLC","raw_address":"100 Main St","raw_city":"Dallas"},
		{"source":"SALES_TAX","event_type":"permit_filed","event_date":"2026-01-10","raw_name":"JOES BBQ","raw_address":"100 Main Street","raw_city":"DALLAS"},
		{"source":"MANUAL","event_type":"manual_verification","event_date":"2026-01-11","raw_name":"","raw_address":"","raw_city":"Dallas"}
	]`
	rec := post(e, "/api/v1/records", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary models.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Rejected)

	venues, err := store.ListVenues(context.Background(), models.VenueFilter{})
	require.NoError(t, err)
	assert.Len(t, venues, 1)
}

func TestIngest_BadBodies(t *testing.T) {
	e, _ := setup(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "not json", body: "nope", code: http.StatusBadRequest},
		{name: "empty", body: "", code: http.StatusBadRequest},
		{name: "empty array", body: "[]", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, post(e, "/api/v1/records", tt.body).Code)
		})
	}
}

func TestIngest_TooLarge(t *testing.T) {
	e, _ := setup(t)

	one := `{"source":"TABC","event_type":"license_issued","event_date":"2026-01-01","raw_name":"A","raw_city":"Dallas"}`
	parts := make([]string, DefaultMaxBatchSize+1)
	for i := range parts {
		parts[i] = one
	}
	rec := post(e, "/api/v1/records", "["+strings.Join(parts, ",")+"]")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreview(t *testing.T) {
	e, store := setup(t)

	rec := post(e, "/api/v1/records/preview", `{"source":"TABC","event_type":"license_issued","event_date":"2026-01-01","raw_name":"Velvet Taproom","raw_address":"12 Elm St","raw_city":"dallas"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview processor.Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, models.CategoryBar, preview.Category)
	assert.Equal(t, "Dallas", preview.DisplayCity)

	venues, err := store.ListVenues(context.Background(), models.VenueFilter{})
	require.NoError(t, err)
	assert.Empty(t, venues)

	rec = post(e, "/api/v1/records/preview", `{"source":"TABC","event_date":"2026-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
