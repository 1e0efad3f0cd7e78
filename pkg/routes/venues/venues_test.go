package venues

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	e    *echo.Echo
	proc *processor.Processor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	proc, err := processor.New(logger, registry.NewMemory(), rules.Default(),
		processor.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	h := NewHandler(proc)
	h.now = func() time.Time { return testNow }
	h.Register(e.Group("/api/v1/venues"))
	return &fixture{e: e, proc: proc}
}

func (f *fixture) seed(t *testing.T, recs ...models.SourceRecord) []*models.Venue {
	t.Helper()
	var out []*models.Venue
	for _, r := range recs {
		res, err := f.proc.Process(context.Background(), r)
		require.NoError(t, err)
		out = append(out, res.Venue)
	}
	return out
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func record(source models.SourceSystem, et models.EventType, date, name, address, city string) models.SourceRecord {
	return models.SourceRecord{
		Source:     source,
		EventType:  et,
		EventDate:  models.MustDate(date),
		RawName:    name,
		RawAddress: address,
		RawCity:    city,
	}
}

func TestList(t *testing.T) {
	f := setup(t)
	f.seed(t,
		record(models.SourceTABC, models.EventLicenseIssued, "2026-01-12", "Velvet Taproom", "12 Elm St", "Dallas"),
		record(models.SourceSalesTax, models.EventPermitFiled, "2026-01-10", "Joe's BBQ", "100 Main St", "Dallas"),
		record(models.SourcePlanoPermit, models.EventPermitFiled, "2025-05-01", "Ace Plumbing", "5 Oak St", "Plano"),
	)

	tests := []struct {
		name  string
		query string
		code  int
		names []string
	}{
		{name: "ranked", query: "", code: http.StatusOK, names: []string{"Velvet Taproom", "Joe's BBQ", "Ace Plumbing"}},
		{name: "city", query: "?city=PLANO", code: http.StatusOK, names: []string{"Ace Plumbing"}},
		{name: "category", query: "?category=bar", code: http.StatusOK, names: []string{"Velvet Taproom"}},
		{name: "min score", query: "?min_score=100", code: http.StatusOK, names: []string{"Velvet Taproom", "Joe's BBQ"}},
		{name: "limit and offset", query: "?limit=1&offset=1", code: http.StatusOK, names: []string{"Joe's BBQ"}},
		{name: "bad category", query: "?category=nightclub", code: http.StatusBadRequest},
		{name: "bad stage", query: "?stage=closed", code: http.StatusBadRequest},
		{name: "bad limit", query: "?limit=0", code: http.StatusBadRequest},
		{name: "bad min score", query: "?min_score=high", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/v1/venues"+tt.query, "")
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var venues []*models.Venue
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &venues))
			names := make([]string, len(venues))
			for i, v := range venues {
				names[i] = v.Name
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestGetAndLinks(t *testing.T) {
	f := setup(t)
	seeded := f.seed(t,
		record(models.SourceTABC, models.EventLicenseIssued, "2026-01-01", "Joe's BBQ LLC", "100 Main St", "Dallas"),
		record(models.SourceSalesTax, models.EventPermitFiled, "2026-01-10", "JOES BBQ", "100 Main Street", "DALLAS"),
	)
	id := seeded[0].ID

	rec := f.do(http.MethodGet, "/api/v1/venues/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v models.Venue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 2, v.LinkCount)

	rec = f.do(http.MethodGet, "/api/v1/venues/"+id+"/links", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var links []*models.VenueSourceLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &links))
	assert.Len(t, links, 2)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/venues/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/venues/missing/links", "").Code)
}

func TestEnrich(t *testing.T) {
	f := setup(t)
	seeded := f.seed(t, record(models.SourceSalesTax, models.EventPermitFiled, "2026-01-10", "Joe's BBQ", "100 Main St", "Dallas"))
	id := seeded[0].ID

	rec := f.do(http.MethodPut, "/api/v1/venues/"+id+"/enrichment", `{"phone":"214-555-0100","website":"https://joesbbq.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v models.Venue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "2145550100", v.Phone)
	assert.Equal(t, seeded[0].PriorityScore+20, v.PriorityScore)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/venues/"+id+"/enrichment", `{"latitude":123}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/venues/"+id+"/enrichment", `{`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, "/api/v1/venues/missing/enrichment", `{"phone":"2145550100"}`).Code)
}

func TestRescore(t *testing.T) {
	f := setup(t)
	f.seed(t, record(models.SourceSalesTax, models.EventPermitFiled, "2026-01-10", "Joe's BBQ", "100 Main St", "Dallas"))

	rec := f.do(http.MethodPost, "/api/v1/venues/rescore", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RescoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-01-15", resp.AsOf)
	assert.Equal(t, 0, resp.Changed)

	rec = f.do(http.MethodPost, "/api/v1/venues/rescore", `{"as_of":"2026-06-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Changed)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/venues/rescore", `{"as_of":"June"}`).Code)
}
