package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

func TestGenerateIsOrderIndependent(t *testing.T) {
	a := Generate(map[string]any{"a": 1, "b": map[string]any{"x": "y", "z": []any{1, 2}}})
	b := Generate(map[string]any{"b": map[string]any{"z": []any{1, 2}, "x": "y"}, "a": 1})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := Generate(map[string]any{"a": 2, "b": map[string]any{"x": "y", "z": []any{1, 2}}})
	assert.NotEqual(t, a, c)
}

func TestForRecord(t *testing.T) {
	rec := models.SourceRecord{
		Source:     models.SourceTABC,
		EventType:  models.EventLicenseIssued,
		EventDate:  models.MustDate("2025-01-10"),
		RawName:    "Joe's Bar",
		RawAddress: "100 Main St",
		RawCity:    "Dallas",
		Payload:    []byte(`{"license_type":"MB"}`),
	}

	t.Run("payload and city do not affect identity", func(t *testing.T) {
		other := rec
		other.Payload = []byte(`{"license_type":"BG"}`)
		other.RawCity = "DALLAS"
		assert.Equal(t, ForRecord(rec), ForRecord(other))
	})

	t.Run("surrounding whitespace ignored", func(t *testing.T) {
		other := rec
		other.RawName = "  Joe's Bar "
		assert.Equal(t, ForRecord(rec), ForRecord(other))
	})

	t.Run("identifying fields change the fingerprint", func(t *testing.T) {
		for _, mutate := range []func(*models.SourceRecord){
			func(r *models.SourceRecord) { r.Source = models.SourceSalesTax },
			func(r *models.SourceRecord) { r.EventType = models.EventPermitFiled },
			func(r *models.SourceRecord) { r.EventDate = models.MustDate("2025-01-11") },
			func(r *models.SourceRecord) { r.RawName = "Joe's Pub" },
			func(r *models.SourceRecord) { r.RawAddress = "101 Main St" },
		} {
			other := rec
			mutate(&other)
			assert.NotEqual(t, ForRecord(rec), ForRecord(other))
		}
	})
}
