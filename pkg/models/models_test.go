package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in   string
		want EventType
	}{
		{"license_issued", EventLicenseIssued},
		{" Occupancy_Issued ", EventOccupancyIssued},
		{"co_issued", EventOccupancyIssued},
		{"permit_issued", EventPermitFiled},
		{"fire_permit", EventPermitFiled},
		{"something_new", EventOther},
		{"", EventOther},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEventType(tt.in))
		})
	}
}

func TestStageRank(t *testing.T) {
	assert.Less(t, StageUnknown.Rank(), StagePermitting.Rank())
	assert.Less(t, StagePermitting.Rank(), StageOpeningSoon.Rank())
	assert.Less(t, StageOpeningSoon.Rank(), StageOpen.Rank())
	assert.Equal(t, -1, Stage("bogus").Rank())

	assert.Equal(t, StageOpeningSoon, MaxStage(StageOpeningSoon, StagePermitting))
	assert.Equal(t, StageOpen, MaxStage(StagePermitting, StageOpen))
}

func TestSourceSystem(t *testing.T) {
	assert.True(t, SourceTABC.Valid())
	assert.False(t, SourceSystem("NOPE").Valid())
	assert.True(t, SourcePlanoPermit.IsCityPermit())
	assert.False(t, SourceDallasCO.IsCityPermit())
}

func TestDate(t *testing.T) {
	t.Run("parses plain and rfc3339", func(t *testing.T) {
		d, err := ParseDate("2025-03-01")
		require.NoError(t, err)
		assert.Equal(t, "2025-03-01", d.String())

		d, err = ParseDate("2025-03-01T18:30:00Z")
		require.NoError(t, err)
		assert.Equal(t, "2025-03-01", d.String())

		_, err = ParseDate("03/01/2025")
		assert.Error(t, err)
	})

	t.Run("json round trip", func(t *testing.T) {
		b, err := json.Marshal(MustDate("2024-12-31"))
		require.NoError(t, err)
		assert.Equal(t, `"2024-12-31"`, string(b))

		var d Date
		require.NoError(t, json.Unmarshal(b, &d))
		assert.True(t, d.Equal(MustDate("2024-12-31").Time))
	})

	t.Run("days until", func(t *testing.T) {
		d := MustDate("2025-01-01")
		now := time.Date(2025, 1, 8, 23, 0, 0, 0, time.UTC)
		assert.Equal(t, 7, d.DaysUntil(now))
	})
}

func TestSourceRecordValidate(t *testing.T) {
	base := SourceRecord{
		Source:     SourceTABC,
		EventType:  EventLicenseIssued,
		EventDate:  MustDate("2025-01-01"),
		RawName:    "Joe's Bar",
		RawAddress: "100 Main St",
		RawCity:    "Dallas",
	}
	require.NoError(t, base.Validate())

	t.Run("name only is fine", func(t *testing.T) {
		rec := base
		rec.RawAddress = ""
		assert.NoError(t, rec.Validate())
	})

	t.Run("address only is fine", func(t *testing.T) {
		rec := base
		rec.RawName = "   "
		assert.NoError(t, rec.Validate())
	})

	t.Run("blank name and address is malformed", func(t *testing.T) {
		rec := base
		rec.RawName = " "
		rec.RawAddress = "\t"
		err := rec.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedRecord))
	})

	t.Run("missing date is malformed", func(t *testing.T) {
		rec := base
		rec.EventDate = Date{}
		assert.ErrorIs(t, rec.Validate(), ErrMalformedRecord)
	})

	t.Run("unknown source is malformed", func(t *testing.T) {
		rec := base
		rec.Source = "NOPE"
		assert.ErrorIs(t, rec.Validate(), ErrMalformedRecord)
	})
}

func TestSourceRecordUnmarshalLegacyEventType(t *testing.T) {
	var rec SourceRecord
	err := json.Unmarshal([]byte(`{"source":"DALLAS_CO","event_type":"co_issued","event_date":"2025-02-03","raw_name":"Taco Spot","raw_city":"Dallas"}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, EventOccupancyIssued, rec.EventType)
	assert.Equal(t, SourceDallasCO, rec.Source)
	assert.Equal(t, "2025-02-03", rec.EventDate.String())
	assert.Equal(t, "Taco Spot", rec.RawName)
}

func TestBatchSummaryAdd(t *testing.T) {
	var s BatchSummary
	s.Add(&ProcessResult{Created: true, LinkAppended: true, HotLead: true})
	s.Add(&ProcessResult{LinkAppended: true, Ambiguous: true, Created: true})
	s.Add(&ProcessResult{LinkAppended: true})
	s.Add(&ProcessResult{Duplicate: true})

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Created)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, 1, s.Ambiguous)
	assert.Equal(t, 1, s.HotLeads)
}
