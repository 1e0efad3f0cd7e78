package quarantine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name   string
		record any
		want   string
	}{
		{name: "struct", record: models.SourceRecord{Source: models.SourceTABC, RawName: "x"}, want: `"source":"TABC"`},
		{name: "valid json bytes", record: []byte(`{"a":1}`), want: `{"a":1}`},
		{name: "invalid bytes kept as string", record: []byte(`{not json`), want: `"{not json"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry(StageValidate, errors.New("bad"), tt.record)
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, "bad", e.Reason)
			assert.Equal(t, StageValidate, e.Stage)
			assert.Contains(t, string(e.Record), tt.want)
			assert.False(t, e.RecordedAt.IsZero())
		})
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(2)

	for _, reason := range []string{"one", "two", "three"} {
		require.NoError(t, q.Add(ctx, NewEntry(StageMerge, errors.New(reason), nil)))
	}

	all, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "three", all[0].Reason)
	assert.Equal(t, "two", all[1].Reason)

	one, err := q.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "three", one[0].Reason)
}
