package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whole-tale/girder-wt-data-manager/internal/models"
)

func i64(v int64) *int64 { return &v }

func TestProgress(t *testing.T) {
	tests := []struct {
		name        string
		transferred *int64
		size        *int64
		want        int
	}{
		{"half", i64(50), i64(100), 50},
		{"zero transferred", i64(0), i64(100), 0},
		{"zero size", i64(50), i64(0), 0},
		{"both zero", i64(0), i64(0), 0},
		{"transferred absent", nil, i64(100), 0},
		{"size absent", i64(50), nil, 0},
		{"both absent", nil, nil, 0},
		{"rounds down", i64(1), i64(3), 33},
		{"rounds up", i64(2), i64(3), 67},
		{"half rounds up", i64(1), i64(200), 1},
		{"complete", i64(4096), i64(4096), 100},
		{"overshoot is not clamped", i64(150), i64(100), 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Progress(tt.transferred, tt.size))
		})
	}
}

func TestAnnotate(t *testing.T) {
	rec := models.TransferRecord{
		ID:          "t1",
		Status:      models.TransferTransferring,
		Size:        i64(100),
		Transferred: i64(50),
	}

	got, err := Annotate(rec)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, "Transferring", got.StringStatus)
	assert.Equal(t, rec, got.TransferRecord)
}

func TestAnnotate_Idempotent(t *testing.T) {
	rec := models.TransferRecord{ID: "t1", Status: models.TransferDone, Size: i64(10), Transferred: i64(7)}

	once, err := Annotate(rec)
	require.NoError(t, err)
	twice, err := Annotate(once.TransferRecord)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestAnnotate_UnknownStatus(t *testing.T) {
	_, err := Annotate(models.TransferRecord{ID: "bad", Status: 12})
	assert.ErrorIs(t, err, models.ErrUnknownStatus)
}

func TestAnnotateAll_SkipsInvalid(t *testing.T) {
	recs := []models.TransferRecord{
		{ID: "a", Status: models.TransferQueued},
		{ID: "b", Status: 99},
		{ID: "c", Status: models.TransferFailed},
	}

	out, errs := AnnotateAll(recs)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], models.ErrUnknownStatus)
}

func TestSummarize(t *testing.T) {
	out, errs := AnnotateAll([]models.TransferRecord{
		{ID: "a", Status: models.TransferTransferring, Size: i64(100), Transferred: i64(40)},
		{ID: "b", Status: models.TransferDone, Size: i64(10), Transferred: i64(10)},
		{ID: "c", Status: models.TransferFailed},
		{ID: "d", Status: models.TransferQueued},
	})
	require.Empty(t, errs)

	s := Summarize(out)
	assert.Equal(t, 4, s.Total)
	assert.EqualValues(t, 110, s.Bytes)
	assert.EqualValues(t, 50, s.Transferred)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Active())
}
