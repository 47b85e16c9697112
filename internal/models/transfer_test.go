package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFor_KnownCodes(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Initializing"},
		{1, "Queued"},
		{2, "Transferring"},
		{3, "Done"},
		{4, "Failed"},
	}

	for _, tt := range tests {
		got, err := LabelFor(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		again, err := LabelFor(tt.code)
		require.NoError(t, err)
		assert.Equal(t, got, again, "label for %d should be stable", tt.code)
	}
}

func TestLabelFor_UnknownCodes(t *testing.T) {
	for _, code := range []int{-1, 5, 42, 1 << 20} {
		label, err := LabelFor(code)
		assert.Empty(t, label)
		assert.ErrorIs(t, err, ErrUnknownStatus, "code %d", code)
	}
}

func TestTransferStatus_String(t *testing.T) {
	assert.Equal(t, "Done", TransferDone.String())
	assert.Equal(t, "TransferStatus(9)", TransferStatus(9).String())
	assert.True(t, TransferFailed.Terminal())
	assert.False(t, TransferQueued.Terminal())
}

func TestTransferRecord_Unmarshal(t *testing.T) {
	body := []byte(`{"_id":"5a1","ownerId":"u1","sessionId":"s1","itemId":"i1",
		"status":2,"error":null,"size":100,"transferred":50,"path":"/coll/a.txt"}`)

	var rec TransferRecord
	require.NoError(t, rec.UnmarshalJSON(body))

	assert.Equal(t, "5a1", rec.ID)
	assert.Equal(t, "u1", rec.OwnerID)
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, "i1", rec.ItemID)
	assert.Equal(t, TransferTransferring, rec.Status)
	assert.Nil(t, rec.Error)
	require.NotNil(t, rec.Size)
	require.NotNil(t, rec.Transferred)
	assert.EqualValues(t, 100, *rec.Size)
	assert.EqualValues(t, 50, *rec.Transferred)
	assert.Equal(t, "/coll/a.txt", rec.Path)
}

func TestTransferRecord_UnmarshalTimes(t *testing.T) {
	body := []byte(`{"_id":"t","status":3,"startTime":"2024-03-01T12:00:00.250000",
		"endTime":{"$date":1709294465250}}`)

	var rec TransferRecord
	require.NoError(t, rec.UnmarshalJSON(body))

	require.NotNil(t, rec.StartTime)
	require.NotNil(t, rec.EndTime)
	assert.True(t, time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC).Equal(*rec.StartTime))
	assert.True(t, time.Date(2024, 3, 1, 12, 1, 5, 250_000_000, time.UTC).Equal(*rec.EndTime))

	d, ok := rec.Elapsed(time.Now())
	assert.True(t, ok)
	assert.Equal(t, 65*time.Second, d)
}

func TestTransferRecord_UnmarshalTimeVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2024-03-01T12:00:00Z"`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"offset", `"2024-03-01T13:00:00+01:00"`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"space separated", `"2024-03-01 12:00:00"`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec TransferRecord
			require.NoError(t, rec.UnmarshalJSON([]byte(`{"_id":"t","status":1,"startTime":`+tt.in+`}`)))
			require.NotNil(t, rec.StartTime)
			assert.True(t, tt.want.Equal(*rec.StartTime), "got %s", rec.StartTime)
			assert.Nil(t, rec.EndTime)
		})
	}

	var rec TransferRecord
	assert.Error(t, rec.UnmarshalJSON([]byte(`{"_id":"t","status":1,"startTime":"yesterday"}`)))
}

func TestTransferRecord_Elapsed(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)

	_, ok := TransferRecord{}.Elapsed(now)
	assert.False(t, ok, "no start time")

	d, ok := TransferRecord{StartTime: &start}.Elapsed(now)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d, "running transfers count up to now")

	_, ok = TransferRecord{StartTime: &start}.Elapsed(start.Add(-time.Second))
	assert.False(t, ok, "clock behind the server")
}

func TestTransferRecord_UnmarshalMissingStatus(t *testing.T) {
	var rec TransferRecord
	err := rec.UnmarshalJSON([]byte(`{"_id":"x"}`))
	assert.Error(t, err)
}

func TestContainerRecord_UnmarshalKeepsMetadata(t *testing.T) {
	body := []byte(`{"_id":1000,"error":"Failed to start","status":"Running","mountId":"m-1","image":"wt/base"}`)

	var rec ContainerRecord
	require.NoError(t, rec.UnmarshalJSON(body))

	assert.Equal(t, "1000", rec.ID)
	assert.Equal(t, ContainerRunning, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "Failed to start", *rec.Error)
	require.NotNil(t, rec.MountID)
	assert.Equal(t, "m-1", *rec.MountID)
	require.Contains(t, rec.Metadata, "image")
	assert.JSONEq(t, `"wt/base"`, string(rec.Metadata["image"]))
}

func TestDecodeList_RejectsUnknownStatus(t *testing.T) {
	body := []byte(`[
		{"_id":"a","status":1},
		{"_id":"b","status":7},
		{"_id":"c","status":3}
	]`)

	recs, err := DecodeList[TransferRecord]("dm/transfer", body)
	assert.Nil(t, recs)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Records, 1)
	assert.Equal(t, 1, verr.Records[0].Index)
	assert.Equal(t, "b", verr.Records[0].ID)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestDecodeList_RejectsMissingID(t *testing.T) {
	_, err := DecodeList[ContainerRecord]("dm/testing/container", []byte(`[{"status":"Running"}]`))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dm/testing/container", verr.Resource)
}

func TestDecodeList_Valid(t *testing.T) {
	recs, err := DecodeList[ContainerRecord]("dm/testing/container",
		[]byte(`[{"_id":1000,"error":null},{"_id":{"$oid":"5b0"},"status":"Stopped"}]`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1000", recs[0].ID)
	assert.Equal(t, "5b0", recs[1].ID)
	assert.Equal(t, ContainerStopped, recs[1].Status)
}

func TestDecodeList_NotAnArray(t *testing.T) {
	_, err := DecodeList[TransferRecord]("dm/transfer", []byte(`{"message":"nope"}`))
	assert.Error(t, err)
}

func TestSessionRecord_Unmarshal(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		id    string
		items int
	}{
		{"with data set", `{"_id":"s1","ownerId":"u","dataSet":[{"itemId":"a"},{"itemId":"b"}]}`, "s1", 2},
		{"null data set", `{"_id":"s2","ownerId":"u","dataSet":null}`, "s2", 0},
		{"no data set", `{"_id":7}`, "7", 0},
		{"odd data set", `{"_id":"s3","dataSet":"[]"}`, "s3", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec SessionRecord
			require.NoError(t, rec.UnmarshalJSON([]byte(tt.body)))
			assert.Equal(t, tt.id, rec.ID)
			assert.Equal(t, tt.items, rec.Items())
		})
	}

	_, err := DecodeList[SessionRecord]("dm/session", []byte(`[{"ownerId":"u"}]`))
	assert.Error(t, err)
}
