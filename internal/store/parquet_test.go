package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquet_WriteRead(t *testing.T) {
	device := identity.New()
	ts := time.UnixMilli(time.Now().UnixMilli())
	in := make([]SolutionRecord, 300)
	for i := range in {
		in[i] = SolutionRecord{
			ID:          identity.New().String(),
			DeviceID:    device,
			ImageBase64: "aW1n",
			ImageHash:   "hash",
			Solution:    "x = 4",
			Bookmarked:  i%2 == 0,
			CreatedAt:   ts.Add(time.Duration(i) * time.Second),
		}
	}

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, in))

	out, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, out, len(in))
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.Equal(t, device, out[299].DeviceID)
	assert.True(t, out[298].Bookmarked)
	assert.False(t, out[299].Bookmarked)
	assert.True(t, in[150].CreatedAt.Equal(out[150].CreatedAt))
}

func TestParquet_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, nil))
	out, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParquet_NotParquet(t *testing.T) {
	data := []byte("not a parquet file")
	_, err := ReadParquet(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}
