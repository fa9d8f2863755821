package identity

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id := New()
	parsed, err := Parse("  " + id.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.True(t, id.Valid())

	for _, bad := range []string{"", "unknown-1234", "00000000-0000-0000-0000-000000000000"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidDeviceID, bad)
	}
	assert.False(t, DeviceID("").Valid())
}

func TestLoadOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	first, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.True(t, first.Valid())

	second, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreate_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("garbage"), 0o600))
	_, err := LoadOrCreate(dir)
	assert.ErrorIs(t, err, ErrInvalidDeviceID)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/history", nil)
	_, err := FromRequest(r)
	assert.ErrorIs(t, err, ErrInvalidDeviceID)

	id := New()
	r.Header.Set(Header, id.String())
	got, err := FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
