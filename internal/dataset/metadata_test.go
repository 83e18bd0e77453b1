package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	rows := []Row{
		{Timestamp: day("2024-01-01")},
		{Timestamp: day("2024-03-01")},
	}
	meta := BuildMetadata("TEST.NS", "1d", rows)
	require.NoError(t, WriteMetadata(path, []Metadata{meta}))

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "TEST.NS", got.Symbol)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, "1d", got.Interval)

	end, ok := got.EndTime()
	require.True(t, ok)
	assert.Equal(t, day("2024-03-01"), end)
}

func TestReadMetadataListTakesLastEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	content := `[
	  {"symbol": "TEST.NS", "rows": 10, "interval": "1d", "start": "2024-01-01T00:00:00Z", "end": "2024-01-10T00:00:00Z"},
	  {"symbol": "TEST.NS", "rows": 20, "interval": "1d", "start": "2024-01-01T00:00:00Z", "end": "2024-01-20T00:00:00Z"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Rows)
	end, ok := got.EndTime()
	require.True(t, ok)
	assert.Equal(t, day("2024-01-20"), end)
}

func TestReadMetadataRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rows": "ten"}`), 0o644))

	_, err := ReadMetadata(path)
	require.Error(t, err)
}

func TestReadMetadataMissingFile(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestEndTimeHandlesLegacyZSuffix(t *testing.T) {
	m := &Metadata{End: "2024-01-10T00:00:00Z"}
	end, ok := m.EndTime()
	require.True(t, ok)
	assert.Equal(t, day("2024-01-10"), end)

	m = &Metadata{End: ""}
	_, ok = m.EndTime()
	assert.False(t, ok)
}
