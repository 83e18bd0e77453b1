package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "test.csv")

	rows := []Row{
		{Timestamp: day("2024-01-01"), Open: "100", High: "101", Low: "99", Close: "100.5", Volume: 1200, PctChange: ""},
		{Timestamp: day("2024-01-02"), Open: "100.5", High: "102", Low: "100", Close: "101", Volume: 900, PctChange: "0.4975"},
	}
	require.NoError(t, WriteFile(path, rows, false))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-01-01"), got[0].Timestamp)
	assert.Equal(t, "100.5", got[0].Close)
	assert.Equal(t, int64(1200), got[0].Volume)
	assert.Equal(t, "", got[0].PctChange)
	assert.Equal(t, "0.4975", got[1].PctChange)
}

func TestWriteFileSymbolColumnFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.csv")
	rows := []Row{{Symbol: "AAA.NS", Timestamp: day("2024-01-01"), Close: "1"}}
	require.NoError(t, WriteFile(path, rows, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.Split(strings.Split(string(raw), "\n")[0], ",")
	assert.Equal(t, "symbol", header[0])
	assert.Equal(t, "timestamp", header[1])
}

func TestReadFileKeepsUnknownColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	content := "Date,Close,Volume,my_note\n2024-01-02,10.5,100,hello\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day("2024-01-02"), rows[0].Timestamp)
	assert.Equal(t, "10.5", rows[0].Close)
	assert.Equal(t, "hello", rows[0].Extra["my_note"])

	// 往回写时未知列进入表头并集
	out := filepath.Join(t.TempDir(), "rewrite.csv")
	require.NoError(t, WriteFile(out, rows, false))
	raw, _ := os.ReadFile(out)
	assert.Contains(t, strings.Split(string(raw), "\n")[0], "my_note")
}

func TestReadFileBadRowKeepsZeroTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "timestamp,close\nnot-a-date,10\n2024-01-02,11\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.IsZero(), "坏时间戳保留零值, 由合并阶段丢弃")

	merged := Merge(nil, rows, false)
	assert.Len(t, merged.Rows, 1)
}

func TestReadFileVolumeAsFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.csv")
	content := "timestamp,close,volume\n2024-01-02,10,123.0\n2024-01-03,11,-5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(123), rows[0].Volume)
	assert.Equal(t, int64(0), rows[1].Volume)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := map[string]string{
		"2024-01-02":                "2024-01-02T00:00:00Z",
		"2024-01-02T09:15:00Z":      "2024-01-02T09:15:00Z",
		"2024-01-02 09:15:00+05:30": "2024-01-02T03:45:00Z",
		"2024-01-02 09:15:00":       "2024-01-02T09:15:00Z",
	}
	for input, want := range cases {
		got := ParseTimestamp(input)
		require.False(t, got.IsZero(), "应能解析 %q", input)
		assert.Equal(t, want, FormatTimestamp(got), "input=%q", input)
	}
	assert.True(t, ParseTimestamp("garbage").IsZero())
}
