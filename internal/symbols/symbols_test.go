package symbols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw := `# 注释行
RELIANCE
TCS, INFY

tcs
HDFCBANK`
	got := Parse(raw)
	assert.Equal(t, []string{"RELIANCE", "TCS", "INFY", "HDFCBANK"}, got,
		"逗号与换行混用, 大小写不敏感去重, 保留首次出现的顺序")
}

func TestLoadFileMissingIsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestLoadFileEmptyIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("# 只有注释\n"), 0o644))
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestWithSuffix(t *testing.T) {
	got := WithSuffix([]string{"RELIANCE", "AAPL.US", "TCS"}, ".NS")
	assert.Equal(t, []string{"RELIANCE.NS", "AAPL.US", "TCS.NS"}, got)
	assert.Equal(t, []string{"X"}, WithSuffix([]string{"X"}, ""))
}

func TestLoadUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	content := `groups:
  - name: nse-large
    suffix: .NS
    symbols: [RELIANCE, TCS, reliance]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	require.Len(t, u.Groups, 1)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, u.Groups[0].Symbols)
}

func TestLoadUniverseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	content := "groups:\n  - name: x\n    symbols: [A]\n    bogus: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadUniverse(path)
	require.Error(t, err)
}

const nseCSVFixture = `SYMBOL, NAME OF COMPANY, SERIES, DATE OF LISTING
RELIANCE,Reliance Industries,EQ,08-NOV-1995
SUZLON,Suzlon Energy,BE,19-OCT-2005
TCS,Tata Consultancy,EQ,25-AUG-2004
TCS,Tata Consultancy,EQ,25-AUG-2004
`

func TestParseNSEListFiltersSeries(t *testing.T) {
	got, err := parseNSEList([]byte(nseCSVFixture), map[string]bool{"EQ": true}, ".NS")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, got, "BE 系列被过滤, 重复项去重")
}

func TestParseNSEListNoMatches(t *testing.T) {
	_, err := parseNSEList([]byte(nseCSVFixture), map[string]bool{"XX": true}, "")
	require.Error(t, err)
}

func TestFetchNSEFallsBackAcrossURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(nseCSVFixture))
	}))
	defer srv.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer bad.Close()

	orig := nseListURLs
	nseListURLs = []string{bad.URL, srv.URL}
	defer func() { nseListURLs = orig }()

	got, err := FetchNSE(context.Background(), FetchNSEOptions{Suffix: ".NS"})
	require.NoError(t, err)
	assert.Contains(t, got, "RELIANCE.NS")
}

func TestWriteList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, WriteList(path, []string{"A", "B"}))
	syms, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, syms)
}
