package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowAt(ts time.Time, close string) Row {
	return Row{Timestamp: ts, Close: close, Open: close, High: close, Low: close}
}

func TestMergeIncomingWinsOnOverlap(t *testing.T) {
	base := day("2024-01-01")
	var existing []Row
	for i := 0; i < 5; i++ {
		existing = append(existing, rowAt(base.AddDate(0, 0, i), "100"))
	}
	// 重拉最近窗口：01-04 起重叠，数值已修正
	var incoming []Row
	for i := 3; i < 7; i++ {
		incoming = append(incoming, rowAt(base.AddDate(0, 0, i), "200"))
	}

	res := Merge(existing, incoming, false)
	require.Len(t, res.Rows, 7)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, "100", res.Rows[2].Close)
	assert.Equal(t, "200", res.Rows[3].Close, "重叠行应以新数据为准")
	assert.Equal(t, "200", res.Rows[6].Close)
}

func TestMergeIdempotent(t *testing.T) {
	base := day("2024-01-01")
	rows := []Row{rowAt(base, "1"), rowAt(base.AddDate(0, 0, 1), "2")}

	first := Merge(nil, rows, false)
	assert.Equal(t, 2, first.Added)
	second := Merge(first.Rows, rows, false)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestMergeSortsByTimestamp(t *testing.T) {
	base := day("2024-01-01")
	incoming := []Row{
		rowAt(base.AddDate(0, 0, 2), "3"),
		rowAt(base, "1"),
		rowAt(base.AddDate(0, 0, 1), "2"),
	}
	res := Merge(nil, incoming, false)
	require.Len(t, res.Rows, 3)
	for i := 1; i < len(res.Rows); i++ {
		assert.True(t, res.Rows[i-1].Timestamp.Before(res.Rows[i].Timestamp))
	}
}

func TestMergeDropsInvalidTimestamps(t *testing.T) {
	base := day("2024-01-01")
	incoming := []Row{rowAt(base, "1"), {Close: "2"}}
	res := Merge(nil, incoming, false)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Added)
}

func TestMergeWithSymbolKeysPerSymbol(t *testing.T) {
	base := day("2024-01-01")
	a := rowAt(base, "1")
	a.Symbol = "AAA.NS"
	b := rowAt(base, "2")
	b.Symbol = "BBB.NS"

	res := Merge(nil, []Row{a, b}, true)
	require.Len(t, res.Rows, 2, "相同时间戳不同标的都应保留")
	assert.Equal(t, "AAA.NS", res.Rows[0].Symbol)
	assert.Equal(t, "BBB.NS", res.Rows[1].Symbol)

	// 不带 symbol 键时同一时间戳只剩一行
	res = Merge(nil, []Row{a, b}, false)
	assert.Len(t, res.Rows, 1)
}

func TestMergeExistingOnly(t *testing.T) {
	base := day("2024-01-01")
	existing := []Row{rowAt(base, "1")}
	res := Merge(existing, nil, false)
	assert.Len(t, res.Rows, 1)
	assert.Equal(t, 0, res.Added)
}
