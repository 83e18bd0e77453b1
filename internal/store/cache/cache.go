package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"candlesync/internal/dataset"
)

// ErrNotFound 表示本地镜像里没有这个 symbol@interval。
var ErrNotFound = errors.New("dataset not cached")

// Manifest 记录某个 symbol@interval 镜像的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 是 CSV 数据集的本地 SQLite 镜像，每个 symbol@interval 一个文件。
// serve/stats 查询走这里，不用反复解析 CSV。CSV 永远是权威数据。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol, interval string) (*sql.DB, string, error) {
	if symbol == "" || interval == "" {
		return nil, "", fmt.Errorf("symbol/interval 不能为空")
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(symbol, interval), nil
	}
	path := s.dbPath(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, interval); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol, interval string) string {
	dir := filepath.Join(s.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(interval)+".db")
}

// openExisting 只打开已存在的镜像，查询路径不把空库建出来。
func (s *Store) openExisting(symbol, interval string) (*sql.DB, string, error) {
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
	s.mu.Lock()
	_, opened := s.dbs[key]
	s.mu.Unlock()
	if !opened {
		if _, err := os.Stat(s.dbPath(symbol, interval)); err != nil {
			return nil, "", ErrNotFound
		}
	}
	return s.db(symbol, interval)
}

// ListDatasets 枚举镜像目录下的全部数据集及其清单。
func (s *Store) ListDatasets(ctx context.Context) ([]Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(s.root, "*", "*.db"))
	if err != nil {
		return nil, err
	}
	out := make([]Manifest, 0, len(paths))
	for _, p := range paths {
		symbol := filepath.Base(filepath.Dir(p))
		interval := strings.TrimSuffix(filepath.Base(p), ".db")
		m, err := s.Manifest(ctx, symbol, interval)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ReplaceRows 用合并后的数据集整体刷新镜像（重复时间戳覆盖）。
func (s *Store) ReplaceRows(ctx context.Context, symbol, interval string, rows []dataset.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (ts, open, high, low, close, adj_close, volume, pct_change, adj_pct_change)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    adj_close=excluded.adj_close,
		    volume=excluded.volume,
		    pct_change=excluded.pct_change,
		    adj_pct_change=excluded.adj_pct_change`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, r := range rows {
		if r.Timestamp.IsZero() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.Timestamp.UTC().Unix(),
			r.Open, r.High, r.Low, r.Close, r.AdjClose,
			r.Volume, r.PctChange, r.AdjPctChange); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

func (s *Store) Manifest(ctx context.Context, symbol, interval string) (Manifest, error) {
	db, path, err := s.openExisting(symbol, interval)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol,interval,COALESCE(min_time,0),COALESCE(max_time,0),COALESCE(rows,0),COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Interval, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(ts), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(ts), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

// RangeRows 返回 [start, end] 内的行（按时间升序）。start/end 为零值时不设界。
func (s *Store) RangeRows(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]dataset.Row, error) {
	db, _, err := s.openExisting(symbol, interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	var lo, hi int64
	if !start.IsZero() {
		lo = start.UTC().Unix()
	}
	hi = int64(1) << 62
	if !end.IsZero() {
		hi = end.UTC().Unix()
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, adj_close, volume, pct_change, adj_pct_change
		FROM candles WHERE ts BETWEEN ? AND ?
		ORDER BY ts ASC LIMIT ?`, lo, hi, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dataset.Row
	for rows.Next() {
		var r dataset.Row
		var ts int64
		if err := rows.Scan(&ts, &r.Open, &r.High, &r.Low, &r.Close, &r.AdjClose, &r.Volume, &r.PctChange, &r.AdjPctChange); err != nil {
			return nil, err
		}
		r.Symbol = strings.ToUpper(symbol)
		r.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func ensureSchema(db *sql.DB, symbol, interval string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			ts             INTEGER PRIMARY KEY,
			open           TEXT,
			high           TEXT,
			low            TEXT,
			close          TEXT,
			adj_close      TEXT,
			volume         INTEGER NOT NULL DEFAULT 0,
			pct_change     TEXT,
			adj_pct_change TEXT,
			inserted_at    INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, symbol, interval) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, interval=excluded.interval;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(symbol), strings.ToLower(interval))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
