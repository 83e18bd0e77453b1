package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 运行状态
const (
	StatusOK       = "ok"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusUpToDate = "up_to_date"
)

// SyncRun 是一次同步运行的落库记录，对应 metadata JSON 的多次运行历史。
type SyncRun struct {
	ID          string `gorm:"primaryKey;size:36"`
	Symbol      string `gorm:"index;size:32"`
	Interval    string `gorm:"size:8"`
	Status      string `gorm:"size:16"`
	RowsFetched int
	RowsAdded   int
	Start       string `gorm:"size:40"`
	End         string `gorm:"size:40"`
	Warnings    datatypes.JSON
	CreatedAt   time.Time `gorm:"index"`
}

func (SyncRun) TableName() string { return "sync_runs" }

// Store 用 Gorm + SQLite 持久化运行历史。
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SyncRun{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record 写入一条运行记录；warnings 序列化成 JSON 列。
func (s *Store) Record(ctx context.Context, run SyncRun, warnings []string) error {
	if len(warnings) > 0 {
		buf, err := json.Marshal(warnings)
		if err != nil {
			return err
		}
		run.Warnings = datatypes.JSON(buf)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&run).Error
}

// Recent 按时间倒序返回最近的运行记录。
func (s *Store) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []SyncRun
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// BySymbol 返回某个标的的运行历史。
func (s *Store) BySymbol(ctx context.Context, symbol string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncRun
	err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
