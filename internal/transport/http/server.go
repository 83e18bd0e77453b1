package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"candlesync/internal/dataset"
	"candlesync/internal/logger"
	"candlesync/internal/refresh"
	"candlesync/internal/store/cache"
	"candlesync/internal/store/history"
)

// RefreshFunc 触发一轮同步；symbols 为空表示用配置里的默认清单。
type RefreshFunc func(ctx context.Context, symbols []string) refresh.Summary

// Server 对外暴露只读的数据集查询接口和一个异步刷新入口。
type Server struct {
	engine  *gin.Engine
	cache   *cache.Store
	history *history.Store
	doSync  RefreshFunc

	mu   sync.Mutex
	runs map[string]*asyncRun
}

type asyncRun struct {
	ID       string    `json:"id"`
	Symbols  []string  `json:"symbols,omitempty"`
	Status   string    `json:"status"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitzero"`
	Detail   string    `json:"detail,omitempty"`
}

func NewServer(cch *cache.Store, hist *history.Store, doSync RefreshFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		cache:   cch,
		history: hist,
		doSync:  doSync,
		runs:    map[string]*asyncRun{},
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.engine.Group("/api")
	{
		api.GET("/datasets", s.listDatasets)
		api.GET("/manifest/:symbol", s.getManifest)
		api.GET("/candles", s.getCandles)
		api.GET("/runs", s.listRuns)
		api.POST("/refresh", s.triggerRefresh)
		api.GET("/refresh/:id", s.refreshStatus)
	}
}

func (s *Server) Run(addr string) error {
	logger.Infof("HTTP 服务监听 %s", addr)
	return s.engine.Run(addr)
}

// Handler 暴露底层 handler，测试用 httptest 直接打。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) listDatasets(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache disabled"})
		return
	}
	sets, err := s.cache.ListDatasets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": sets})
}

func (s *Server) getManifest(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache disabled"})
		return
	}
	interval := c.DefaultQuery("interval", "1d")
	m, err := s.cache.Manifest(c.Request.Context(), c.Param("symbol"), interval)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) getCandles(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache disabled"})
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", "1d")
	start := parseTimeParam(c.Query("start"))
	end := parseTimeParam(c.Query("end"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))

	rows, err := s.cache.RangeRows(c.Request.Context(), symbol, interval, start, end, limit)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "count": len(rows), "candles": rows})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var (
		runs []history.SyncRun
		err  error
	)
	if symbol := c.Query("symbol"); symbol != "" {
		runs, err = s.history.BySymbol(c.Request.Context(), symbol, limit)
	} else {
		runs, err = s.history.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type refreshRequest struct {
	Symbols []string `json:"symbols"`
}

// triggerRefresh 异步起一轮同步，立即返回可轮询的 run id。
func (s *Server) triggerRefresh(c *gin.Context) {
	if s.doSync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh disabled"})
		return
	}
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	run := &asyncRun{
		ID:      uuid.NewString(),
		Symbols: req.Symbols,
		Status:  "running",
		Started: time.Now().UTC(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	go func() {
		summary := s.doSync(context.Background(), req.Symbols)
		s.mu.Lock()
		defer s.mu.Unlock()
		run.Finished = time.Now().UTC()
		if summary.ExitCode() != 0 {
			run.Status = "failed"
		} else {
			run.Status = "done"
		}
		run.Detail = refresh.FormatSummary(summary)
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": run.ID, "status": run.Status})
}

func (s *Server) refreshStatus(c *gin.Context) {
	s.mu.Lock()
	run, ok := s.runs[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func parseTimeParam(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	return dataset.ParseTimestamp(raw)
}
