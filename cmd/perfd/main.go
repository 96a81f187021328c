package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dvnharish/plugins-sub002/pkg/cache"
	"github.com/dvnharish/plugins-sub002/pkg/config"
	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
	"github.com/dvnharish/plugins-sub002/pkg/persist"
	"github.com/dvnharish/plugins-sub002/pkg/pool"
	"github.com/dvnharish/plugins-sub002/pkg/scheduler"
)

var (
	logLevel   = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "text", "日志格式 (json or text)")
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/perfd.yaml)")
	listenPort = flag.String("port", "", "监听端口，覆盖配置文件")
)

// PerfServer 性能层的运维 HTTP 入口：
// 把一个缓存管理器、一个任务调度器和一个池注册表挂到 gin 路由上。
type PerfServer struct {
	manager   *cache.Manager
	scheduler *scheduler.Scheduler
	pools     *pool.Registry
	log       *logrus.Entry
	server    *http.Server
}

func main() {
	flag.Parse()

	logger.Init(logger.Config{Level: *logLevel, Format: *logFormat})
	log := logger.WithComponent("perfd")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("加载配置失败")
		}
		cfg = loaded
	}
	if *listenPort != "" {
		cfg.Server.Port = *listenPort
	}
	logger.SetLevel(cfg.Logger.Level)

	store, err := buildStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("初始化持久化存储失败")
	}

	manager, err := cache.NewManager(cfg.Cache, store)
	if err != nil {
		log.WithError(err).Fatal("创建缓存管理器失败")
	}

	sched := scheduler.NewScheduler(manager)
	for _, tc := range cfg.Tasks {
		if _, err := sched.Register(tc); err != nil {
			log.WithError(err).Warnf("跳过无效任务配置: %s", tc.Name)
		}
	}
	sched.Start()

	srv := &PerfServer{
		manager:   manager,
		scheduler: sched,
		pools:     pool.NewRegistry(),
		log:       log,
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.registerRoutes(router)

	srv.server = &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Infof("HTTP 服务已启动，监听端口 %s", cfg.Server.Port)
		if err := srv.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP 服务异常退出")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("收到退出信号，开始关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP 服务关闭超时")
	}

	sched.Stop()
	if err := manager.Dispose(); err != nil {
		log.WithError(err).Warn("释放缓存管理器失败")
	}

	log.Info("perfd 已退出")
}

// buildStore 根据配置构建持久化存储，并统一包上熔断器。
// 未启用持久化时返回 nil。
func buildStore(cfg *config.Config) (core.Store, error) {
	if !cfg.Cache.PersistenceEnabled {
		return nil, nil
	}

	var inner core.Store
	var err error

	switch cfg.Persistence.Backend {
	case "redis":
		inner, err = persist.NewRedisStore(cfg.Persistence.Redis)
	default:
		diskCfg := cfg.Persistence.Disk
		if diskCfg.BaseDir == "" {
			diskCfg.BaseDir = cfg.Cache.PersistencePath
		}
		inner, err = persist.NewDiskStore(diskCfg)
	}
	if err != nil {
		return nil, err
	}

	return persist.NewBreakerStore(inner, cfg.Persistence.Breaker), nil
}

func (s *PerfServer) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cache/stats", s.handleCacheStats)
		v1.GET("/cache/entries/:key", s.handleGetEntry)
		v1.PUT("/cache/entries/:key", s.handleSetEntry)
		v1.DELETE("/cache/entries/:key", s.handleDeleteEntry)
		v1.POST("/cache/clear", s.handleClear)

		v1.GET("/tasks", s.handleListTasks)
		v1.POST("/tasks", s.handleRegisterTask)

		v1.GET("/pools", s.handleListPools)
		v1.POST("/pools", s.handleCreatePool)
	}
}

func (s *PerfServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

func (s *PerfServer) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats())
}

type setEntryRequest struct {
	Value      interface{} `json:"value" binding:"required"`
	TTLSeconds int         `json:"ttl_seconds"`
	Tags       []string    `json:"tags"`
	Priority   string      `json:"priority"`
}

func (s *PerfServer) handleSetEntry(c *gin.Context) {
	var req setEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	opts := cache.EntryOptions{
		TTL:  time.Duration(req.TTLSeconds) * time.Second,
		Tags: req.Tags,
	}
	if req.Priority != "" {
		opts.Priority = core.ParsePriority(req.Priority)
	}

	if err := s.manager.SetEntry(c.Request.Context(), c.Param("key"), req.Value, opts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set_failed", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *PerfServer) handleGetEntry(c *gin.Context) {
	value, err := s.manager.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		if core.IsCode(err, core.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

func (s *PerfServer) handleDeleteEntry(c *gin.Context) {
	removed := s.manager.Delete(c.Request.Context(), c.Param("key"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type clearRequest struct {
	Tags []string `json:"tags"`
}

func (s *PerfServer) handleClear(c *gin.Context) {
	var req clearRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
	}

	if err := s.manager.Clear(c.Request.Context(), req.Tags...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear_failed", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *PerfServer) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.List())
}

type registerTaskRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	Kind            string `json:"kind" binding:"required"`
	ScheduleKind    string `json:"schedule_kind" binding:"required"`
	IntervalSeconds int    `json:"interval_seconds"`
	CronSpec        string `json:"cron_spec"`
	Enabled         bool   `json:"enabled"`
	Priority        string `json:"priority"`
}

func (s *PerfServer) handleRegisterTask(c *gin.Context) {
	var req registerTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	task, err := s.scheduler.Register(scheduler.TaskConfig{
		Name:        req.Name,
		Description: req.Description,
		Kind:        scheduler.TaskKind(req.Kind),
		Schedule: scheduler.Schedule{
			Kind:     scheduler.ScheduleKind(req.ScheduleKind),
			Interval: time.Duration(req.IntervalSeconds) * time.Second,
			Spec:     req.CronSpec,
			Enabled:  req.Enabled,
		},
		Priority: core.ParsePriority(req.Priority),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "register_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, task)
}

type poolSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	MaxSize   int        `json:"max_size"`
	Available int        `json:"available"`
	Allocated int        `json:"allocated"`
	Stats     pool.Stats `json:"stats"`
}

func (s *PerfServer) handleListPools(c *gin.Context) {
	pools := s.pools.List()
	summaries := make([]poolSummary, 0, len(pools))
	for _, p := range pools {
		summaries = append(summaries, poolSummary{
			ID:        p.ID(),
			Name:      p.Name(),
			MaxSize:   p.MaxSize(),
			Available: p.Available(),
			Allocated: p.Allocated(),
			Stats:     p.Stats(),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

type createPoolRequest struct {
	Name    string `json:"name" binding:"required"`
	MaxSize int    `json:"max_size" binding:"required"`
}

func (s *PerfServer) handleCreatePool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	// HTTP 入口创建的池统一使用字节缓冲对象
	p, err := s.pools.Create(req.Name, func() interface{} { return new(bytes.Buffer) }, req.MaxSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, poolSummary{
		ID:        p.ID(),
		Name:      p.Name(),
		MaxSize:   p.MaxSize(),
		Available: p.Available(),
		Allocated: p.Allocated(),
		Stats:     p.Stats(),
	})
}
