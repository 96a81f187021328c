package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	logLevel  = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat = flag.String("log-format", "json", "日志格式 (json or text)")
	cfgPath   = flag.String("config", "", "配置文件路径")
)

// Config 收集器配置
type Config struct {
	Perfd struct {
		BaseURL  string        `mapstructure:"base_url"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"perfd"`

	InfluxDB struct {
		URL    string `mapstructure:"url"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influxdb"`
}

// MetricsCollector 定期拉取 perfd 的统计接口并写入 InfluxDB。
type MetricsCollector struct {
	config       *Config
	influxClient influxdb2.Client
	writeAPI     api.WriteAPI
	httpClient   *http.Client
	logger       *logrus.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// cacheStats 与 perfd /api/v1/cache/stats 的响应对应。
type cacheStats struct {
	TotalEntries   int     `json:"total_entries"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	HitRate        float64 `json:"hit_rate"`
	MissRate       float64 `json:"miss_rate"`
}

// poolStats 与 perfd /api/v1/pools 的响应对应。
type poolStats struct {
	Name      string `json:"name"`
	MaxSize   int    `json:"max_size"`
	Available int    `json:"available"`
	Allocated int    `json:"allocated"`
	Stats     struct {
		TotalAllocations   int64   `json:"total_allocations"`
		TotalDeallocations int64   `json:"total_deallocations"`
		HitRate            float64 `json:"hit_rate"`
		MissRate           float64 `json:"miss_rate"`
	} `json:"stats"`
}

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal("无效的日志级别")
	}
	logger.SetLevel(level)

	switch *logFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	default:
		logger.Fatal("无效的日志格式")
	}

	config, err := loadConfig()
	if err != nil {
		logger.WithError(err).Fatal("加载配置失败")
	}

	collector := NewMetricsCollector(config, logger)
	defer collector.Close()

	collector.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到退出信号，收集器正在关闭")
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("perfd.base_url", "http://localhost:8080")
	v.SetDefault("perfd.interval", 10*time.Second)
	v.SetDefault("influxdb.org", "perf")
	v.SetDefault("influxdb.bucket", "perf_metrics")

	if *cfgPath != "" {
		v.SetConfigFile(*cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if config.InfluxDB.URL == "" {
		return nil, fmt.Errorf("缺少 influxdb.url 配置")
	}

	return &config, nil
}

// NewMetricsCollector 创建指标收集器。
func NewMetricsCollector(config *Config, logger *logrus.Logger) *MetricsCollector {
	ctx, cancel := context.WithCancel(context.Background())

	influxClient := influxdb2.NewClient(config.InfluxDB.URL, config.InfluxDB.Token)
	writeAPI := influxClient.WriteAPI(config.InfluxDB.Org, config.InfluxDB.Bucket)

	return &MetricsCollector{
		config:       config,
		influxClient: influxClient,
		writeAPI:     writeAPI,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start 启动采集循环。
func (mc *MetricsCollector) Start() {
	go func() {
		ticker := time.NewTicker(mc.config.Perfd.Interval)
		defer ticker.Stop()

		mc.logger.Infof("指标收集器已启动，采集间隔 %s", mc.config.Perfd.Interval)

		for {
			select {
			case <-ticker.C:
				mc.collectOnce()
			case <-mc.ctx.Done():
				return
			}
		}
	}()
}

// collectOnce 采集一轮缓存和对象池指标。
func (mc *MetricsCollector) collectOnce() {
	now := time.Now()

	var cs cacheStats
	if err := mc.fetchJSON("/api/v1/cache/stats", &cs); err != nil {
		mc.logger.WithError(err).Warn("拉取缓存统计失败")
	} else {
		point := influxdb2.NewPoint("cache_stats",
			map[string]string{"source": "perfd"},
			map[string]interface{}{
				"total_entries":    cs.TotalEntries,
				"total_size_bytes": cs.TotalSizeBytes,
				"hit_rate":         cs.HitRate,
				"miss_rate":        cs.MissRate,
			},
			now)
		mc.writeAPI.WritePoint(point)
	}

	var pools []poolStats
	if err := mc.fetchJSON("/api/v1/pools", &pools); err != nil {
		mc.logger.WithError(err).Warn("拉取对象池统计失败")
		return
	}

	for _, ps := range pools {
		point := influxdb2.NewPoint("pool_stats",
			map[string]string{"pool": ps.Name},
			map[string]interface{}{
				"max_size":            ps.MaxSize,
				"available":           ps.Available,
				"allocated":           ps.Allocated,
				"total_allocations":   ps.Stats.TotalAllocations,
				"total_deallocations": ps.Stats.TotalDeallocations,
				"hit_rate":            ps.Stats.HitRate,
				"miss_rate":           ps.Stats.MissRate,
			},
			now)
		mc.writeAPI.WritePoint(point)
	}

	mc.writeAPI.Flush()
}

// fetchJSON 拉取 perfd 的一个 JSON 接口。
func (mc *MetricsCollector) fetchJSON(path string, target interface{}) error {
	req, err := http.NewRequestWithContext(mc.ctx, http.MethodGet, mc.config.Perfd.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("perfd 返回状态码 %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

// Close 关闭收集器并刷出剩余数据点。
func (mc *MetricsCollector) Close() {
	mc.cancel()
	mc.writeAPI.Flush()
	mc.influxClient.Close()
}
