// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// 运行状态标签
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 每个 Collector 持有独立的 Registry，命令行一次运行一个实例，
// 运行结束后可整体推送到 Pushgateway。
type Collector struct {
	registry *prometheus.Registry

	// 运行指标
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	lastSuccess      prometheus.Gauge
	archiveSizeBytes prometheus.Gauge

	// 计数指标
	tokensTotal        *prometheus.CounterVec
	messagesTotal      *prometheus.CounterVec
	conversationsTotal *prometheus.CounterVec
	skippedPartsTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of counting runs",
		},
		[]string{"model", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Counting run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.lastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		},
	)

	c.archiveSizeBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_size_bytes",
			Help:      "Size of the counted conversation archive in bytes",
		},
	)

	// 计数指标
	c.tokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total number of tokens counted",
		},
		[]string{"model"},
	)

	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of message nodes visited",
		},
		[]string{"model"},
	)

	c.conversationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Total number of conversations visited",
		},
		[]string{"model"},
	)

	c.skippedPartsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_parts_total",
			Help:      "Total number of non-text content parts skipped",
		},
		[]string{"model"},
	)

	return c
}

// Registry 返回收集器的 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// 📝 记录方法
// =============================================================================
// nil Collector 上的调用都是空操作，调用方不需要判空

// RecordConversation 记录一个对话的计数结果
func (c *Collector) RecordConversation(model string, tokens, messages, skippedParts int) {
	if c == nil {
		return
	}
	c.conversationsTotal.WithLabelValues(model).Inc()
	c.tokensTotal.WithLabelValues(model).Add(float64(tokens))
	c.messagesTotal.WithLabelValues(model).Add(float64(messages))
	if skippedParts > 0 {
		c.skippedPartsTotal.WithLabelValues(model).Add(float64(skippedParts))
	}
}

// RecordArchive 记录导出文件大小
func (c *Collector) RecordArchive(sizeBytes int) {
	if c == nil {
		return
	}
	c.archiveSizeBytes.Set(float64(sizeBytes))
}

// RecordRun 记录一次运行
func (c *Collector) RecordRun(model, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(model, status).Inc()
	c.runDuration.WithLabelValues(model).Observe(duration.Seconds())
	if status == StatusSuccess {
		c.lastSuccess.SetToCurrentTime()
	}
}

// =============================================================================
// 📤 Pushgateway
// =============================================================================

// PushOptions 推送参数
type PushOptions struct {
	URL      string
	Job      string
	Grouping map[string]string
	Timeout  time.Duration
}

// Push 将 Registry 中的全部指标推送到 Pushgateway（PUT，替换同组旧值）
func (c *Collector) Push(ctx context.Context, opts PushOptions) error {
	if c == nil || opts.URL == "" {
		return nil
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pusher := push.New(opts.URL, opts.Job).Gatherer(c.registry)
	for k, v := range opts.Grouping {
		pusher = pusher.Grouping(k, v)
	}

	if err := pusher.PushContext(ctx); err != nil {
		c.logger.Warn("push metrics failed",
			zap.String("url", opts.URL),
			zap.String("job", opts.Job),
			zap.Error(err),
		)
		return fmt.Errorf("push metrics to %s: %w", opts.URL, err)
	}

	c.logger.Debug("metrics pushed",
		zap.String("url", opts.URL),
		zap.String("job", opts.Job),
	)
	return nil
}
