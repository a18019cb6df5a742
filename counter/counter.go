package counter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tokentally/archive"
	"github.com/BaSui01/tokentally/internal/metrics"
	"github.com/BaSui01/tokentally/tokenizer"
	"github.com/BaSui01/tokentally/types"
)

const instrumentationName = "github.com/BaSui01/tokentally/counter"

// Counter 对整个导出文件做 token 汇总
type Counter struct {
	tok       tokenizer.Tokenizer
	extractor *archive.Extractor

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	meter   metric.Meter
	runID   string
	model   string
}

// Option 配置 Counter
type Option func(*Counter)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(c *Counter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics 设置 Prometheus 收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Counter) { c.metrics = m }
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(c *Counter) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMeter 设置 OTel meter，默认使用全局 MeterProvider
func WithMeter(m metric.Meter) Option {
	return func(c *Counter) {
		if m != nil {
			c.meter = m
		}
	}
}

// WithRunID 设置运行 ID，写入报告、日志和 span。
// 未设置时 Count 从 ctx 中读取 types.RunID。
func WithRunID(id string) Option {
	return func(c *Counter) { c.runID = id }
}

// WithModel 设置报告中的模型标识，默认取分词器名称
func WithModel(model string) Option {
	return func(c *Counter) { c.model = model }
}

// New 创建 Counter。extractor 为 nil 时使用默认策略。
func New(tok tokenizer.Tokenizer, extractor *archive.Extractor, opts ...Option) *Counter {
	if extractor == nil {
		extractor = archive.NewExtractor(archive.DefaultPartPolicy)
	}
	c := &Counter{
		tok:       tok,
		extractor: extractor,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		c.model = tok.Name()
	}
	c.logger = c.logger.With(zap.String("component", "counter"))
	if c.runID != "" {
		c.logger = c.logger.With(zap.String("run_id", c.runID))
	}
	return c
}

// Count 统计导出文件中全部消息的 token 数。
// 任何错误都会中止统计并返回 nil 报告，不产生部分结果。
func (c *Counter) Count(ctx context.Context, a *archive.Archive) (*Report, error) {
	start := time.Now()

	runID := c.runID
	if runID == "" {
		runID, _ = types.RunID(ctx)
	}
	logger := c.logger
	if c.runID == "" && runID != "" {
		logger = logger.With(zap.String("run_id", runID))
	}

	ctx, span := c.tracer.Start(ctx, "tokentally.count", trace.WithAttributes(
		attribute.String("tokentally.run_id", runID),
		attribute.String("tokentally.model", c.model),
		attribute.String("tokentally.tokenizer", c.tok.Name()),
		attribute.String("tokentally.part_policy", string(c.extractor.Policy())),
		attribute.Int("tokentally.archive.conversations", a.Len()),
		attribute.Int("tokentally.archive.bytes", a.Size()),
	))
	defer span.End()

	logger.Info("counting started",
		zap.Int("conversations", a.Len()),
		zap.Int("bytes", a.Size()),
		zap.String("tokenizer", c.tok.Name()),
	)
	c.metrics.RecordArchive(a.Size())

	report := newReport(runID, c.model, c.tok.Name(), c.extractor.Policy(), start)

	// 累加器是局部变量，只在整个导出统计成功后才交给调用方
	err := a.Conversations(func(conv archive.Conversation) error {
		total, err := c.countConversation(ctx, conv, report.ByRole)
		if err != nil {
			return err
		}
		report.add(total)
		c.metrics.RecordConversation(c.model, total.Tokens, total.Messages, total.SkippedParts)
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordRun(c.model, metrics.StatusError, duration)
		c.recordOTel(ctx, 0, duration, metrics.StatusError)
		logger.Info("counting aborted", zap.Error(err), zap.Duration("duration", duration))
		return nil, err
	}

	report.Duration = duration
	span.SetAttributes(
		attribute.Int("tokentally.total_tokens", report.Total),
		attribute.Int("tokentally.messages", report.Messages),
		attribute.Int("tokentally.skipped_parts", report.SkippedParts),
	)
	span.SetStatus(codes.Ok, "")
	c.metrics.RecordRun(c.model, metrics.StatusSuccess, duration)
	c.recordOTel(ctx, report.Total, duration, metrics.StatusSuccess)

	logger.Info("counting finished",
		zap.Int("total_tokens", report.Total),
		zap.Int("conversations", report.Conversations),
		zap.Int("messages", report.Messages),
		zap.Int("skipped_parts", report.SkippedParts),
		zap.Duration("duration", duration),
	)
	return report, nil
}

// countConversation 统计单个对话。每个 mapping 条目都会被编码一次，
// 包括空文本（空字符串编码为 0 个 token）。
func (c *Counter) countConversation(ctx context.Context, conv archive.Conversation, byRole map[string]int) (ConversationTotal, error) {
	_, span := c.tracer.Start(ctx, "tokentally.conversation", trace.WithAttributes(
		attribute.Int("tokentally.conversation.index", conv.Index),
		attribute.String("tokentally.conversation.id", conv.ID),
	))
	defer span.End()

	total := ConversationTotal{Index: conv.Index, ID: conv.ID, Title: conv.Title}

	msgs, err := c.extractor.Messages(conv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return total, err
	}

	for _, msg := range msgs {
		n, err := c.tok.CountTokens(msg.Text)
		if err != nil {
			err = tokenizerError(conv, msg.NodeID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return total, err
		}
		total.Tokens += n
		total.Messages++
		total.SkippedParts += msg.Skipped
		byRole[roleKey(msg.Role)] += n
	}

	span.SetAttributes(attribute.Int("tokentally.conversation.tokens", total.Tokens))
	c.logger.Debug("conversation counted",
		zap.String("conversation", archive.Describe(conv)),
		zap.Int("messages", total.Messages),
		zap.Int("tokens", total.Tokens),
	)
	return total, nil
}

// recordOTel 记录 OTLP 指标；instrument 创建失败只记日志
func (c *Counter) recordOTel(ctx context.Context, tokens int, duration time.Duration, status string) {
	attrs := metric.WithAttributes(
		attribute.String("model", c.model),
		attribute.String("status", status),
	)

	if tokens > 0 {
		counter, err := c.meter.Int64Counter("tokentally.tokens",
			metric.WithDescription("Tokens counted across conversation archives"),
			metric.WithUnit("{token}"),
		)
		if err != nil {
			c.logger.Warn("create otel counter failed", zap.Error(err))
		} else {
			counter.Add(ctx, int64(tokens), attrs)
		}
	}

	hist, err := c.meter.Float64Histogram("tokentally.run.duration",
		metric.WithDescription("Duration of a counting run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		c.logger.Warn("create otel histogram failed", zap.Error(err))
		return
	}
	hist.Record(ctx, duration.Seconds(), attrs)
}

// tokenizerError 为编码失败补上位置信息。已带错误码的错误保留原码，
// 其余归为 TOKENIZER_ERROR。
func tokenizerError(conv archive.Conversation, nodeID string, err error) error {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrTokenizerError
	}
	return types.Errorf(code, "conversation %s node %s: count tokens", conv, nodeID).WithCause(err)
}

func roleKey(role string) string {
	if role == "" {
		return RoleUnknown
	}
	return role
}
