package counter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/tokentally/archive"
	"github.com/BaSui01/tokentally/internal/metrics"
	"github.com/BaSui01/tokentally/testutil"
	"github.com/BaSui01/tokentally/testutil/fixtures"
	"github.com/BaSui01/tokentally/testutil/mocks"
	"github.com/BaSui01/tokentally/tokenizer"
	"github.com/BaSui01/tokentally/types"
)

func mustParse(t *testing.T, content string) *archive.Archive {
	t.Helper()
	a, err := archive.Parse([]byte(content))
	require.NoError(t, err)
	return a
}

func countWords(t *testing.T, content string, policy archive.PartPolicy, opts ...Option) (*Report, error) {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c := New(tokenizer.NewWordTokenizer(), archive.NewExtractor(policy), opts...)
	return c.Count(testutil.TestContext(t), mustParse(t, content))
}

// =============================================================================
// 🧪 汇总
// =============================================================================

func TestCount_HelloWorld(t *testing.T) {
	report, err := countWords(t, fixtures.HelloWorld, archive.PartsSkip)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Conversations)
	assert.Equal(t, 1, report.Messages)
}

func TestCount_EmptyArchive(t *testing.T) {
	report, err := countWords(t, fixtures.Empty, archive.PartsSkip)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Conversations)
	assert.Empty(t, report.PerConversation)
}

func TestCount_NoMapping(t *testing.T) {
	report, err := countWords(t, fixtures.NoMapping, archive.PartsSkip)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 1, report.Conversations)
	assert.Equal(t, 0, report.Messages)
	require.Len(t, report.PerConversation, 1)
	assert.Equal(t, "c-empty", report.PerConversation[0].ID)
}

func TestCount_ChatGPTExport(t *testing.T) {
	report, err := countWords(t, fixtures.ChatGPTExport, archive.PartsSkip, WithRunID("run-1"), WithModel("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, fixtures.ChatGPTExportWords, report.Total)
	assert.Equal(t, 2, report.Conversations)
	assert.Equal(t, 6, report.Messages)
	assert.Equal(t, 1, report.SkippedParts)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "gpt-4o", report.Model)
	assert.Equal(t, "words", report.Tokenizer)
	assert.Equal(t, archive.PartsSkip, report.PartPolicy)

	assert.Equal(t, map[string]int{
		"system":    0,
		"user":      8,
		"assistant": 5,
		"tool":      0,
		RoleUnknown: 0,
	}, report.ByRole)

	require.Len(t, report.PerConversation, 2)
	assert.Equal(t, ConversationTotal{Index: 0, ID: "c-trip", Title: "Trip planning", Tokens: 10, Messages: 4}, report.PerConversation[0])
	assert.Equal(t, ConversationTotal{Index: 1, ID: "c-photo", Title: "Photo question", Tokens: 3, Messages: 2, SkippedParts: 1}, report.PerConversation[1])
}

func TestCount_StringifyPolicy(t *testing.T) {
	report, err := countWords(t, fixtures.ChatGPTExport, archive.PartsStringify)
	require.NoError(t, err)
	// 图片引用对象的原始 JSON 按空白切分为 4 个词
	assert.Equal(t, fixtures.ChatGPTExportWords+4, report.Total)
	assert.Equal(t, 0, report.SkippedParts)
}

func TestCount_AppendedNonTextPart(t *testing.T) {
	content := fixtures.AppendPart(fixtures.HelloWorld, 0, "1", map[string]any{"asset_pointer": "file-service://x"})
	content = fixtures.AppendPart(content, 0, "1", 42)

	report, err := countWords(t, content, archive.PartsSkip)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.SkippedParts)

	report, err = countWords(t, content, archive.PartsStringify)
	require.NoError(t, err)
	// {"asset_pointer":"file-service://x"} 和 42 各算一个词
	assert.Equal(t, 4, report.Total)
}

func TestCount_DuplicateMappingKeys(t *testing.T) {
	content := `[{"mapping": {"a": {"message": {"content": {"parts": ["x"]}}}, "a": {"message": {"content": {"parts": ["y z"]}}}}}]`

	report, err := countWords(t, content, archive.PartsSkip)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Messages)
}

func TestCount_FailPolicy(t *testing.T) {
	report, err := countWords(t, fixtures.ChatGPTExport, archive.PartsFail)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, types.ErrNonTextPart, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "c-photo")
}

func TestCount_EncodesEveryNode(t *testing.T) {
	// 空文本也要交给分词器
	tok := mocks.NewMockTokenizer()
	c := New(tok, nil)
	report, err := c.Count(context.Background(), mustParse(t, fixtures.ChatGPTExport))
	require.NoError(t, err)

	assert.Equal(t, fixtures.ChatGPTExportWords, report.Total)
	assert.Equal(t, []string{
		"",
		"",
		"Plan a trip to Kyoto",
		"Sure, start at Fushimi Inari.",
		"What is this?",
		"",
	}, tok.Calls())
	assert.Equal(t, "mock", report.Model, "model defaults to tokenizer name")
}

func TestCount_JoinedPartsReachTokenizer(t *testing.T) {
	tok := mocks.NewMockTokenizer()
	content := fixtures.Export(fixtures.Conversation("c1", []string{"a", "b"}))

	report, err := New(tok, nil).Count(context.Background(), mustParse(t, content))
	require.NoError(t, err)
	assert.Equal(t, []string{"a b"}, tok.Calls())
	assert.Equal(t, 2, report.Total)
}

// =============================================================================
// 🧪 错误
// =============================================================================

func TestCount_TokenizerError(t *testing.T) {
	cause := errors.New("vocabulary exploded")
	tok := mocks.NewMockTokenizer().WithError(cause)

	report, err := New(tok, nil).Count(context.Background(), mustParse(t, fixtures.HelloWorld))
	require.Error(t, err)
	assert.Nil(t, report, "no partial report on failure")
	assert.Equal(t, types.ErrTokenizerError, types.GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "node 1")
}

func TestCount_TokenizerErrorKeepsCode(t *testing.T) {
	cause := types.NewError(types.ErrTokenizerUnavailable, "ranks not loaded")
	tok := mocks.NewMockTokenizer().WithError(cause)

	_, err := New(tok, nil).Count(context.Background(), mustParse(t, fixtures.HelloWorld))
	require.Error(t, err)
	assert.Equal(t, types.ErrTokenizerUnavailable, types.GetErrorCode(err))
}

// =============================================================================
// 🧪 可观测性
// =============================================================================

func TestCount_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := countWords(t, fixtures.ChatGPTExport, archive.PartsSkip, WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)

	var root sdktrace.ReadOnlySpan
	children := 0
	for _, s := range spans {
		switch s.Name() {
		case "tokentally.count":
			root = s
		case "tokentally.conversation":
			children++
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, 2, children)
	assert.Equal(t, codes.Ok, root.Status().Code)

	attrs := map[string]int64{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	assert.Equal(t, int64(fixtures.ChatGPTExportWords), attrs["tokentally.total_tokens"])
}

func TestCount_SpanRecordsError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := countWords(t, fixtures.ChatGPTExport, archive.PartsFail, WithTracer(tp.Tracer("test")))
	require.Error(t, err)

	for _, s := range sr.Ended() {
		if s.Name() == "tokentally.count" {
			assert.Equal(t, codes.Error, s.Status().Code)
			return
		}
	}
	t.Fatal("root span not recorded")
}

func TestCount_PrometheusMetrics(t *testing.T) {
	collector := metrics.NewCollector("tt", zap.NewNop())

	_, err := countWords(t, fixtures.ChatGPTExport, archive.PartsSkip, WithMetrics(collector), WithModel("gpt-4o"))
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(fixtures.ChatGPTExportWords), values["tt_tokens_total"])
	assert.Equal(t, 6.0, values["tt_messages_total"])
	assert.Equal(t, 2.0, values["tt_conversations_total"])
	assert.Equal(t, 1.0, values["tt_skipped_parts_total"])
	assert.Equal(t, 1.0, values["tt_runs_total"])
	n, err := promtestutil.GatherAndCount(collector.Registry(), "tt_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCount_OTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	_, err := countWords(t, fixtures.ChatGPTExport, archive.PartsSkip, WithMeter(mp.Meter("test")))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var tokens int64
	var sawDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "tokentally.tokens":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					tokens += dp.Value
				}
			case "tokentally.run.duration":
				sawDuration = true
			}
		}
	}
	assert.Equal(t, int64(fixtures.ChatGPTExportWords), tokens)
	assert.True(t, sawDuration)
}

func TestCount_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := New(tokenizer.NewWordTokenizer(), nil, WithLogger(zap.New(core)), WithRunID("run-42"))

	_, err := c.Count(context.Background(), mustParse(t, fixtures.HelloWorld))
	require.NoError(t, err)

	finished := logs.FilterMessage("counting finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.Equal(t, int64(2), fields["total_tokens"])
	assert.Equal(t, "run-42", fields["run_id"])
	assert.Equal(t, "counter", fields["component"])
}

func TestCount_RunIDFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := New(tokenizer.NewWordTokenizer(), nil, WithLogger(zap.New(core)))

	ctx := types.WithRunID(context.Background(), "ctx-run")
	report, err := c.Count(ctx, mustParse(t, fixtures.HelloWorld))
	require.NoError(t, err)
	assert.Equal(t, "ctx-run", report.RunID)

	finished := logs.FilterMessage("counting finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "ctx-run", finished[0].ContextMap()["run_id"])

	// 显式设置的 run ID 优先
	report, err = New(tokenizer.NewWordTokenizer(), nil, WithRunID("opt-run")).Count(ctx, mustParse(t, fixtures.HelloWorld))
	require.NoError(t, err)
	assert.Equal(t, "opt-run", report.RunID)
}

// =============================================================================
// 🧪 输出
// =============================================================================

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, &Report{Total: 2}))
	assert.Equal(t, "Total tokens used: 2\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteText(&buf, &Report{}))
	assert.Equal(t, "Total tokens used: 0\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	report, err := countWords(t, fixtures.ChatGPTExport, archive.PartsSkip, WithRunID("run-1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, float64(fixtures.ChatGPTExportWords), got["total_tokens"])
	assert.Equal(t, "skip", got["part_policy"])
	assert.Len(t, got["per_conversation"], 2)
	assert.Contains(t, got, "duration_ms")
}

func TestWriterFor(t *testing.T) {
	for _, format := range []string{"", "text", "TEXT", "json"} {
		w, ok := WriterFor(format)
		assert.True(t, ok, format)
		assert.NotNil(t, w, format)
	}
	_, ok := WriterFor("xml")
	assert.False(t, ok)
}
