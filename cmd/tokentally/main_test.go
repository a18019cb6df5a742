package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tokentally/config"
	"github.com/BaSui01/tokentally/testutil"
	"github.com/BaSui01/tokentally/testutil/fixtures"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

// =============================================================================
// 🧪 count
// =============================================================================

func TestRun_CountWords(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.HelloWorld)

	code, stdout, stderr := runCLI(t, "count", "--file", path, "--backend", "words")
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "Total tokens used: 2\n", stdout)
}

func TestRun_DefaultsToCount(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.HelloWorld)

	code, stdout, _ := runCLI(t, "--file", path, "--backend", "words")
	assert.Equal(t, 0, code)
	assert.Equal(t, "Total tokens used: 2\n", stdout)
}

func TestRun_DefaultTokenizer(t *testing.T) {
	// 默认 offline 后端，gpt-4o 的词表内嵌在二进制里
	path := testutil.WriteArchive(t, fixtures.HelloWorld)

	code, stdout, stderr := runCLI(t, "--file", path)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "Total tokens used: 2\n", stdout)
}

func TestRun_DefaultPath(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.ChatGPTExport)
	t.Chdir(strings.TrimSuffix(path, "conversations.json"))

	code, stdout, stderr := runCLI(t, "--backend", "words")
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, fmt.Sprintf("Total tokens used: %d\n", fixtures.ChatGPTExportWords), stdout)
}

func TestRun_EmptyArchive(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.Empty)

	code, stdout, _ := runCLI(t, "--file", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Total tokens used: 0\n", stdout)
}

func TestRun_JSONFormat(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.ChatGPTExport)

	code, stdout, stderr := runCLI(t, "--file", path, "--backend", "words", "--format", "json")
	require.Equal(t, 0, code, stderr)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, float64(fixtures.ChatGPTExportWords), got["total_tokens"])
	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, "words", got["tokenizer"])
	assert.NotEmpty(t, got["run_id"])
}

func TestRun_ConfigFileAndFlagOverride(t *testing.T) {
	archivePath := testutil.WriteArchive(t, fixtures.ChatGPTExport)
	cfgPath := testutil.WriteFile(t, "tokentally.yaml", fmt.Sprintf(`
archive:
  path: %s
tokenizer:
  backend: words
extract:
  parts: stringify
`, archivePath))

	code, stdout, stderr := runCLI(t, "count", "--config", cfgPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, fmt.Sprintf("Total tokens used: %d\n", fixtures.ChatGPTExportWords+4), stdout)

	// 命令行参数优先于配置文件
	code, stdout, _ = runCLI(t, "count", "--config", cfgPath, "--parts", "skip")
	require.Equal(t, 0, code)
	assert.Equal(t, fmt.Sprintf("Total tokens used: %d\n", fixtures.ChatGPTExportWords), stdout)
}

func TestRun_EnvOverride(t *testing.T) {
	path := testutil.WriteArchive(t, fixtures.HelloWorld)
	t.Setenv("TOKENTALLY_ARCHIVE_PATH", path)
	t.Setenv("TOKENTALLY_TOKENIZER_BACKEND", "words")

	code, stdout, _ := runCLI(t)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Total tokens used: 2\n", stdout)
}

// =============================================================================
// 🧪 错误路径：stdout 无输出，stderr 为 "Error: ..."，退出码 1
// =============================================================================

func TestRun_Errors(t *testing.T) {
	valid := testutil.WriteArchive(t, fixtures.ChatGPTExport)
	malformed := testutil.WriteFile(t, "broken.json", `[{"mapping": `)
	object := testutil.WriteFile(t, "object.json", `{"mapping": {}}`)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"--file", valid + ".missing"}, "ARCHIVE_READ"},
		{"malformed json", []string{"--file", malformed}, "ARCHIVE_PARSE"},
		{"root not array", []string{"--file", object}, "ARCHIVE_PARSE"},
		{"unknown backend", []string{"--file", valid, "--backend", "sentencepiece"}, "TOKENIZER_UNAVAILABLE"},
		{"unknown model", []string{"--file", valid, "--model", "no-such-model"}, "TOKENIZER_UNAVAILABLE"},
		{"invalid parts", []string{"--file", valid, "--parts", "drop"}, "INVALID_CONFIG"},
		{"invalid format", []string{"--file", valid, "--format", "xml"}, "INVALID_CONFIG"},
		{"fail on image part", []string{"--file", valid, "--backend", "words", "--parts", "fail"}, "NON_TEXT_PART"},
		{"unexpected argument", []string{"count", "extra.json"}, "unexpected arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout, "no report on failure")
			assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_BadConfigFile(t *testing.T) {
	cfgPath := testutil.WriteFile(t, "tokentally.yaml", "tokenizer: [")

	code, stdout, stderr := runCLI(t, "--config", cfgPath)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "INVALID_CONFIG")
}

// =============================================================================
// 🧪 指标推送
// =============================================================================

func TestRun_PushesMetrics(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	path := testutil.WriteArchive(t, fixtures.HelloWorld)
	t.Setenv("TOKENTALLY_METRICS_ENABLED", "true")
	t.Setenv("TOKENTALLY_METRICS_PUSHGATEWAY_URL", srv.URL)
	t.Setenv("TOKENTALLY_METRICS_JOB", "cli-test")

	code, stdout, stderr := runCLI(t, "--file", path, "--backend", "words")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Total tokens used: 2\n", stdout)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "PUT /metrics/job/cli-test/run_id/"), paths[0])
}

func TestRun_PushFailureDoesNotFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	path := testutil.WriteArchive(t, fixtures.HelloWorld)
	t.Setenv("TOKENTALLY_METRICS_ENABLED", "true")
	t.Setenv("TOKENTALLY_METRICS_PUSHGATEWAY_URL", srv.URL)
	t.Setenv("TOKENTALLY_LOG_LEVEL", "error")

	code, stdout, _ := runCLI(t, "--file", path, "--backend", "words")
	assert.Equal(t, 0, code)
	assert.Equal(t, "Total tokens used: 2\n", stdout)
}

// =============================================================================
// 🧪 其他命令
// =============================================================================

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "tokentally dev")
	assert.Contains(t, stdout, "offline")
}

func TestRun_Help(t *testing.T) {
	for _, arg := range []string{"help", "-h", "--help"} {
		code, stdout, stderr := runCLI(t, arg)
		assert.Equal(t, 0, code, arg)
		assert.Contains(t, stdout, "Usage:", arg)
		assert.Contains(t, stdout, "--backend <name>", arg)
		assert.Empty(t, stderr, arg)
	}
}

func TestRun_FlagHelp(t *testing.T) {
	code, stdout, stderr := runCLI(t, "count", "-h")
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "-backend")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, stdout, stderr := runCLI(t, "serve")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Unknown command: serve")
}

func TestInitLogger(t *testing.T) {
	tests := []config.LogConfig{
		config.DefaultLogConfig(),
		{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}},
		{Level: "bogus", Format: "console"},
		{Level: "info", Format: "json", OutputPaths: []string{"/definitely/not/a/dir/log.txt"}},
	}
	for _, cfg := range tests {
		logger := initLogger(cfg)
		require.NotNil(t, logger)
		logger.Debug("probe")
	}
}
