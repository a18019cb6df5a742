// =============================================================================
// tokentally 主入口
// =============================================================================
// 统计 ChatGPT 导出文件 conversations.json 中全部消息的 token 数
//
// 使用方法:
//
//	tokentally                                  # 统计当前目录的 conversations.json
//	tokentally count --file export.json         # 指定导出文件
//	tokentally count --model gpt-4 --format json
//	tokentally version                          # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/tokentally/archive"
	"github.com/BaSui01/tokentally/config"
	"github.com/BaSui01/tokentally/counter"
	"github.com/BaSui01/tokentally/internal/metrics"
	"github.com/BaSui01/tokentally/internal/telemetry"
	"github.com/BaSui01/tokentally/tokenizer"
	"github.com/BaSui01/tokentally/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行命令并返回退出码。stdout 只承载报告。
func run(args []string, stdout, stderr io.Writer) int {
	cmd := "count"
	if len(args) > 0 && (isHelpFlag(args[0]) || !strings.HasPrefix(args[0], "-")) {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "count":
		if err := runCount(args, stdout, stderr); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
}

// isHelpFlag 报告 arg 是否为顶层帮助参数
func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help"
}

// =============================================================================
// 🔢 count 命令
// =============================================================================

// countFlags 命令行参数，非空时覆盖配置
type countFlags struct {
	configPath string
	file       string
	model      string
	backend    string
	encoding   string
	parts      string
	format     string
}

func parseCountFlags(args []string, stderr io.Writer) (*countFlags, error) {
	f := &countFlags{}
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&f.file, "file", "", "Path to conversations.json")
	fs.StringVar(&f.model, "model", "", "Model whose tokenizer is used")
	fs.StringVar(&f.backend, "backend", "", "Tokenizer backend: "+strings.Join(tokenizer.Backends(), ", "))
	fs.StringVar(&f.encoding, "encoding", "", "Explicit encoding, e.g. o200k_base")
	fs.StringVar(&f.parts, "parts", "", "Non-text parts: skip, stringify or fail")
	fs.StringVar(&f.format, "format", "", "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return f, nil
}

// apply 把命令行参数叠加到配置上
func (f *countFlags) apply(cfg *config.Config) {
	if f.file != "" {
		cfg.Archive.Path = f.file
	}
	if f.model != "" {
		cfg.Tokenizer.Model = f.model
	}
	if f.backend != "" {
		cfg.Tokenizer.Backend = f.backend
	}
	if f.encoding != "" {
		cfg.Tokenizer.Encoding = f.encoding
	}
	if f.parts != "" {
		cfg.Extract.Parts = f.parts
	}
	if f.format != "" {
		cfg.Output.Format = f.format
	}
}

func loadConfig(f *countFlags) (*config.Config, error) {
	loader := config.NewLoader()
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "load config").WithCause(err)
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCount(args []string, stdout, stderr io.Writer) error {
	f, err := parseCountFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger.Debug("starting tokentally",
		zap.String("run_id", runID),
		zap.String("version", Version),
		zap.String("archive", cfg.Archive.Path),
		zap.String("backend", cfg.Tokenizer.Backend),
		zap.String("model", cfg.Tokenizer.Model),
	)

	// 遥测初始化失败不影响计数
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		defer pushMetrics(collector, cfg.Metrics, runID)
	}

	report, err := count(cfg, runID, logger, collector, providers)
	if err != nil {
		return err
	}

	write, _ := counter.WriterFor(cfg.Output.Format)
	return write(stdout, report)
}

// count 解析分词器、加载导出文件并完成统计
func count(cfg *config.Config, runID string, logger *zap.Logger, collector *metrics.Collector, providers *telemetry.Providers) (*counter.Report, error) {
	tok, err := tokenizer.New(tokenizer.Options{
		Backend:  cfg.Tokenizer.Backend,
		Model:    cfg.Tokenizer.Model,
		Encoding: cfg.Tokenizer.Encoding,
	})
	if err != nil {
		return nil, err
	}

	policy, err := archive.ParsePartPolicy(cfg.Extract.Parts)
	if err != nil {
		return nil, err
	}

	a, err := archive.Load(cfg.Archive.Path)
	if err != nil {
		return nil, err
	}

	c := counter.New(tok, archive.NewExtractor(policy),
		counter.WithLogger(logger),
		counter.WithMetrics(collector),
		counter.WithTracer(providers.Tracer()),
		counter.WithMeter(providers.Meter()),
		counter.WithModel(modelLabel(cfg.Tokenizer)),
	)
	return c.Count(types.WithRunID(context.Background(), runID), a)
}

func modelLabel(cfg config.TokenizerConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return cfg.Encoding
}

// pushMetrics 推送失败只记录日志，不改变退出码
func pushMetrics(collector *metrics.Collector, cfg config.MetricsConfig, runID string) {
	if cfg.PushgatewayURL == "" {
		return
	}
	_ = collector.Push(context.Background(), metrics.PushOptions{
		URL:      cfg.PushgatewayURL,
		Job:      cfg.Job,
		Grouping: map[string]string{"run_id": runID},
		Timeout:  cfg.PushTimeout,
	})
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tokentally %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Backends:   %s\n", strings.Join(tokenizer.Backends(), ", "))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tokentally - count tokens in a ChatGPT conversations.json export

Usage:
  tokentally [count] [options]
  tokentally <command>

Commands:
  count     Count tokens (default)
  version   Show version information
  help      Show this help message

Options for 'count':
  --config <path>     Path to configuration file (YAML)
  --file <path>       Export file (default conversations.json)
  --model <id>        Model whose tokenizer is used (default gpt-4o)
  --backend <name>    offline, tiktoken, estimator or words (default offline)
  --encoding <name>   Explicit encoding, overrides the model mapping
  --parts <policy>    Non-text parts: skip, stringify or fail (default skip)
  --format <fmt>      text or json (default text)

Environment:
  TOKENTALLY_<SECTION>_<KEY> overrides the config file,
  e.g. TOKENTALLY_TOKENIZER_MODEL=gpt-4

Examples:
  tokentally
  tokentally count --file ~/Downloads/conversations.json
  tokentally count --backend tiktoken --model gpt-4 --format json
  tokentally version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.WarnLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if strings.ToLower(cfg.Format) == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到写 stderr 的基本 logger
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		if logger, err = cfg.Build(); err != nil {
			return zap.NewNop()
		}
	}
	return logger
}
