// =============================================================================
// 📦 tokentally 默认配置
// =============================================================================
// 不提供任何配置时，行为与最初的脚本一致：
// 读取 conversations.json，按 gpt-4o 的词表计数
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Archive:   DefaultArchiveConfig(),
		Tokenizer: DefaultTokenizerConfig(),
		Extract:   DefaultExtractConfig(),
		Output:    DefaultOutputConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultArchiveConfig 返回默认导出文件配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Path: "conversations.json",
	}
}

// DefaultTokenizerConfig 返回默认分词器配置
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		Backend: "offline",
		Model:   "gpt-4o",
	}
}

// DefaultExtractConfig 返回默认提取配置
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		Parts: "skip",
	}
}

// DefaultOutputConfig 返回默认输出配置
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Format: "text",
	}
}

// DefaultLogConfig 返回默认日志配置
// 日志写 stderr，stdout 只留给报告
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:     false,
		Namespace:   "tokentally",
		Job:         "tokentally",
		PushTimeout: 10 * time.Second,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:         false,
		OTLPEndpoint:    "localhost:4317",
		ServiceName:     "tokentally",
		SampleRate:      1.0,
		ShutdownTimeout: 5 * time.Second,
	}
}
