// Package tokenizer 提供统一的分词接口与按模型解析的后端注册表，
// 支持 tiktoken 精确计数（内嵌词表或在线词表）、CJK 估算器与按词计数，
// 供 counter 统计对话归档的 Token 总量。
package tokenizer
