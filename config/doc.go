// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

// Package config 提供 tokentally 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（TOKENTALLY_ 前缀）的顺序叠加，
// 由 Validate 汇总校验。不提供任何配置时读取 conversations.json 并按
// gpt-4o 计数。
package config
