// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为计数运行提供
// tracer 与 meter。禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
