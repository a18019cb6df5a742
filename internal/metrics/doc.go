// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的计数运行指标。

# 概述

Collector 持有独立的 prometheus.Registry，不污染全局 DefaultRegisterer。
命令行一次运行结束后，可通过 Push 把整个 Registry 推送到 Pushgateway，
适合定时任务这类短生命周期进程。

# 指标

  - runs_total、run_duration_seconds：按 model/status 分组的运行次数与耗时。
  - tokens_total、messages_total、conversations_total：按 model 累计。
  - skipped_parts_total：被 skip 策略丢弃的非文本 part。
  - last_success_timestamp_seconds、archive_size_bytes。
*/
package metrics
