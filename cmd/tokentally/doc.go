// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

/*
Package main 提供 tokentally 命令行入口。

# 概述

tokentally 读取 ChatGPT 数据导出中的 conversations.json，把每个消息节点
的 parts 用空格拼接后交给所选模型的分词器计数，最后在 stdout 输出一行
"Total tokens used: N"。日志写 stderr；出错时输出 "Error: ..." 并以 1 退出。

# 子命令

  - count（默认）：--config、--file、--model、--backend、--encoding、
    --parts、--format
  - version、help

配置优先级：默认值 → YAML → TOKENTALLY_ 环境变量 → 命令行参数。
*/
package main
