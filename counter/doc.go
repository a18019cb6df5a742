// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

// Package counter 汇总对话导出中每个消息节点的 token 数并生成报告。
//
// Count 是同步、单 goroutine 的：依次遍历对话、提取每个 mapping 条目的文本、
// 交给分词器计数。任一步出错立即返回，不输出部分结果。WriteText 输出
// "Total tokens used: N" 一行，WriteJSON 输出包含小计的完整报告。
package counter
