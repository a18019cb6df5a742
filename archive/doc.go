// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

/*
Package archive 加载对话导出文件（conversations.json）并提取消息文本。

# 概述

导出文件是对话记录数组，每条记录可包含 mapping 对象，mapping 的每个值
可包含 message.content.parts 字符串数组。archive 使用 gjson 直接在原始
字节上按路径取值，不做基于反射的解码。

# 核心类型

  - Archive：已加载的只读导出，根为对话数组
  - Conversation：一条对话记录（Index、ID、Title）
  - Extractor：按 PartPolicy 提取每个 mapping 条目的文本
  - Message：一个消息节点的拼接文本与统计

# 缺省规则

路径上任一字段缺失、为 null 或类型不符时视为空对象或空数组，
对应条目贡献空文本而不是报错。parts 中的非字符串元素由 PartPolicy 决定：
skip（默认，丢弃并计数）、stringify（使用原始 JSON 文本）、fail（报错）。
*/
package archive
