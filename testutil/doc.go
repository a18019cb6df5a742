// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 tokentally 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 文件辅助: WriteArchive / WriteFile，在 t.TempDir 下生成导出文件
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: MockTokenizer，支持错误注入与调用记录
  - testutil/fixtures: 导出样例（HelloWorld、ChatGPTExport 等）与
    对话构造器 Conversation / Export，以及基于 sjson 的 AppendPart
*/
package testutil
