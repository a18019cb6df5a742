// Copyright (c) tokentally Authors.
// Licensed under the MIT License.

/*
Package types 提供 tokentally 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 archive、tokenizer、
counter 与 cmd 提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含错误码、消息与底层原因

# 主要能力

  - 错误码：ARCHIVE_READ / ARCHIVE_PARSE / NON_TEXT_PART /
    TOKENIZER_UNAVAILABLE / TOKENIZER_ERROR / INVALID_CONFIG
  - 错误工具链：NewError / Errorf / WithCause / GetErrorCode / IsErrorCode
*/
package types
