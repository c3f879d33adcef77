// Copyright (c) GoHumanLoopHub Authors.
// Licensed under the MIT License.

/*
Package types 提供 GoHumanLoopHub 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 humanloop、api、
auth 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - Document          — 无结构 JSON 文档，统一承载 context/metadata/response

# 错误码分类

生命周期错误（引擎返回，边界层转为 success=false 响应）：
NOT_FOUND、ALREADY_EXISTS、TYPE_MISMATCH、INVALID_STATE_FOR_ACTION、
INVALID_ARGUMENT、NO_PENDING_REQUESTS、CONFLICT

边界错误（HTTP 层直接使用）：
INVALID_REQUEST、AUTHENTICATION、UNAUTHORIZED、FORBIDDEN、
RATE_LIMITED、INTERNAL_ERROR
*/
package types
