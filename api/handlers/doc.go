// Copyright (c) GoHumanLoopHub Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 GoHumanLoopHub HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 GoHumanLoopHub 所有 HTTP 端点的请求处理逻辑，
包括人机协同请求的创建与查询、管理端处理接口、健康检查以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - HumanLoopHandler — 调用方端点：创建、查询状态、取消、继续对话
  - AdminHandler     — 管理端点：列表、详情、审批/信息/对话处理、批量操作、统计
  - AuthHandler      — 登录端点：签发管理端访问令牌
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ListResponse     — 分页列表响应（data + count + skip + limit）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteList 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 请求处理：审批、信息收集、多轮对话三种模式的管理端处理
  - 批量操作：部分失败时聚合错误消息并附带成功计数
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
