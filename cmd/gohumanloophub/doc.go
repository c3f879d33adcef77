// Copyright (c) GoHumanLoopHub Authors.
// Licensed under the MIT License.

/*
Package main 提供 GoHumanLoopHub 服务端程序入口。

# 概述

cmd/gohumanloophub 是 GoHumanLoopHub 的可执行入口，提供人机协同
HTTP API 服务、健康检查和版本查询等子命令。程序支持 YAML 配置文件
加载、结构化日志（zap）、Prometheus 指标采集以及 GORM 自动建表。

# 核心类型

  - Server           — 主服务器，管理基础设施、路由注册及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、CORS、OwnerRateLimiter（按认证账号限流）
  - 认证：APIKeyAuth（X-API-Key，调用方 API）、AdminAuth（Bearer JWT
    加超级管理员校验，管理端 API）
  - Metrics：主端口按配置路径暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止限流清理 → 关闭 HTTP → 关闭缓存与连接池
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
