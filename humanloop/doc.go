// 版权所有 2024 GoHumanLoopHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 humanloop 实现人机循环请求的领域核心：数据模型、持久化、
生命周期状态机与查询统计。

# 概述

AI Agent 在执行过程中产生需要人类介入的请求（审批、信息获取、
多轮对话），本包负责这些请求从创建到终态的完整生命周期管理。
请求以四元组自然键 (conversation_id, request_id, platform, owner_id)
对外标识，内部使用 UUID 主键。

# 核心类型

  - Request：请求记录，GORM 模型，落在 humanloop_requests 表。
  - Store：持久化层，事务内读写，负责行锁与错误归一化。
  - Engine：状态机引擎，实现创建、处理、取消、继续、批量等操作，
    每个操作在单个事务内校验前置条件并写入。
  - Query：只读查询层，分页列表与多维度统计聚合。

# 状态机

三种循环类型各自约束可达的终态：

  - approval：pending/inprogress → approved | rejected
  - information：pending/inprogress → completed
  - conversation：pending/inprogress → inprogress | completed
  - 任何 pending 请求可被调用方取消为 cancelled

管理员的状态覆写接口不受上述规则约束，可以把任意请求置为
任意合法状态。
*/
package humanloop
