// Package di wires the rate limiter components with samber/do.
//
// 每个组件一个 Provider, 创建时完成初始化和启动; 关闭由 RootScope.Shutdown
// 按依赖逆序执行 (HTTP 服务 -> limiter -> 审计 sink -> 存储 -> 连接)
package di

import "github.com/samber/do/v2"

// Injector 类型别名
type Injector = do.Injector

// RootScope 类型别名
type RootScope = do.RootScope

// New 创建新的根注入器
var New = do.New
