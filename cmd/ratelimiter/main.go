// ratelimiter admission control service.
//
// Usage:
//
//	# 启动 HTTP 服务 (读取 ./configs/config.yaml 与 ./configs/<env>.yaml)
//	ratelimiter serve -c ./configs
//
//	# 直接对配置的存储做一次检查
//	ratelimiter check tenant-a user-1 login --algorithm fixed_window --max-requests 5
//
//	# 查看 / 重置
//	ratelimiter status tenant-a user-1
//	ratelimiter reset tenant-a user-1 login
//
//	# 签发管理接口 token, 打印生效配置
//	ratelimiter admin-token --subject ops
//	ratelimiter config
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
