package httpx

import (
	"github.com/gin-gonic/gin"
)

const errorLoggingConfigKey = "httpx:error_logging_config"

// errorLoggingConfigInternal 预处理后的配置
type errorLoggingConfigInternal struct {
	Enable          bool
	IgnoreStatusMap map[int]bool
	FullErrorChain  bool
	LogLevel        string
}

// ErrorLoggingMiddleware 注入错误日志配置到 Context
// 使用此中间件后，HandleError 将根据配置决定是否记录日志
func ErrorLoggingMiddleware(cfg ErrorLoggingConfig) gin.HandlerFunc {
	ignoreStatusMap := make(map[int]bool, len(cfg.IgnoreHTTPStatus))
	for _, status := range cfg.IgnoreHTTPStatus {
		ignoreStatusMap[status] = true
	}

	internalCfg := errorLoggingConfigInternal{
		Enable:          cfg.Enable,
		IgnoreStatusMap: ignoreStatusMap,
		FullErrorChain:  cfg.FullErrorChain,
		LogLevel:        cfg.LogLevel,
	}

	return func(c *gin.Context) {
		c.Set(errorLoggingConfigKey, internalCfg)
		c.Next()
	}
}

func getErrorLoggingConfig(c *gin.Context) errorLoggingConfigInternal {
	if val, exists := c.Get(errorLoggingConfigKey); exists {
		if cfg, ok := val.(errorLoggingConfigInternal); ok {
			return cfg
		}
	}
	// 未挂中间件: 不记录
	return errorLoggingConfigInternal{IgnoreStatusMap: map[int]bool{}, LogLevel: "error"}
}
