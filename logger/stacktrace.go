package logger

import (
	"fmt"
	"runtime"
	"strings"
)

// CaptureStacktrace 捕获当前调用栈
// skip: 跳过的栈帧数; depth: 最大深度（<=0 时取 32）
func CaptureStacktrace(skip int, depth int) string {
	if depth <= 0 {
		depth = 32
	}

	pcs := make([]uintptr, depth*2)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	lines := make([]string, 0, depth)
	for {
		frame, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		if len(lines) >= depth || !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}

var levelOrder = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3, "fatal": 4}

func shouldCaptureStacktrace(level string, cfg ManagerConfig) bool {
	if !cfg.EnableStacktrace {
		return false
	}
	return levelOrder[level] >= levelOrder[cfg.StacktraceLevel]
}
