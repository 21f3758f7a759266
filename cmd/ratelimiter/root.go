package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/di"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

// rootOptions 全局参数
type rootOptions struct {
	configDir string
	envPrefix string
}

// flagBindings flag name -> config key, 只有显式设置的 flag 才覆盖配置
var flagBindings = map[string]string{
	"log-level":      "logger.level",
	"storage":        "storage.type",
	"redis-instance": "storage.redis_instance",
	"port":           "server.port",
	"mode":           "server.mode",
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ratelimiter",
		Short:         "Multi-algorithm admission control service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configDir, "config-dir", "c", "./configs", "directory holding config.yaml and <env>.yaml")
	pf.StringVar(&opts.envPrefix, "env-prefix", "RATELIMITER", "environment variable prefix")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("storage", "", "default storage backend (memory, redis, embedded, etcd)")
	pf.String("redis-instance", "", "redis instance used by the redis store")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newResetCmd(opts),
		newConfigCmd(opts),
		newAdminTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// injector 按命令行参数构建注入器
func (o *rootOptions) injector(cmd *cobra.Command) *do.RootScope {
	return di.NewInjector(di.Options{
		ConfigPath:   o.configDir,
		EnvPrefix:    o.envPrefix,
		Flags:        cmd.Flags(),
		FlagBindings: flagBindings,
	})
}

// withInjector runs fn and always shuts the container down afterwards
func (o *rootOptions) withInjector(cmd *cobra.Command, fn func(ctx context.Context, i *do.RootScope) error) error {
	injector := o.injector(cmd)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		injector.ShutdownWithContext(ctx)
	}()
	return fn(cmd.Context(), injector)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
