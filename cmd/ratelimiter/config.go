package main

import (
	"github.com/KOMKZ/go-yogan-ratelimiter/application"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd 打印合并后的生效配置, 密钥字段不输出
func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := do.Invoke[*application.AppConfig](opts.injector(cmd))
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
