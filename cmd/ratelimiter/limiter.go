package main

import (
	"context"

	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		algorithm   string
		storageType string
		rate        float64
		capacity    int64
		maxRequests int64
		windowSize  int64
	)
	cmd := &cobra.Command{
		Use:   "check <unique_id> <user_id> <action_type>",
		Short: "Consume one unit against the configured store and print the decision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := limiter.CheckRequest{
				Key:           limiter.Key{UniqueID: args[0], UserID: args[1], ActionType: args[2]},
				AlgorithmType: limiter.AlgorithmType(algorithm),
				StorageType:   storageType,
			}
			// 只传显式给出的参数, 其余沿用已保存的配置或默认值
			f := cmd.Flags()
			if f.Changed("rate") {
				req.Params.Rate = &rate
			}
			if f.Changed("capacity") {
				req.Params.Capacity = &capacity
			}
			if f.Changed("max-requests") {
				req.Params.MaxRequests = &maxRequests
			}
			if f.Changed("window-size") {
				req.Params.WindowSize = &windowSize
			}

			return opts.withInjector(cmd, func(ctx context.Context, i *do.RootScope) error {
				m, err := do.Invoke[*limiter.Manager](i)
				if err != nil {
					return err
				}
				d, err := m.CheckAndConsume(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&algorithm, "algorithm", "", "token_bucket, fixed_window, sliding_window, leaky_bucket, multiple_buckets, sliding_window_approx")
	f.StringVar(&storageType, "storage-type", "", "per-request backend (redis, plugin_storage, memory, etcd)")
	f.Float64Var(&rate, "rate", 0, "tokens or leaks per second")
	f.Int64Var(&capacity, "capacity", 0, "bucket capacity")
	f.Int64Var(&maxRequests, "max-requests", 0, "requests per window")
	f.Int64Var(&windowSize, "window-size", 0, "window size in seconds")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var storageType string
	cmd := &cobra.Command{
		Use:   "status <unique_id> <user_id> [action_type]",
		Short: "Show quota state without consuming; all actions when action_type is omitted",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withInjector(cmd, func(ctx context.Context, i *do.RootScope) error {
				m, err := do.Invoke[*limiter.Manager](i)
				if err != nil {
					return err
				}
				if len(args) == 3 {
					view, err := m.Status(ctx, limiter.Key{UniqueID: args[0], UserID: args[1], ActionType: args[2]}, storageType, nil)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), view)
				}
				views, err := m.StatusAll(ctx, args[0], args[1], storageType, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().StringVar(&storageType, "storage-type", "", "per-request backend")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var storageType string
	cmd := &cobra.Command{
		Use:   "reset <unique_id> <user_id> <action_type>",
		Short: "Delete the state and config of one key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withInjector(cmd, func(ctx context.Context, i *do.RootScope) error {
				m, err := do.Invoke[*limiter.Manager](i)
				if err != nil {
					return err
				}
				k := limiter.Key{UniqueID: args[0], UserID: args[1], ActionType: args[2]}
				if err := m.Reset(ctx, k, storageType); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"reset": true})
			})
		},
	}
	cmd.Flags().StringVar(&storageType, "storage-type", "", "per-request backend")
	return cmd
}
