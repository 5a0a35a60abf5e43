package main

import (
	"context"
	"fmt"

	"github.com/loykin/taskbridge/internal/kv"
	"github.com/spf13/cobra"
)

var kvDefault string

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write the persistent key-value store",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under key, or --default when absent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s *kv.Store) error {
			val, err := s.Get(ctx, args[0], kvDefault)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), val)
			return err
		})
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store value under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s *kv.Store) error {
			return s.Set(ctx, args[0], args[1])
		})
	},
}

var kvRemoveCmd = &cobra.Command{
	Use:     "rm <key>",
	Aliases: []string{"remove"},
	Short:   "Remove key",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s *kv.Store) error {
			return s.Remove(ctx, args[0])
		})
	},
}

var kvClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s *kv.Store) error {
			return s.Clear(ctx)
		})
	},
}

func init() {
	kvGetCmd.Flags().StringVar(&kvDefault, "default", "", "value printed when the key is absent")
	kvCmd.AddCommand(kvGetCmd, kvSetCmd, kvRemoveCmd, kvClearCmd)
}

// withStore opens the configured store for a single command. Unlike the
// bridge, the CLI reports store failures instead of degrading to no-ops.
func withStore(ctx context.Context, fn func(context.Context, *kv.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	doc, err := loadConfig(v)
	if err != nil {
		return err
	}
	cfg, err := doc.StoreOptions()
	if err != nil {
		return err
	}
	s, err := kv.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = s.Close() }()
	return fn(ctx, s)
}
