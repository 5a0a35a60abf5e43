package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/taskbridge"
	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/notify"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge and expose it to remote display hosts over the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig(v)
		if err != nil {
			return err
		}
		opts, err := doc.BridgeOptions()
		if err != nil {
			return err
		}
		opts.Surface = notify.NewTextSurface(cmd.OutOrStdout())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := taskbridge.New(ctx, opts)
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		relayOpts := doc.RelayOptions()
		logger := common.GetLogger().WithComponent("serve")
		logger.Info("bridge started", "relay", relayOpts.Addr, "store", b.StoreAvailable(), "jwt", relayOpts.JWT != nil)
		if err := b.Serve(ctx, relayOpts); err != nil {
			return err
		}
		logger.Info("bridge stopped")
		return nil
	},
}
