package main

import (
	"github.com/loykin/taskbridge/internal/notify"
	"github.com/spf13/cobra"
)

var (
	notifyTitle      string
	notifyMessage    string
	notifyProgress   int
	notifyActionable bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Push notification state to a running relay",
	Long: `Push notification state to a running relay.

Progress selects the mode: -1 idle, -2 syncing, -3 active without a
percentage, 0..100 active with a percentage bar.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newRelayClient(nil)
		if err != nil {
			return err
		}
		return c.PublishNotification(cmd.Context(), notifyTitle, notifyMessage, notifyProgress, notifyActionable)
	},
}

func init() {
	notifyCmd.Flags().StringVar(&notifyTitle, "title", "", "notification title")
	notifyCmd.Flags().StringVar(&notifyMessage, "message", "", "notification message")
	notifyCmd.Flags().IntVar(&notifyProgress, "progress", notify.ProgressNone, "progress or mode sentinel")
	notifyCmd.Flags().BoolVar(&notifyActionable, "actionable", false, "offer Pause and Done actions while a task is active")
}
