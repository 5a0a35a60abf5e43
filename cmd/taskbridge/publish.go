package main

import (
	"fmt"
	"io"
	"os"

	"github.com/loykin/taskbridge/internal/snapshot"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [file]",
	Short: "Publish a task snapshot (JSON array) to a running relay; reads stdin without a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readSnapshot(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		// Reject locally so a typo never reaches the relay.
		tasks, err := snapshot.ParseTasks(raw)
		if err != nil {
			return err
		}
		c, err := newRelayClient(nil)
		if err != nil {
			return err
		}
		if err := c.PublishTasks(cmd.Context(), raw); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d tasks\n", len(tasks))
		return err
	},
}

func readSnapshot(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	// #nosec G304 -- file chosen by the user on the command line
	return os.ReadFile(args[0])
}
