package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/taskbridge/internal/relay"
	tbsignal "github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/widget"
	"github.com/spf13/cobra"
)

var (
	widgetWidth  int
	widgetFollow bool
	widgetTap    string
)

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Render the task widget from a running relay, follow it, or tap it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := tbsignal.NewHub(nil)
		defer hub.Close()
		c, err := newRelayClient(hub)
		if err != nil {
			return err
		}
		p := widget.NewPipeline(widget.Options{Source: c, Mailbox: c})
		out := cmd.OutOrStdout()

		if widgetTap != "" {
			target := tapTarget(widgetTap)
			if err := p.Click(cmd.Context(), target); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "posted %s\n", target.Action())
			return err
		}
		if !widgetFollow {
			writeFrame(out, p.OnCreate(cmd.Context()), widgetWidth)
			return nil
		}
		return followWidget(cmd.Context(), c, hub, p, out)
	},
}

func init() {
	widgetCmd.Flags().IntVar(&widgetWidth, "width", 40, "render width in cells")
	widgetCmd.Flags().BoolVarP(&widgetFollow, "follow", "f", false, "redraw on every invalidation until interrupted")
	widgetCmd.Flags().StringVar(&widgetTap, "tap", "", `tap the widget: "add" or a task id`)
}

// tapTarget maps the --tap value onto a click target.
func tapTarget(v string) widget.ClickTarget {
	if v == "add" || v == "+" {
		return widget.ClickTarget{Kind: widget.TargetAddTask}
	}
	return widget.ClickTarget{Kind: widget.TargetRow, TaskID: v}
}

func writeFrame(w io.Writer, f widget.Frame, width int) {
	_, _ = fmt.Fprintln(w, f.Render(width))
}

func followWidget(ctx context.Context, c *relay.Client, hub *tbsignal.Hub, p *widget.Pipeline, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := hub.Subscribe(tbsignal.TopicWidget)
	defer sub.Close()

	go func() { _ = c.Follow(ctx, tbsignal.TopicWidget) }()
	err := p.Run(ctx, sub.C(), func(f widget.Frame) {
		_, _ = fmt.Fprintf(out, "--- version %d\n", f.Version)
		writeFrame(out, f, widgetWidth)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
