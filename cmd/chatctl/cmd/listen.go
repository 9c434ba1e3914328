package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"chat-realtime/internal/client"
	"chat-realtime/internal/models"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stays connected and prints live events and the unread total.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := newCoordinator()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		coord.OnEvent(func(env models.Envelope) {
			if env.Type == models.EventAck {
				return
			}
			fmt.Fprintf(out, "%s %s\n", eventStyle(env.Type).Sprintf("%-18s", env.Type), env.Payload)
		})
		coord.Aggregator().OnChange(func(v client.View) {
			fmt.Fprintf(out, "%s %d\n", color.New(color.BgBlack, color.FgGreen).Sprintf("%-18s", "unread total"), v.Total)
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func eventStyle(t models.EventType) color.Style {
	switch t {
	case models.EventError:
		return color.New(color.FgRed, color.OpBold)
	case models.EventNewMessage:
		return color.New(color.FgCyan)
	case models.EventPresenceChanged, models.EventTypingList:
		return color.New(color.FgGray)
	default:
		return color.New(color.FgYellow)
	}
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
