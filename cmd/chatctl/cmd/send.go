package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"chat-realtime/internal/models"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <room_id> <text>",
	Short: "Sends one message and waits for the server to accept it.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid room id %q", args[0])
		}
		coord, err := newCoordinator()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		var (
			once      sync.Once
			mu        sync.Mutex
			requestID string
			result    = make(chan error, 1)
		)
		finish := func(err error) {
			select {
			case result <- err:
			default:
			}
		}
		// sent once the session has rejoined its rooms, which may be none
		coord.OnReady(func() {
			once.Do(func() {
				// held across Send so the reply cannot be matched before the id is known
				mu.Lock()
				defer mu.Unlock()
				id, err := coord.Send(models.EventSendMessage, models.SendMessagePayload{RoomID: roomID, Content: args[1]})
				if err != nil {
					finish(err)
					return
				}
				requestID = id
			})
		})
		coord.OnEvent(func(env models.Envelope) {
			mu.Lock()
			mine := requestID != "" && env.RequestID == requestID
			mu.Unlock()
			if !mine {
				return
			}
			switch env.Type {
			case models.EventAck:
				finish(nil)
			case models.EventError:
				var p models.ErrorPayload
				if err := env.Decode(&p); err != nil {
					finish(fmt.Errorf("decode error reply: %w", err))
					return
				}
				finish(fmt.Errorf("%s: %s", p.Code, p.Message))
			}
		})

		go coord.Run(ctx)

		select {
		case err := <-result:
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "sent")
			}
			return err
		case <-ctx.Done():
			return errors.New("timed out waiting for the server")
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
