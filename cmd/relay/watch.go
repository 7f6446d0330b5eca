package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/model"
)

var watchNATSURL string

var watchCmd = &cobra.Command{
	Use:   "watch TOPIC[,TOPIC...]",
	Short: "Subscribe to topics and print messages as they arrive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if watchNATSURL != "" {
			return watchNATS(ctx, watchNATSURL, args[0], printMessage)
		}

		err := relayClient.Watch(ctx, args[0], func(m *model.Message) error {
			printMessage(m)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchNATSURL, "nats", "",
		"watch the server's mirrored NATS subjects instead of the WebSocket endpoint")
}

// watchNATS consumes the server-side event mirror directly from the bus.
// Unlike the WebSocket path there is no "open" confirmation frame; the
// stream starts with the first message published after the subscription.
func watchNATS(ctx context.Context, url, topicList string, print func(*model.Message)) error {
	topics, ok := model.SplitTopics(topicList)
	if !ok {
		return fmt.Errorf("invalid topic list %q", topicList)
	}

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	frames := make(chan []byte, 64)
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return err
		}
		defer cancel()
		go func() {
			for data := range ch {
				select {
				case frames <- data:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-frames:
			var m model.Message
			if err := json.Unmarshal(data, &m); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				continue
			}
			print(&m)
		}
	}
}
