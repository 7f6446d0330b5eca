package main

import (
	"github.com/spf13/cobra"

	"github.com/groblegark/relay/internal/model"
)

var pullSince string

var pullCmd = &cobra.Command{
	Use:   "pull TOPIC",
	Short: "Pull a topic's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return relayClient.Pull(cmd.Context(), args[0], pullSince, func(m *model.Message) error {
			printMessage(m)
			return nil
		})
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullSince, "since", "all",
		`cursor: "all", 10-digit unix time, 12-char message id, or a relative duration like 2h`)
}
