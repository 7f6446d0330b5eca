package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish TOPIC [BODY]",
	Short: "Publish a message to a topic",
	Long: `Publish a message to a topic. The body is taken from the argument,
or from stdin when the argument is omitted and stdin is not a terminal.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]

		var body string
		if len(args) == 2 {
			body = args[1]
		} else if !stdinIsTerminal() {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			body = string(data)
		}

		msg, err := relayClient.Publish(cmd.Context(), topic, body)
		if err != nil {
			return err
		}
		printMessage(msg)
		return nil
	},
}
