package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/groblegark/relay/internal/model"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// printMessage writes a message to stdout: human-readable on a terminal,
// one JSON object per line otherwise so output can be piped.
func printMessage(m *model.Message) {
	if !stdoutIsTerminal() {
		data, err := json.Marshal(m)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	ts := time.Unix(m.Time, 0).Local().Format("2006-01-02 15:04:05")
	switch m.Event {
	case model.EventOpen:
		fmt.Printf("%s  [%s] subscribed to %s\n", ts, m.ID, m.Topic)
	default:
		fmt.Printf("%s  [%s] %s: %s\n", ts, m.ID, m.Topic, m.Message)
	}
}
