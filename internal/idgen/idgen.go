// Package idgen provides short random message ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the 62-symbol character set used for message IDs.
var Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Length is the number of characters in a message ID. Pull cursors rely on
// this width to tell an ID apart from a 10-digit epoch timestamp, so it must
// stay at 12.
var Length = 12

// Generate returns a new random message ID.
func Generate() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id, nil
}
