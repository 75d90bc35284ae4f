package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRunID returns a short correlation id for one pipeline run. It is
// carried through log lines, queue messages and exported snapshots so a
// run's artifacts can be tied together.
func NewRunID() string {
	id, err := gonanoid.Generate(runIDAlphabet, 12)
	if err != nil {
		// gonanoid only fails if the platform RNG is broken
		return "run-unknown"
	}
	return "run-" + id
}
