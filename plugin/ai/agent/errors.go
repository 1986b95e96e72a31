package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInputEmpty means the utterance was blank after trimming.
	ErrInputEmpty = errors.New("empty input")

	errNilResponse = errors.New("chat service returned no response")
)

// ChatCompletionError wraps a failed model round.
type ChatCompletionError struct {
	Round int
	Err   error
}

func (e *ChatCompletionError) Error() string {
	return fmt.Sprintf("chat round %d: %v", e.Round, e.Err)
}

func (e *ChatCompletionError) Unwrap() error {
	return e.Err
}
