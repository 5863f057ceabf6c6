package synth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned for topics that fail local validation.
	// The gateway is never called for them.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidGame is matched by a [*RejectionError] whose model refused
	// the topic as not a real game.
	ErrInvalidGame = errors.New("invalid game")

	// ErrInvalidTopic is matched by a [*RejectionError] whose model refused
	// the topic as not a real conversation subject.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrMalformedResponse is returned when the model output is not a JSON
	// object carrying every required category.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrQuotaExceeded is matched by [*QuotaError].
	ErrQuotaExceeded = errors.New("topic quota exceeded")
)

// Rejection codes the model is instructed to answer with.
const (
	CodeInvalidGame  = "INVALID_GAME"
	CodeInvalidTopic = "INVALID_TOPIC"
)

// RejectionError is the model refusing a topic. It is a distinct outcome,
// not a parse failure, and carries the model's stated reason.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("synth: topic rejected (%s)", e.Code)
	}
	return fmt.Sprintf("synth: topic rejected (%s): %s", e.Code, e.Reason)
}

// Is matches [ErrInvalidGame] or [ErrInvalidTopic] according to Code.
func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrInvalidGame:
		return e.Code == CodeInvalidGame
	case ErrInvalidTopic:
		return e.Code == CodeInvalidTopic
	}
	return false
}

// QuotaError reports that a user owns the maximum number of topics. It
// carries the topics so callers can show them.
type QuotaError struct {
	CurrentGames []string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("synth: %v (current: %s)", ErrQuotaExceeded, strings.Join(e.CurrentGames, ", "))
}

// Is reports whether target is [ErrQuotaExceeded].
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
