package retry

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultDelay      = 2000 * time.Millisecond
)

var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Decision is the escalation outcome for a failed message.
type Decision int

const (
	Retry Decision = iota
	DeadLetter
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decide returns Retry while the message still has budget left.
func Decide(currentRetryCount, maxRetries int) Decision {
	if currentRetryCount < maxRetries {
		return Retry
	}
	return DeadLetter
}

// Policy bounds how often a failed message goes back through the retry topic.
// The delay is flat: every attempt waits the same amount.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultDelay,
	}
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries cannot be negative", ErrInvalidPolicy)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: delay cannot be negative", ErrInvalidPolicy)
	}
	return nil
}

func (p Policy) Decide(currentRetryCount int) Decision {
	return Decide(currentRetryCount, p.MaxRetries)
}

// BackoffDelay is the pause applied after a message is sent to the retry topic.
func (p Policy) BackoffDelay(currentRetryCount int) time.Duration {
	return p.Delay
}
