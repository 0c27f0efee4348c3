package bus

import (
	"errors"
	"strings"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message is a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// Bus carries task lifecycle events and group notifications between the
// state machine, the scoring engine and the sinks.
type Bus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject. A trailing ".*"
	// wildcard matches one additional token (e.g. "task.*").
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// QueueSubscribe creates a queue subscription. Messages are
	// load-balanced across members of the same queue, so multiple
	// scoring workers can share one event stream without double
	// processing.
	QueueSubscribe(subject, queue string) (Subscription, error)

	// Close shuts down the bus.
	Close() error
}

// Subscription is an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe stops the subscription and closes its channel.
	Unsubscribe() error
}

// Config holds options shared by bus implementations.
type Config struct {
	// BufferSize is the per-subscription channel buffer.
	BufferSize int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 64}
}

// ValidateSubject rejects empty or whitespace-containing subjects.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\n") {
		return ErrInvalidSubject
	}
	return nil
}

// subjectMatches reports whether a concrete subject matches a
// subscription pattern. Only a trailing ".*" wildcard is supported,
// matching exactly one more token, mirroring NATS semantics for the
// patterns this module uses.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if !strings.HasSuffix(pattern, ".*") {
		return false
	}
	prefix := strings.TrimSuffix(pattern, "*")
	rest, ok := strings.CutPrefix(subject, prefix)
	return ok && rest != "" && !strings.Contains(rest, ".")
}
