package notify

import (
	"context"
	"sync"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/logging"
)

// Sink delivers a human-readable message to a chat group. Delivery is
// best-effort everywhere: callers log sink errors and never let them
// fail or roll back the operation that triggered the notification.
type Sink interface {
	Notify(ctx context.Context, groupID, message string) error
}

// MemorySink records notifications for tests.
type MemorySink struct {
	mu       sync.Mutex
	messages []Notification
}

// Notification is one recorded message.
type Notification struct {
	GroupID string
	Message string
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Notify records the message.
func (s *MemorySink) Notify(ctx context.Context, groupID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Notification{GroupID: groupID, Message: message})
	return nil
}

// Messages returns a copy of everything recorded so far.
func (s *MemorySink) Messages() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.messages))
	copy(out, s.messages)
	return out
}

// BusSink publishes notifications on the bus under "notify.<group>",
// where a chat-platform adapter picks them up for delivery.
type BusSink struct {
	bus bus.Bus
}

// SubjectPrefix is the bus subject prefix for notifications.
const SubjectPrefix = "notify."

// NewBusSink creates a sink publishing to the given bus.
func NewBusSink(b bus.Bus) *BusSink {
	return &BusSink{bus: b}
}

// Notify publishes the message.
func (s *BusSink) Notify(ctx context.Context, groupID, message string) error {
	return s.bus.Publish(SubjectPrefix+groupID, []byte(message))
}

// LogSink writes notifications to the log. Useful as a fallback when
// no chat adapter is wired.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a logging sink.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("notify")}
}

// Notify logs the message.
func (s *LogSink) Notify(ctx context.Context, groupID, message string) error {
	s.log.WithGroup(groupID).Info(message)
	return nil
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(ctx context.Context, groupID, message string) error {
	return nil
}
