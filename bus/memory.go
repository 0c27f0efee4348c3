package bus

import (
	"sync"
	"sync/atomic"
)

// MemoryBus implements Bus with in-process channels.
// Useful for tests and single-process deployments.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   []*memorySub
	queues map[string]map[string]*queueGroup // pattern -> queue -> group
	closed atomic.Bool
}

type memorySub struct {
	pattern string
	queue   string // empty for broadcast subscriptions
	ch      chan *Message
	closed  atomic.Bool
	bus     *MemoryBus
}

// queueGroup round-robins messages across its members.
type queueGroup struct {
	members []*memorySub
	next    int
}

// NewMemoryBus creates a new in-memory bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &MemoryBus{
		config: cfg,
		queues: make(map[string]map[string]*queueGroup),
	}
}

// Publish sends a message to all matching subscribers.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{Subject: subject, Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.closed.Load() && subjectMatches(sub.pattern, subject) {
			sub.deliver(msg)
		}
	}

	for pattern, groups := range b.queues {
		if !subjectMatches(pattern, subject) {
			continue
		}
		for _, group := range groups {
			group.deliverOne(msg)
		}
	}

	return nil
}

// deliver sends without blocking; a full buffer drops the message.
func (s *memorySub) deliver(msg *Message) {
	select {
	case s.ch <- msg:
	default:
	}
}

// deliverOne sends to the next live member of the queue group.
func (g *queueGroup) deliverOne(msg *Message) {
	for i := 0; i < len(g.members); i++ {
		member := g.members[g.next%len(g.members)]
		g.next++
		if !member.closed.Load() {
			member.deliver(msg)
			return
		}
	}
}

// Subscribe creates a broadcast subscription.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		pattern: subject,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// QueueSubscribe creates a load-balanced subscription.
func (b *MemoryBus) QueueSubscribe(subject, queue string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if queue == "" {
		return nil, ErrInvalidSubject
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		pattern: subject,
		queue:   queue,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	groups, ok := b.queues[subject]
	if !ok {
		groups = make(map[string]*queueGroup)
		b.queues[subject] = groups
	}
	group, ok := groups[queue]
	if !ok {
		group = &queueGroup{}
		groups[queue] = group
	}
	group.members = append(group.members, sub)
	b.mu.Unlock()

	return sub, nil
}

// Messages returns the subscription's channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe stops the subscription. The channel close happens under
// the bus lock so it cannot race a concurrent Publish send.
func (s *memorySub) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.queue == "" {
		s.bus.removeSub(s)
	} else {
		s.bus.removeQueueSub(s)
	}

	close(s.ch)
	return nil
}

// removeSub drops a broadcast subscription from the registry.
// Callers hold b.mu.
func (b *MemoryBus) removeSub(target *memorySub) {
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// removeQueueSub drops a queue member, pruning its group when empty.
// Callers hold b.mu.
func (b *MemoryBus) removeQueueSub(target *memorySub) {
	groups := b.queues[target.pattern]
	if groups == nil {
		return
	}
	group := groups[target.queue]
	if group == nil {
		return
	}
	for i, member := range group.members {
		if member == target {
			group.members = append(group.members[:i], group.members[i+1:]...)
			break
		}
	}
	if len(group.members) == 0 {
		delete(groups, target.queue)
		if len(groups) == 0 {
			delete(b.queues, target.pattern)
		}
	}
}

// Close shuts down the bus and all subscriptions.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	}
	for _, groups := range b.queues {
		for _, group := range groups {
			for _, member := range group.members {
				if !member.closed.Swap(true) {
					close(member.ch)
				}
			}
		}
	}
	b.subs = nil
	b.queues = nil
	return nil
}
