// Package events fans out backlog change notifications so that open views
// know when to reload from the server.
package events

import (
	"sync"
	"time"
)

// Type names a kind of change.
type Type string

const (
	// SprintChanged covers sprint creation, update, deletion and reordering.
	SprintChanged Type = "sprint.changed"
	// BacklogChanged means sprint memberships moved, so the unassigned
	// backlog view must be reloaded too.
	BacklogChanged Type = "backlog.changed"
)

// AllProjects is the subscription key that receives events of every project.
const AllProjects = "*"

// Event describes one committed change.
type Event struct {
	Type      Type      `json:"type"`
	ProjectID string    `json:"project_id"`
	SprintID  string    `json:"sprint_id,omitempty"`
	StoryIDs  []string  `json:"story_ids,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher delivers events to subscribers keyed by project.
type Publisher interface {
	// Publish sends an event to the project's subscribers and to
	// AllProjects subscribers.
	Publish(event Event)
	// Subscribe returns a channel that receives events for projectID.
	Subscribe(projectID string) <-chan Event
	// Unsubscribe removes and closes a subscription channel.
	Unsubscribe(projectID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory Publisher. Publish never blocks; a
// subscriber whose buffer is full misses the event.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	deliver := func(subs []chan Event) {
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
			}
		}
	}
	deliver(p.subscribers[event.ProjectID])
	if event.ProjectID != AllProjects {
		deliver(p.subscribers[AllProjects])
	}
}

// Subscribe implements Publisher. Subscribing to a closed publisher
// returns a closed channel.
func (p *MemoryPublisher) Subscribe(projectID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, p.bufferSize)
	p.subscribers[projectID] = append(p.subscribers[projectID], ch)
	return ch
}

// Unsubscribe implements Publisher.
func (p *MemoryPublisher) Unsubscribe(projectID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[projectID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(p.subscribers[projectID]) == 0 {
		delete(p.subscribers, projectID)
	}
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for projectID, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, projectID)
	}
}

// SubscriberCount returns the number of subscribers for a project.
func (p *MemoryPublisher) SubscriberCount(projectID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[projectID])
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(Event) {}

// Subscribe returns a closed channel.
func (NopPublisher) Subscribe(string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (NopPublisher) Unsubscribe(string, <-chan Event) {}

// Close does nothing.
func (NopPublisher) Close() {}
