// Package reorder is the client-side owner of one open sprint view. It
// applies drag reorders to a local list immediately, and persists the
// resulting order after a quiet period through a debounced timer, with at
// most one request in flight. Membership changes go straight to the server
// and are followed by a reload of both the sprint and the unassigned
// backlog lists.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/backlog/internal/clock"
)

// DefaultDelay is the debounce window between the last local reorder and
// the persist request.
const DefaultDelay = 1200 * time.Millisecond

// Controller errors.
var (
	ErrUnknownStory = errors.New("story is not in this sprint view")
	ErrNotDragging  = errors.New("no drag in progress")
	ErrClosed       = errors.New("controller is closed")
)

// State is the controller's position in its Idle → Dragging →
// PendingPersist → Idle cycle.
type State int

const (
	StateIdle State = iota
	StateDragging
	StatePendingPersist
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StatePendingPersist:
		return "pending_persist"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Item is one story card in a view.
type Item struct {
	StoryID  string `json:"story_id"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
}

// Persister sends membership changes to the server.
type Persister interface {
	Reorder(ctx context.Context, sprintID string, orderedStoryIDs []string) error
	ReplaceStories(ctx context.Context, sprintID string, storyIDs []string) error
}

// Reloader fetches the authoritative lists from the server.
type Reloader interface {
	SprintItems(ctx context.Context, sprintID string) ([]Item, error)
	UnassignedItems(ctx context.Context, projectID string) ([]Item, error)
}

// Notifier surfaces non-blocking errors to the user.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// Notify calls f(err).
func (f NotifierFunc) Notify(err error) { f(err) }

// Options configures a Controller. Persister is required.
type Options struct {
	ProjectID string
	SprintID  string
	Items     []Item
	Backlog   []Item
	Persister Persister
	Reloader  Reloader
	Notifier  Notifier
	Clock     clock.Clock
	Delay     time.Duration
	Logger    *slog.Logger
}

// Controller owns the ordered story list of one sprint view. It is safe
// for concurrent use; timer callbacks run on the clock's goroutine.
type Controller struct {
	projectID string
	sprintID  string
	persister Persister
	reloader  Reloader
	notifier  Notifier
	clock     clock.Clock
	delay     time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	items     []Item
	backlog   []Item
	state     State
	dragIndex int
	timer     *clock.Timer
	gen       uint64        // bumped whenever the timer is armed or disarmed
	dirty     bool          // local order not yet sent
	inFlight  chan struct{} // closed when the outstanding request finishes
	closed    bool
}

// New creates a controller over an initial list.
func New(opts Options) (*Controller, error) {
	if opts.Persister == nil {
		return nil, errors.New("reorder: persister is required")
	}
	if opts.SprintID == "" {
		return nil, errors.New("reorder: sprint id is required")
	}
	c := &Controller{
		projectID: opts.ProjectID,
		sprintID:  opts.SprintID,
		persister: opts.Persister,
		reloader:  opts.Reloader,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		delay:     opts.Delay,
		logger:    opts.Logger,
		items:     cloneItems(opts.Items),
		backlog:   cloneItems(opts.Backlog),
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.delay <= 0 {
		c.delay = DefaultDelay
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	renumber(c.items)
	return c, nil
}

// Items returns a copy of the local ordered list.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items)
}

// Backlog returns a copy of the unassigned backlog list.
func (c *Controller) Backlog() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.backlog)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DragStart begins dragging storyID from its current position.
func (c *Controller) DragStart(storyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	idx := indexOf(c.items, storyID)
	if idx < 0 {
		return ErrUnknownStory
	}
	c.dragIndex = idx
	c.state = StateDragging
	return nil
}

// Hover moves the dragged story to targetIndex, renumbers the local list
// and restarts the debounce timer. Hovering the story's current position
// changes nothing. Out-of-range targets are clamped.
func (c *Controller) Hover(targetIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging {
		return ErrNotDragging
	}
	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex >= len(c.items) {
		targetIndex = len(c.items) - 1
	}
	if targetIndex == c.dragIndex {
		return nil
	}
	c.items = move(c.items, c.dragIndex, targetIndex)
	c.dragIndex = targetIndex
	renumber(c.items)
	c.scheduleLocked()
	return nil
}

// Drop ends the drag. If the drag changed the order the debounce window
// restarts and the controller waits to persist; otherwise it goes idle.
func (c *Controller) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging {
		return
	}
	if c.dirty {
		c.scheduleLocked()
		c.state = StatePendingPersist
		return
	}
	c.state = StateIdle
}

// scheduleLocked marks the local order dirty and (re)arms the timer.
func (c *Controller) scheduleLocked() {
	c.dirty = true
	if c.closed {
		return
	}
	c.disarmLocked()
	c.armLocked()
}

// armLocked starts a debounce window. The callback carries the generation
// it was armed with so a callback that lost the race with Stop does nothing.
func (c *Controller) armLocked() {
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.fire(gen) })
}

// disarmLocked stops the current window, if any, and invalidates its
// callback.
func (c *Controller) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// fire runs when the debounce window armed as gen ends.
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.closed || !c.dirty {
		c.mu.Unlock()
		return
	}
	if c.inFlight != nil {
		// A request is outstanding; try again after another window.
		c.armLocked()
		c.mu.Unlock()
		return
	}
	ids, done := c.beginLocked()
	c.mu.Unlock()

	err := c.persister.Reorder(context.Background(), c.sprintID, ids)
	c.finish(done)
	if err != nil {
		c.logger.Warn("persisting sprint order failed", "sprint_id", c.sprintID, "error", err)
		if c.notifier != nil {
			c.notifier.Notify(err)
		}
		return
	}
	c.logger.Debug("sprint order persisted", "sprint_id", c.sprintID, "stories", len(ids))
}

// beginLocked snapshots the order and marks a request in flight.
func (c *Controller) beginLocked() ([]string, chan struct{}) {
	ids := storyIDs(c.items)
	c.dirty = false
	done := make(chan struct{})
	c.inFlight = done
	return ids, done
}

// finish clears the in-flight marker. The local order is kept whatever the
// outcome; the next reload brings the server's order back.
func (c *Controller) finish(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(done)
	c.inFlight = nil
	if c.state == StatePendingPersist && !c.dirty {
		c.state = StateIdle
	}
}

// Flush sends any pending order immediately, after waiting for an
// outstanding request. It returns the request's error instead of
// notifying.
func (c *Controller) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.inFlight != nil {
			wait := c.inFlight
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.disarmLocked()
		if !c.dirty {
			if c.state == StatePendingPersist {
				c.state = StateIdle
			}
			c.mu.Unlock()
			return nil
		}
		ids, done := c.beginLocked()
		c.mu.Unlock()

		err := c.persister.Reorder(ctx, c.sprintID, ids)
		c.finish(done)
		return err
	}
}

// AddStories appends storyIDs to the sprint on the server, then reloads
// both lists.
func (c *Controller) AddStories(ctx context.Context, storyIDs ...string) error {
	return c.replace(ctx, func(current []string) []string {
		seen := make(map[string]bool, len(current))
		for _, id := range current {
			seen[id] = true
		}
		for _, id := range storyIDs {
			if !seen[id] {
				current = append(current, id)
				seen[id] = true
			}
		}
		return current
	})
}

// RemoveStory removes storyID from the sprint on the server, then reloads
// both lists.
func (c *Controller) RemoveStory(ctx context.Context, storyID string) error {
	c.mu.Lock()
	known := indexOf(c.items, storyID) >= 0
	c.mu.Unlock()
	if !known {
		return ErrUnknownStory
	}
	return c.replace(ctx, func(current []string) []string {
		out := current[:0]
		for _, id := range current {
			if id != storyID {
				out = append(out, id)
			}
		}
		return out
	})
}

func (c *Controller) replace(ctx context.Context, edit func(current []string) []string) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ids := edit(storyIDs(c.items))
	c.mu.Unlock()

	replaceErr := c.persister.ReplaceStories(ctx, c.sprintID, ids)
	if replaceErr != nil {
		c.logger.Warn("replacing sprint stories failed", "sprint_id", c.sprintID, "error", replaceErr)
	}
	if err := c.Reload(ctx); err != nil {
		return errors.Join(replaceErr, err)
	}
	return replaceErr
}

// Reload sends any pending order, then replaces both lists with the
// server's state.
func (c *Controller) Reload(ctx context.Context) error {
	if c.reloader == nil {
		return nil
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	items, err := c.reloader.SprintItems(ctx, c.sprintID)
	if err != nil {
		return fmt.Errorf("reloading sprint %s: %w", c.sprintID, err)
	}
	backlog, err := c.reloader.UnassignedItems(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("reloading backlog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = cloneItems(items)
	c.backlog = cloneItems(backlog)
	if c.state == StateDragging {
		c.state = StateIdle
	}
	return nil
}

// Close stops the timer. Pending changes are dropped; call Flush first to
// keep them.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.disarmLocked()
	c.state = StateIdle
}

func indexOf(items []Item, storyID string) int {
	for i, it := range items {
		if it.StoryID == storyID {
			return i
		}
	}
	return -1
}

// move returns items with the element at from reinserted at to.
func move(items []Item, from, to int) []Item {
	it := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items[:to], append([]Item{it}, items[to:]...)...)
	return items
}

func renumber(items []Item) {
	for i := range items {
		items[i].Priority = i + 1
	}
}

func storyIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.StoryID
	}
	return ids
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
