package connectivity

import (
	"context"
	"sync"
)

type State int

const (
	Offline State = iota
	Associating
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Associating:
		return "ASSOCIATING"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

type Reporter interface {
	CurrentState() State
	// WaitForStateChange blocks until the state differs from state, returning
	// false if ctx ends first.
	WaitForStateChange(ctx context.Context, state State) bool
	Subscribe() *Client
}

type Client struct {
	Updates <-chan State
	Id      uint32
	cancel  func()
}

func (c *Client) Cancel() {
	c.cancel()
}

// ChangeReporter is a Reporter whose state is set by its owner.
type ChangeReporter struct {
	mu      sync.Mutex
	state   State
	changed chan struct{}
	clients map[uint32]chan State
	nextId  uint32
}

// check ChangeReporter compliance to its interface during compile time
var _ Reporter = (*ChangeReporter)(nil)

func NewReporter() *ChangeReporter {
	return &ChangeReporter{
		state:   Offline,
		changed: make(chan struct{}),
		clients: make(map[uint32]chan State),
	}
}

func (r *ChangeReporter) CurrentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *ChangeReporter) Set(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == state {
		return
	}

	r.state = state

	close(r.changed)
	r.changed = make(chan struct{})

	for _, updates := range r.clients {
		// slow subscribers only miss intermediate states
		select {
		case <-updates:
		default:
		}

		updates <- state
	}
}

func (r *ChangeReporter) WaitForStateChange(ctx context.Context, state State) bool {
	for {
		r.mu.Lock()
		current := r.state
		changed := r.changed
		r.mu.Unlock()

		if current != state {
			return true
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}

// Subscribe returns a client that receives the current state immediately
// and every change after that.
func (r *ChangeReporter) Subscribe() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	updates := make(chan State, 1)
	updates <- r.state

	id := r.nextId
	r.nextId++

	r.clients[id] = updates

	return &Client{
		Updates: updates,
		Id:      id,
		cancel: func() {
			r.mu.Lock()
			delete(r.clients, id)
			r.mu.Unlock()
		},
	}
}
