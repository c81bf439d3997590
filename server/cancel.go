package server

import "sync"

// cancelPlane holds one one-shot cancellation signal per subscription id
// for a single connection. Closing the channel is the signal; it is
// never sent on. Replacing or closing a subscription fires
// its previous signal first, so the previous query worker (if still
// running) stops producing results; rows it already handed to the
// connection loop are still delivered.
type cancelPlane struct {
	mu   sync.Mutex
	subs map[string]chan struct{}
}

func newCancelPlane() *cancelPlane {
	return &cancelPlane{subs: map[string]chan struct{}{}}
}

// Open fires any prior signal for subID, then returns a fresh one.
func (c *cancelPlane) Open(subID string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.subs[subID]; ok {
		close(old)
	}
	ch := make(chan struct{})
	c.subs[subID] = ch
	return ch
}

// Cancel fires subID's signal, if one is still open, and forgets it.
func (c *cancelPlane) Cancel(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[subID]; ok {
		close(ch)
		delete(c.subs, subID)
	}
}

// CancelAll fires every open signal, used when the connection itself is
// closing.
func (c *cancelPlane) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}
