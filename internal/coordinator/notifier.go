package coordinator

import "sync"

// notifier runs render callbacks on its own goroutine in emission order, so a
// callback may call back into the coordinator.
type notifier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Change
	handlers []func(Change)
	closed   bool
	done     chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) add(fn func(Change)) {
	n.mu.Lock()
	n.handlers = append(n.handlers, fn)
	n.mu.Unlock()
}

func (n *notifier) push(ch Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, ch)
	n.cond.Signal()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 && n.closed {
			n.mu.Unlock()
			return
		}
		ch := n.queue[0]
		n.queue = n.queue[1:]
		handlers := append([]func(Change){}, n.handlers...)
		n.mu.Unlock()

		for _, fn := range handlers {
			fn(ch)
		}
	}
}

// close drains queued changes and stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}
