package store

import "sync"

// notifier fans a "state changed" signal out to subscribers.
// Each subscriber channel holds at most one pending signal, so a slow reader
// sees one wake-up for any burst of changes and never blocks a writer.
type notifier struct {
	subMu  sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{
		subs: make(map[int]chan struct{}),
	}
}

// Subscribe registers for change notifications. The returned function
// unsubscribes and closes the channel; calling it more than once is safe.
func (n *notifier) Subscribe() (<-chan struct{}, func()) {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	id := n.nextID
	n.nextID++

	ch := make(chan struct{}, 1)
	n.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.subMu.Lock()
			defer n.subMu.Unlock()

			delete(n.subs, id)
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Subscribers returns the number of active subscriptions.
func (n *notifier) Subscribers() int {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	return len(n.subs)
}

func (n *notifier) notify() {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
