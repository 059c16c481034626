package inference

import "sync"

// Current is the provider the UI should show as active.
type Current string

const (
	CurrentLocal    Current = "local"
	CurrentHosted   Current = "hosted"
	CurrentFallback Current = "fallback"
	CurrentChecking Current = "checking"
)

// State is the router's view of which providers are usable.
type State struct {
	LocalAvailable     bool    `json:"local_available"`
	LocalModel         string  `json:"local_model,omitempty"`
	HostedKeyAvailable bool    `json:"hosted_key_available"`
	Initialized        bool    `json:"initialized"`
	Current            Current `json:"current"`
}

// deriveCurrent is the only place Current is computed from the flags.
func deriveCurrent(localAvailable, hostedKeyAvailable bool) Current {
	switch {
	case localAvailable:
		return CurrentLocal
	case hostedKeyAvailable:
		return CurrentHosted
	default:
		return CurrentFallback
	}
}

type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(State)
}

func (n *notifier) subscribe(fn func(State)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(State))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// notify calls subscribers outside the lock so a callback may unsubscribe.
func (n *notifier) notify(s State) {
	n.mu.Lock()
	fns := make([]func(State), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
