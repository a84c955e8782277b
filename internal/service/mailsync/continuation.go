package mailsync

import "sync"

// Key scopes a continuation token to one connection browsing one folder,
// so two connections paging the same folder never share a cursor.
type Key struct {
	Connection string
	Folder     string
}

// Tracker stores remote pagination continuation tokens. Its lifecycle is
// tied to the connection: tear it down on disconnect.
//
// Callers must not issue overlapping page requests for the same key; within
// one pagination sequence pages are requested in increasing order.
type Tracker struct {
	mu     sync.Mutex
	tokens map[Key]string
}

func NewTracker() *Tracker {
	return &Tracker{tokens: make(map[Key]string)}
}

func (t *Tracker) Get(key Key) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.tokens[key]
	return token, ok
}

func (t *Tracker) Set(key Key, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[key] = token
}

// Clear drops the stored cursor. Called on every page-1 request so a fresh
// pagination sequence starts from the provider's beginning instead of
// resuming a stale cursor after a reconnect.
func (t *Tracker) Clear(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, key)
}
