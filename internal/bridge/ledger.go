package bridge

import "sync"

// Ledger tracks the IDs of messages the bridge itself sent, so they can
// be recognized and dropped when WhatsApp echoes them back as inbound
// events. Membership is single-use: Consume removes the entry, which
// bounds the set to in-flight sends.
//
// Sends are recorded from both the router pipeline and the local command
// server's HTTP handlers, hence the mutex.
type Ledger struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// Record inserts a sent message ID.
func (l *Ledger) Record(id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	l.ids[id] = struct{}{}
	l.mu.Unlock()
}

// Consume reports whether id is present and removes it if so.
func (l *Ledger) Consume(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; !ok {
		return false
	}
	delete(l.ids, id)
	return true
}

// Len returns the number of outstanding entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
