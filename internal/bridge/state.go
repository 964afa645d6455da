package bridge

import (
	"sync"
	"time"
)

// SessionState holds the WhatsApp session status shared between the
// session manager, the router and the local command server. Only the
// session manager writes; everyone else reads.
type SessionState struct {
	mu                sync.RWMutex
	ready             bool
	ownJID            string
	reconnectAttempts int
}

// NewSessionState returns a state with the session not yet ready.
func NewSessionState() *SessionState {
	return &SessionState{}
}

// SetReady marks the session usable and captures the operator's own JID.
// A successful ready transition resets the reconnect counter.
func (s *SessionState) SetReady(ownJID string) {
	s.mu.Lock()
	s.ready = true
	s.ownJID = ownJID
	s.reconnectAttempts = 0
	s.mu.Unlock()
}

// SetDisconnected marks the session unusable.
func (s *SessionState) SetDisconnected() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

// Ready reports whether the session can send.
func (s *SessionState) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// OwnJID returns the operator's own JID, empty until the first ready.
func (s *SessionState) OwnJID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownJID
}

// IncReconnectAttempts bumps the counter and returns the new value.
func (s *SessionState) IncReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectAttempts++
	return s.reconnectAttempts
}

// ReconnectAttempts returns the current attempt counter.
func (s *SessionState) ReconnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectAttempts
}

// ReconnectDelay computes the linear backoff before reconnect attempt n.
func ReconnectDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * base
}

// ProcessingLock is a non-blocking try-lock guarding the inbound reply
// pipeline. Messages arriving while it is held are dropped, not queued:
// one reply in flight at a time is the storm-safety policy.
type ProcessingLock struct {
	ch chan struct{}
}

// NewProcessingLock returns a released lock.
func NewProcessingLock() *ProcessingLock {
	return &ProcessingLock{ch: make(chan struct{}, 1)}
}

// TryAcquire takes the lock if free and reports whether it succeeded.
func (p *ProcessingLock) TryAcquire() bool {
	select {
	case p.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Releasing a free lock is a no-op.
func (p *ProcessingLock) Release() {
	select {
	case <-p.ch:
	default:
	}
}

// Held reports whether the lock is currently taken.
func (p *ProcessingLock) Held() bool {
	return len(p.ch) > 0
}
