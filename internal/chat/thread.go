package chat

import (
	"slices"
	"strings"
	"sync"

	"medius/internal/domain"
	"medius/internal/format"
)

// TempPrefix marks ids of local placeholders.
const TempPrefix = "temp-"

// ApplyResult tells what Apply did with an incoming message.
type ApplyResult int

const (
	Duplicate ApplyResult = iota
	Replaced
	Appended
)

// Thread is the ordered message list of one deal.
type Thread struct {
	mu   sync.RWMutex
	msgs []domain.ChatMessage
}

func NewThread() *Thread {
	return &Thread{}
}

// Messages returns a copy of the thread.
func (t *Thread) Messages() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.msgs)
}

func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// Reset replaces the thread with server history. Messages that arrived live
// before the history and placeholders still waiting for their echo are kept
// after it.
func (t *Thread) Reset(history []domain.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(history))
	next := make([]domain.ChatMessage, 0, len(history)+len(t.msgs))
	for _, m := range history {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, clean(m))
	}

	var pending []domain.ChatMessage
	for _, m := range t.msgs {
		if m.Pending {
			pending = append(pending, m)
			continue
		}
		if _, ok := seen[m.ID]; !ok {
			seen[m.ID] = struct{}{}
			next = append(next, m)
		}
	}
	t.msgs = append(next, pending...)
}

// AddPending appends a local placeholder.
func (t *Thread) AddPending(m domain.ChatMessage) {
	m.Pending = true
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, m)
}

// Remove drops the message with id and reports whether it was present.
func (t *Thread) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.msgs, func(m domain.ChatMessage) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return true
}

// Apply merges a message received from the server. A placeholder matching it
// is replaced in place and an unknown message is appended. A message already
// present is ignored unless it names a placeholder that is still pending.
func (t *Thread) Apply(m domain.ChatMessage) ApplyResult {
	m = clean(m)
	m.Pending = false

	t.mu.Lock()
	defer t.mu.Unlock()

	if slices.ContainsFunc(t.msgs, func(x domain.ChatMessage) bool { return !x.Pending && x.ID == m.ID }) {
		// The message landed before its echo; the placeholder it names is stale.
		if i := t.pendingByTempID(m.TempID); i >= 0 {
			t.msgs = slices.Delete(t.msgs, i, i+1)
			return Replaced
		}
		return Duplicate
	}
	if i := t.placeholderFor(m); i >= 0 {
		t.msgs[i] = m
		return Replaced
	}
	t.msgs = append(t.msgs, m)
	return Appended
}

// placeholderFor prefers the echoed temp id and falls back to sender and
// creation time.
func (t *Thread) placeholderFor(m domain.ChatMessage) int {
	if i := t.pendingByTempID(m.TempID); i >= 0 {
		return i
	}
	return slices.IndexFunc(t.msgs, func(x domain.ChatMessage) bool {
		return x.Pending && strings.HasPrefix(x.ID, TempPrefix) &&
			x.SenderID == m.SenderID && x.CreatedAt.Equal(m.CreatedAt)
	})
}

func (t *Thread) pendingByTempID(tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(t.msgs, func(x domain.ChatMessage) bool {
		return x.Pending && x.ID == tempID
	})
}

func clean(m domain.ChatMessage) domain.ChatMessage {
	if m.Type == domain.MessageSystem {
		m.Message = format.SafeHTML(m.Message)
	}
	return m
}
