package voiceagent

import (
	"strings"
	"sync"
	"time"
)

// TranscriptEntry is one ConversationText turn.
type TranscriptEntry struct {
	Role    string
	Content string
	At      time.Time
}

// Transcript keeps the most recent conversation turns in memory.
type Transcript struct {
	mu         sync.Mutex
	entries    []TranscriptEntry
	maxEntries int
}

// NewTranscript keeps at most maxEntries turns. Zero or less means unbounded.
func NewTranscript(maxEntries int) *Transcript {
	return &Transcript{maxEntries: maxEntries}
}

// HandleFrame is a FrameHandler that records ConversationText events.
func (t *Transcript) HandleFrame(f InboundFrame) {
	if f.Kind != FrameText {
		return
	}
	ev, err := DecodeAgentEvent(f.Data)
	if err != nil || ev.Type != EventConversationText {
		return
	}
	t.Add(ev.Role, ev.Content)
}

func (t *Transcript) Add(role, content string) {
	if content == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TranscriptEntry{
		Role:    strings.ToLower(role),
		Content: content,
		At:      time.Now(),
	})
	if t.maxEntries > 0 && len(t.entries) > t.maxEntries {
		t.entries = t.entries[len(t.entries)-t.maxEntries:]
	}
}

// Entries returns a copy of the recorded turns, oldest first.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last returns the latest turn by role, or "".
func (t *Transcript) Last(role string) string {
	role = strings.ToLower(role)
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Role == role {
			return t.entries[i].Content
		}
	}
	return ""
}

// Count returns the number of turns by role.
func (t *Transcript) Count(role string) int {
	role = strings.ToLower(role)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.Role == role {
			n++
		}
	}
	return n
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}
