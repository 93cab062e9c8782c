// Package ledger implements the bounded continuation list of titles a
// conversation is progressing through. Items are kept oldest first.
package ledger

import "strings"

// Capacity is the maximum number of titles kept per conversation.
const Capacity = 20

// Trigger selects which navigation events feed the ledger.
type Trigger string

const (
	// TriggerAdvance records a title only on explicit next / continue actions.
	TriggerAdvance Trigger = "advance"
	// TriggerView additionally records every episode view.
	TriggerView Trigger = "view"
)

func ParseTrigger(raw string) Trigger {
	if strings.EqualFold(strings.TrimSpace(raw), string(TriggerView)) {
		return TriggerView
	}
	return TriggerAdvance
}

// Ledger is not safe for concurrent use; callers hold the conversation lock.
type Ledger struct {
	items []string
}

// FromSlice rebuilds a ledger from persisted order (oldest first). Duplicates
// keep their latest position and the oldest overflow is evicted.
func FromSlice(slugs []string) *Ledger {
	l := &Ledger{}
	for _, s := range slugs {
		if s != "" {
			l.Advance(s)
		}
	}
	return l
}

// Advance moves slug to the most recent position, evicting the oldest entry on overflow.
func (l *Ledger) Advance(slug string) {
	l.Remove(slug)
	l.items = append(l.items, slug)
	if over := len(l.items) - Capacity; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

// Remove drops slug. Removing an absent slug is a no-op.
func (l *Ledger) Remove(slug string) bool {
	for i, s := range l.items {
		if s == slug {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Ledger) Contains(slug string) bool {
	for _, s := range l.items {
		if s == slug {
			return true
		}
	}
	return false
}

func (l *Ledger) Len() int { return len(l.items) }

// Items returns a copy, oldest first.
func (l *Ledger) Items() []string {
	return append([]string(nil), l.items...)
}

// Recent returns a copy, most recent first.
func (l *Ledger) Recent() []string {
	out := make([]string, len(l.items))
	for i, s := range l.items {
		out[len(l.items)-1-i] = s
	}
	return out
}
