// ABOUTME: Append-only chat ledger keyed by convoy id
// ABOUTME: Copy-on-write so published ledgers can be read without locking

package conversation

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/2389/convoy-coordinator/internal/store"
)

// maxIDAttempts bounds retries when the id source repeats an id
const maxIDAttempts = 8

// ErrInvalidLedger is returned for stored chat data that breaks a ledger invariant
var ErrInvalidLedger = errors.New("invalid chat ledger")

// Ledger is an immutable set of per-convoy message lists.
// The zero value is an empty ledger.
type Ledger struct {
	messages map[string][]store.ChatMessage
}

// NewLedger builds a ledger from existing lists, copying them.
func NewLedger(messages map[string][]store.ChatMessage) *Ledger {
	l := &Ledger{messages: make(map[string][]store.ChatMessage, len(messages))}
	for convoyID, list := range messages {
		if len(list) == 0 {
			continue
		}
		l.messages[convoyID] = slices.Clone(list)
	}
	return l
}

// ValidateMessages checks that every message has an id and that no id
// repeats within a convoy.
func ValidateMessages(messages map[string][]store.ChatMessage) error {
	for convoyID, list := range messages {
		seen := make(map[string]bool, len(list))
		for _, m := range list {
			if m.ID == "" {
				return fmt.Errorf("%w: convoy %q has a message without id", ErrInvalidLedger, convoyID)
			}
			if seen[m.ID] {
				return fmt.Errorf("%w: convoy %q repeats message id %q", ErrInvalidLedger, convoyID, m.ID)
			}
			seen[m.ID] = true
		}
	}
	return nil
}

// Append records a message from identity to convoyID.
// Returns the receiver and false when the send is declined.
func (l *Ledger) Append(identity *store.Identity, convoyID, text string, now time.Time, newID func() string) (*Ledger, store.ChatMessage, bool) {
	if identity == nil {
		return l, store.ChatMessage{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return l, store.ChatMessage{}, false
	}

	list := l.messages[convoyID]
	id, ok := freshMessageID(list, newID)
	if !ok {
		return l, store.ChatMessage{}, false
	}

	msg := store.ChatMessage{
		ID:         id,
		ConvoyID:   convoyID,
		UserID:     identity.ID,
		UserName:   identity.Name,
		UserAvatar: identity.Avatar,
		Text:       text,
		Timestamp:  now,
	}

	next := &Ledger{messages: maps.Clone(l.messages)}
	if next.messages == nil {
		next.messages = make(map[string][]store.ChatMessage, 1)
	}
	// Clip forces a fresh backing array so readers of the old list never see the new entry
	next.messages[convoyID] = append(slices.Clip(list), msg)
	return next, msg, true
}

// List returns a copy of the messages for convoyID in append order.
// An unknown convoy yields an empty, non-nil slice.
func (l *Ledger) List(convoyID string) []store.ChatMessage {
	list := l.messages[convoyID]
	if len(list) == 0 {
		return []store.ChatMessage{}
	}
	return slices.Clone(list)
}

// Len returns the number of messages recorded for convoyID.
func (l *Ledger) Len(convoyID string) int {
	return len(l.messages[convoyID])
}

// All returns a copy of every list keyed by convoy id.
func (l *Ledger) All() map[string][]store.ChatMessage {
	out := make(map[string][]store.ChatMessage, len(l.messages))
	for convoyID, list := range l.messages {
		out[convoyID] = slices.Clone(list)
	}
	return out
}

func freshMessageID(list []store.ChatMessage, newID func() string) (string, bool) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := newID()
		if id == "" {
			continue
		}
		taken := slices.ContainsFunc(list, func(m store.ChatMessage) bool { return m.ID == id })
		if !taken {
			return id, true
		}
	}
	return "", false
}
