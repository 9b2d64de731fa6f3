// Package notify delivers outbound messages to users.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies an outbound message.
type Kind string

const (
	KindSignal    Kind = "signal"
	KindAlert     Kind = "alert"
	KindScreening Kind = "screening"
	KindPlan      Kind = "plan"
	KindInfo      Kind = "info"
)

// Message is one outbound notification addressed to a chat.
type Message struct {
	ChatID    int64
	Kind      Kind
	Text      string
	Symbol    string
	Timestamp time.Time
}

// Notifier delivers messages to one provider.
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
	Name() string
	IsEnabled() bool
}

// Manager fans a message out to every enabled provider. A provider error does
// not stop delivery to the others; the last error is returned so callers can
// retry the whole send.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// AddNotifier registers a provider.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to all enabled providers.
func (m *Manager) Send(ctx context.Context, msg *Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			lastErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}
	return lastErr
}
