// Package mail abstracts the e-mail provider. Delivery itself is an
// external collaborator; the core only needs send-or-error semantics.
package mail

import (
	"context"
	"log/slog"
	"sync"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them; the
// default for local runs.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	slog.Info("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// RecordingMailer captures messages for assertions in tests.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []Message
}

func (m *RecordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
