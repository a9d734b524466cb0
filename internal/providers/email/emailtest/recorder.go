// Package emailtest provides an in-memory mail provider for tests.
package emailtest

import (
	"context"
	"sync"

	"github.com/smallbiznis/coursepay/internal/providers/email"
)

// Sent is a captured message.
type Sent struct {
	To      []string
	Subject string
	Body    string
}

// Recorder renders templates like the SMTP provider but keeps the messages
// in memory. Err, when set, is returned from every send.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

var _ email.Provider = (*Recorder)(nil)

func (r *Recorder) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{To: append([]string(nil), to...), Subject: subject, Body: htmlBody})
	return nil
}

func (r *Recorder) SendTemplate(ctx context.Context, to []string, templateName string, subject string, data any) error {
	body, err := email.Render(templateName, data)
	if err != nil {
		return err
	}
	return r.Send(ctx, to, subject, body)
}

func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}
