// Package mailer dispatches generated reports to client recipients by email.
package mailer

import "context"

// Message is an email to be dispatched.
type Message struct {
	To      []string
	Subject string
	Body    string // plain-text report content
}

// Provider sends email messages. Implementations wrap a transactional email
// API; tests supply fakes.
type Provider interface {
	Type() string
	Deliver(ctx context.Context, msg Message) error
}
