// Package notify delivers invite messages over email and WhatsApp. Delivery
// is fire-and-forget: a failed or slow provider never blocks or fails the
// business operation that triggered it.
package notify

import "context"

// EmailProvider sends one email message.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// WhatsappProvider sends one WhatsApp message.
type WhatsappProvider interface {
	SendWhatsapp(ctx context.Context, phone, message string) error
}

// Dispatcher fans an invite notification out to the configured providers.
type Dispatcher interface {
	InviteCreated(ctx context.Context, email, phone, tenantName string)
}
