package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const dispatchTimeout = 10 * time.Second

type dispatcher struct {
	log      *zap.Logger
	email    EmailProvider
	whatsapp WhatsappProvider
}

// NewDispatcher builds the dispatcher used by the invite flow.
func NewDispatcher(log *zap.Logger, email EmailProvider, whatsapp WhatsappProvider) Dispatcher {
	return &dispatcher{
		log:      log.Named("notify"),
		email:    email,
		whatsapp: whatsapp,
	}
}

// InviteCreated sends the invitation over every channel the invite carries.
// It returns immediately; delivery happens on its own goroutine with its own
// context so the caller's transaction is never held up.
func (d *dispatcher) InviteCreated(ctx context.Context, email, phone, tenantName string) {
	_ = ctx
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if email != "" {
			if err := d.email.SendEmail(sendCtx, email,
				"You have been invited to "+tenantName,
				"Open the portal and accept the invitation to get started.",
			); err != nil {
				d.log.Warn("invite email dispatch failed",
					zap.String("to", email),
					zap.Error(err),
				)
			}
		}
		if phone != "" {
			if err := d.whatsapp.SendWhatsapp(sendCtx, phone,
				"You have been invited to "+tenantName+". Open the portal to accept.",
			); err != nil {
				d.log.Warn("invite whatsapp dispatch failed",
					zap.String("phone", phone),
					zap.Error(err),
				)
			}
		}
	}()
}

// logEmail and logWhatsapp are the default providers. Real delivery backends
// live outside this service; these keep an audit trail in the logs.
type logEmail struct{ log *zap.Logger }

func NewLogEmailProvider(log *zap.Logger) EmailProvider {
	return logEmail{log: log.Named("notify.email")}
}

func (p logEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	_ = ctx
	p.log.Info("email dispatched", zap.String("to", to), zap.String("subject", subject))
	return nil
}

type logWhatsapp struct{ log *zap.Logger }

func NewLogWhatsappProvider(log *zap.Logger) WhatsappProvider {
	return logWhatsapp{log: log.Named("notify.whatsapp")}
}

func (p logWhatsapp) SendWhatsapp(ctx context.Context, phone, message string) error {
	_ = ctx
	p.log.Info("whatsapp dispatched", zap.String("phone", phone))
	return nil
}
