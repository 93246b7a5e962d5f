package adapters

import (
	"context"

	"github.com/arteai/publish-engine/internal/domain"
)

// messageSender is the slice of pkg/whatsapp.Client the adapter needs.
type messageSender interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) (string, error)
	SendImage(ctx context.Context, to, imageURL, caption string) (string, error)
}

// WhatsAppAdapter publishes a post as a Business Cloud API message to
// the configured broadcast contact. Targets on this platform are
// approval-gated, so by the time the adapter runs a human has already
// signed off.
type WhatsAppAdapter struct {
	sender    messageSender
	recipient string
}

func NewWhatsAppAdapter(sender messageSender, recipient string) *WhatsAppAdapter {
	return &WhatsAppAdapter{sender: sender, recipient: recipient}
}

func (a *WhatsAppAdapter) Platform() string {
	return domain.PlatformWhatsApp
}

func (a *WhatsAppAdapter) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if !a.sender.Configured() || a.recipient == "" {
		return "", domain.Permanent(a.Platform(), "WhatsApp Business not configured", nil)
	}

	if req.MediaURL != "" {
		return a.sender.SendImage(ctx, a.recipient, req.MediaURL, req.Caption)
	}
	return a.sender.SendText(ctx, a.recipient, req.Caption)
}
