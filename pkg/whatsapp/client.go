package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/pkg/logger"
)

// Client talks to the WhatsApp Business Cloud API for one phone number.
type Client struct {
	httpClient    *resty.Client
	phoneNumberID string
}

func NewClient(cfg environments.WhatsAppConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient:    client,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// Configured reports whether the deployment has Cloud API credentials.
func (c *Client) Configured() bool {
	return c.phoneNumberID != ""
}

type messagesResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message and returns the wa message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                sanitizePhone(to),
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        body,
		},
	})
}

// SendImage sends an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) (string, error) {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                sanitizePhone(to),
		"type":              "image",
		"image": map[string]any{
			"link":    imageURL,
			"caption": caption,
		},
	})
}

// ReplyButton is one interactive quick-reply option.
type ReplyButton struct {
	ID    string
	Title string
}

// SendButtons sends an interactive message with quick-reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []ReplyButton) (string, error) {
	actionButtons := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		actionButtons = append(actionButtons, map[string]any{
			"type": "reply",
			"reply": map[string]string{
				"id":    b.ID,
				"title": b.Title,
			},
		})
	}

	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                sanitizePhone(to),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"buttons": actionButtons},
		},
	})
}

// ApprovalMessage describes the post a reviewer must sign off on.
type ApprovalMessage struct {
	Title       string
	Caption     string
	ImageURL    string
	Platforms   []string
	ScheduledAt time.Time
}

// SendApprovalRequest sends the reviewer a preview of the post followed
// by an interactive approve/reject prompt, and returns the wa message
// id of the prompt.
func (c *Client) SendApprovalRequest(ctx context.Context, to string, msg ApprovalMessage) (string, error) {
	if msg.ImageURL != "" {
		if _, err := c.SendImage(ctx, to, msg.ImageURL, "Preview da arte:"); err != nil {
			logger.Warnf("Failed to send approval preview image to %s: %v", to, err)
		}
	}

	caption := msg.Caption
	if len(caption) > 500 {
		caption = caption[:500] + "..."
	}

	body := fmt.Sprintf(
		"🎨 *Solicitação de Aprovação*\n\n"+
			"📝 *Título:* %s\n\n"+
			"💬 *Legenda:*\n%s\n\n"+
			"📱 *Plataformas:* %s\n"+
			"📅 Agendado para: %s\n\n"+
			"Por favor, responda com:\n"+
			"✅ *Aprovar* - para autorizar a publicação\n"+
			"❌ *Rejeitar* - para solicitar alterações",
		msg.Title,
		caption,
		strings.Join(msg.Platforms, ", "),
		msg.ScheduledAt.Format("02/01/2006 15:04"),
	)

	return c.SendButtons(ctx, to, body, []ReplyButton{
		{ID: "aprovar", Title: "✅ Aprovar"},
		{ID: "rejeitar", Title: "❌ Rejeitar"},
	})
}

func (c *Client) send(ctx context.Context, payload map[string]any) (string, error) {
	if !c.Configured() {
		return "", domain.Permanent(domain.PlatformWhatsApp, "WhatsApp Business not configured", nil)
	}

	var result messagesResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&result).
		Post("/" + c.phoneNumberID + "/messages")

	if err != nil {
		return "", domain.Transient(domain.PlatformWhatsApp, "request failed", err)
	}

	if resp.StatusCode() != http.StatusOK {
		message := result.Error.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", resp.StatusCode())
		}
		switch {
		case resp.StatusCode() == http.StatusTooManyRequests:
			return "", domain.RateLimited(domain.PlatformWhatsApp, message, 0, nil)
		case resp.StatusCode() >= http.StatusInternalServerError:
			return "", domain.Transient(domain.PlatformWhatsApp, message, nil)
		default:
			return "", domain.Permanent(domain.PlatformWhatsApp, message, nil)
		}
	}

	if len(result.Messages) == 0 {
		return "", domain.Transient(domain.PlatformWhatsApp, "response carried no message id", nil)
	}

	return result.Messages[0].ID, nil
}

func sanitizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
