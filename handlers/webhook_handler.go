package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arteai/publish-engine/internal/service"
	"github.com/arteai/publish-engine/pkg/logger"
)

// WebhookHandler receives WhatsApp Business Cloud API callbacks: the
// one-time GET verification handshake and the POST event stream that
// carries reviewer replies.
type WebhookHandler struct {
	service     *service.PostService
	verifyToken string
}

func NewWebhookHandler(service *service.PostService, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		service:     service,
		verifyToken: verifyToken,
	}
}

// webhookEvent is the subset of the Cloud API event payload we read.
type webhookEvent struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Button struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

// Verify godoc
// @Summary WhatsApp webhook verification
// @Description Answers the Cloud API subscription handshake by echoing the challenge
// @Tags webhook
// @Produce plain
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Configured verify token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403 {string} string
// @Router /webhook [get]
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		logger.Infof("Webhook verified")
		return c.String(http.StatusOK, challenge)
	}

	logger.Warnf("Webhook verification failed (mode=%q)", mode)
	return c.String(http.StatusForbidden, "Forbidden")
}

// Receive godoc
// @Summary WhatsApp webhook events
// @Description Processes inbound reviewer replies. Always answers 200 so the Cloud API does not retry.
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /webhook [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	var event webhookEvent
	if err := c.Bind(&event); err != nil {
		// Malformed payloads still get a 200, otherwise the Cloud API
		// redelivers them forever.
		logger.Warnf("Failed to parse webhook payload: %v", err)
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.handleMessage(c, msg)
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

func (h *WebhookHandler) handleMessage(c echo.Context, msg inboundMessage) {
	var text, buttonID string

	switch msg.Type {
	case "text":
		text = msg.Text.Body
	case "interactive":
		buttonID = msg.Interactive.ButtonReply.ID
		text = msg.Interactive.ButtonReply.Title
	case "button":
		text = msg.Button.Text
		buttonID = msg.Button.Payload
	default:
		logger.Debugf("Ignoring webhook message of type %q from %s", msg.Type, msg.From)
		return
	}

	if err := h.service.HandleApprovalResponse(c.Request().Context(), msg.From, text, buttonID); err != nil {
		logger.Errorf("Failed to handle approval response from %s: %v", msg.From, err)
	}
}
