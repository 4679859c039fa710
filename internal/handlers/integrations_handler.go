package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler consumes Telegram updates. bot.Bot implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, up tgbotapi.Update) error
}

type IntegrationsHandler struct {
	bot    UpdateHandler
	secret string
	logger *slog.Logger
}

func NewIntegrationsHandler(bot UpdateHandler, secret string, logger *slog.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{bot: bot, secret: secret, logger: logger}
}

// Webhook always answers 200 to a valid caller so Telegram does not redeliver
// an update that already failed on our side.
//
// POST /integrations/telegram/webhook/:secret
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var up tgbotapi.Update
	if err := c.ShouldBindJSON(&up); err != nil {
		h.logger.Warn("Telegram webhook: bad payload", "error", err)
		c.Status(http.StatusOK)
		return
	}
	if err := h.bot.HandleUpdate(c.Request.Context(), up); err != nil {
		h.logger.Error("Telegram update failed", "update_id", up.UpdateID, "error", err)
	}
	c.Status(http.StatusOK)
}
