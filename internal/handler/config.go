package handler

import (
	"net/http"

	"github.com/agora/internal/config"
)

// ConfigHandler отдаёт UI публичные параметры клиента.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetClientConfig отдаёт тайминги, которые UI показывает сам (обратный отсчёт приглашения, автоскрытие баннера).
// Адреса и guard наружу не отдаются.
func (h *ConfigHandler) GetClientConfig(w http.ResponseWriter, r *http.Request) {
	if h.cfg == nil {
		writeError(w, http.StatusNotFound, "config not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_expiry_seconds":  int(h.cfg.SessionExpiry.Seconds()),
		"notification_dismiss_ms": h.cfg.NotificationDismiss.Milliseconds(),
		"reconnect_attempts":      h.cfg.ReconnectAttempts,
		"username":                h.cfg.Username,
	})
}
