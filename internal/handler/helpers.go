package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agora/internal/api"
	"github.com/agora/internal/controller"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/transport"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure переводит ошибку контроллера или API в HTTP-ответ.
func writeFailure(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	switch {
	case errors.Is(err, controller.ErrNotFound), errors.Is(err, api.ErrNotFound):
		writeError(w, http.StatusNotFound, api.ErrorMessage(err, "not found"))
	case errors.Is(err, controller.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transport.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "push channel is not connected")
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		writeError(w, status, api.ErrorMessage(err, "upstream error"))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func queryPage(r *http.Request) api.Page {
	return api.Page{Page: queryInt(r, "page", 1), Limit: queryInt(r, "limit", 20)}
}

// idParam разбирает числовой параметр пути; при ошибке сам отвечает 400.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}

type contentRequest struct {
	Content string `json:"content"`
}
