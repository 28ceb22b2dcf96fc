package handler

import (
	"net/http"
	"strings"

	"github.com/agora/internal/api"
	"github.com/agora/internal/controller"
	"github.com/agora/internal/events"
	"github.com/agora/internal/store"
)

// StateHandler: снимок состояния, баннер, плавающие окна и имя пользователя.
type StateHandler struct {
	store  *store.Store
	api    *api.Client
	events *events.Dispatcher
	nav    *controller.Navigator
}

func NewStateHandler(s *store.Store, apiClient *api.Client, ev *events.Dispatcher, nav *controller.Navigator) *StateHandler {
	return &StateHandler{store: s, api: apiClient, events: ev, nav: nav}
}

type stateResponse struct {
	store.State
	Route   controller.Route `json:"route"`
	RouteID int64            `json:"route_id,omitempty"`
}

func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	route, id := h.nav.Current()
	writeJSON(w, http.StatusOK, stateResponse{State: h.store.Snapshot(), Route: route, RouteID: id})
}

func (h *StateHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	h.store.DismissNotification()
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFloater сворачивает/разворачивает окно. Если окна нет: открывает его.
func (h *StateHandler) ToggleFloater(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if !h.store.ToggleMinimize(id) {
		if _, known := h.store.Snapshot().Session(id); !known {
			writeError(w, http.StatusNotFound, "unknown chat session")
			return
		}
		h.events.OpenFloater(id)
	}
	c, _ := h.store.Snapshot().PlannedChat(id)
	writeJSON(w, http.StatusOK, c)
}

func (h *StateHandler) CloseFloater(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.store.RemovePlannedChat(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *StateHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.nav.Home(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (h *StateHandler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	if err := h.api.UpdateUsername(r.Context(), name); err != nil {
		writeFailure(w, err)
		return
	}
	st := h.store.Snapshot()
	h.store.SetIdentity(st.Identity.SessionToken, name)
	writeJSON(w, http.StatusOK, h.store.Snapshot().Identity)
}
