package handler

import (
	"net/http"

	"github.com/agora/internal/controller"
	"github.com/agora/internal/store"
)

// ChatHandler: random-чат, страницы 1:1 чатов, список и приглашения.
type ChatHandler struct {
	nav      *controller.Navigator
	requests *controller.Requests
	planned  *controller.Planned
	store    *store.Store
}

func NewChatHandler(nav *controller.Navigator, requests *controller.Requests, planned *controller.Planned, s *store.Store) *ChatHandler {
	return &ChatHandler{nav: nav, requests: requests, planned: planned, store: s}
}

func (h *ChatHandler) random() store.RandomChat {
	return h.store.Snapshot().Random
}

func (h *ChatHandler) OpenRandom(w http.ResponseWriter, r *http.Request) {
	h.nav.OpenRandom(r.Context())
	writeJSON(w, http.StatusOK, h.random())
}

func (h *ChatHandler) randomAction(action func(rc *controller.RandomChat, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := h.nav.OpenRandom(r.Context())
		if err := action(rc, r); err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.random())
	}
}

func (h *ChatHandler) FindRandom(w http.ResponseWriter, r *http.Request) {
	h.randomAction(func(rc *controller.RandomChat, r *http.Request) error { return rc.Find(r.Context()) })(w, r)
}

func (h *ChatHandler) CancelRandom(w http.ResponseWriter, r *http.Request) {
	h.randomAction(func(rc *controller.RandomChat, r *http.Request) error { return rc.Cancel(r.Context()) })(w, r)
}

func (h *ChatHandler) EndRandom(w http.ResponseWriter, r *http.Request) {
	h.randomAction(func(rc *controller.RandomChat, r *http.Request) error { return rc.End(r.Context()) })(w, r)
}

func (h *ChatHandler) RerollRandom(w http.ResponseWriter, r *http.Request) {
	h.randomAction(func(rc *controller.RandomChat, r *http.Request) error { return rc.Reroll(r.Context()) })(w, r)
}

func (h *ChatHandler) SendRandom(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.randomAction(func(rc *controller.RandomChat, r *http.Request) error { return rc.Send(r.Context(), req.Content) })(w, r)
}

// --- список личных чатов ---

func (h *ChatHandler) OpenList(w http.ResponseWriter, r *http.Request) {
	l, err := h.nav.OpenList(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": l.Rows()})
}

func (h *ChatHandler) ListRows(w http.ResponseWriter, r *http.Request) {
	l, err := h.nav.List()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": l.Rows()})
}

// AcceptRequest и RejectRequest работают и без открытого списка (из toast-уведомления).
func (h *ChatHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var err error
	if l, lerr := h.nav.List(); lerr == nil {
		err = l.Accept(r.Context(), id)
	} else {
		err = h.requests.Accept(r.Context(), id)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChatHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var err error
	if l, lerr := h.nav.List(); lerr == nil {
		err = l.Reject(r.Context(), id)
	} else {
		err = h.requests.Reject(r.Context(), id)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type inviteRequest struct {
	Recipient string `json:"recipient"`
}

func (h *ChatHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.planned.Invite(r.Context(), req.Recipient)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

// --- страница 1:1 чата ---

func (h *ChatHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	c, err := h.nav.OpenChat(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	c, err := h.nav.Chat(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (h *ChatHandler) SendChat(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req contentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.nav.Chat(id)
	if err == nil {
		err = c.Send(r.Context(), req.Content)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

func (h *ChatHandler) EndChat(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	c, err := h.nav.Chat(id)
	if err == nil {
		err = c.End(r.Context())
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.View())
}

// CloseChat уводит со страницы чата; другие страницы не трогает.
func (h *ChatHandler) CloseChat(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if route, cur := h.nav.Current(); route == controller.RouteChat && cur == id {
		h.nav.Home(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}
