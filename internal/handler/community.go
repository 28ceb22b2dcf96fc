package handler

import (
	"net/http"
	"strings"

	"github.com/agora/internal/api"
	"github.com/agora/internal/controller"
)

// CommunityHandler обслуживает комнаты и форумы. Форумы проходят в REST API напрямую.
type CommunityHandler struct {
	api *api.Client
	nav *controller.Navigator
}

func NewCommunityHandler(apiClient *api.Client, nav *controller.Navigator) *CommunityHandler {
	return &CommunityHandler{api: apiClient, nav: nav}
}

func (h *CommunityHandler) ListChatrooms(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	var err error
	var rooms any
	if q != "" {
		rooms, err = h.api.SearchChatrooms(r.Context(), q, queryPage(r))
	} else {
		rooms, err = h.api.ListChatrooms(r.Context(), queryPage(r))
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatrooms": rooms})
}

func (h *CommunityHandler) CreateChatroom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateChatroomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	room, err := h.api.CreateChatroom(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chatroom": room})
}

func (h *CommunityHandler) OpenChatroom(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	room, err := h.nav.OpenChatroom(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *CommunityHandler) GetChatroom(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	room, err := h.nav.Chatroom(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *CommunityHandler) SendChatroom(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req contentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	room, err := h.nav.Chatroom(id)
	if err == nil {
		err = room.Send(r.Context(), req.Content)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *CommunityHandler) CloseChatroom(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if route, cur := h.nav.Current(); route == controller.RouteChatroom && cur == id {
		h.nav.Home(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- форумы ---

func (h *CommunityHandler) ListForums(w http.ResponseWriter, r *http.Request) {
	h.nav.OpenForums(r.Context())
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	var err error
	var forums any
	if q != "" {
		forums, err = h.api.SearchForums(r.Context(), q, queryPage(r))
	} else {
		forums, err = h.api.ListForums(r.Context(), queryPage(r))
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": forums})
}

func (h *CommunityHandler) CreateForum(w http.ResponseWriter, r *http.Request) {
	var req api.CreateForumRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	forum, err := h.api.CreateForum(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"forum": forum})
}

// ListPosts: ?q= ищет, ?parent= отдаёт комментарии к посту, иначе страница постов.
func (h *CommunityHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	forumID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var err error
	var posts any
	switch q, parent := strings.TrimSpace(r.URL.Query().Get("q")), queryInt(r, "parent", 0); {
	case parent > 0:
		posts, err = h.api.ListComments(r.Context(), forumID, int64(parent))
	case q != "":
		posts, err = h.api.SearchPosts(r.Context(), forumID, q, queryPage(r))
	default:
		posts, err = h.api.ListPosts(r.Context(), forumID, queryPage(r))
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (h *CommunityHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	forumID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req api.CreatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	post, err := h.api.CreatePost(r.Context(), forumID, req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"post": post})
}

func (h *CommunityHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	forumID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	postID, ok := idParam(w, r, "postId")
	if !ok {
		return
	}
	var req api.UpdatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := h.api.UpdatePost(r.Context(), forumID, postID, req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

func (h *CommunityHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	forumID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	postID, ok := idParam(w, r, "postId")
	if !ok {
		return
	}
	if err := h.api.DeletePost(r.Context(), forumID, postID); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
