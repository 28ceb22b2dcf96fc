// Package apitest поднимает поддельный REST API платформы для тестов, chi-роутер в httptest.Server,
// сессии и сообщения в памяти, счётчик вызовов по маршрутам и подмена ответа ошибкой.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agora/internal/api"
	"github.com/agora/internal/model"
)

type failure struct {
	status  int
	message string
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	Me          model.AnonymousUser
	MatchStatus model.SessionStatus
	sessions    []model.ChatSession
	messages    map[int64][]model.ChatMessage
	roomMsgs    map[int64][]model.ChatroomMessage
	chatrooms   []model.Chatroom
	forums      []model.Forum
	posts       map[int64][]model.Post
	hits        map[string]int
	failures    map[string]failure
	holds       map[string]*hold
	nextID      int64
}

// New запускает сервер; он закрывается в t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Me:          model.AnonymousUser{SessionToken: "me", Username: "WiseAthena"},
		MatchStatus: model.SessionWaiting,
		messages:    make(map[int64][]model.ChatMessage),
		roomMsgs:    make(map[int64][]model.ChatroomMessage),
		posts:       make(map[int64][]model.Post),
		hits:        make(map[string]int),
		failures:    make(map[string]failure),
		holds:       make(map[string]*hold),
		nextID:      100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client возвращает api.Client, смотрящий на сервер, с cookie сессии Me.
func (s *Server) Client(t testing.TB) *api.Client {
	t.Helper()
	c, err := api.NewClient(s.URL, 2*time.Second, time.Second)
	if err != nil {
		t.Fatalf("api.NewClient: %v", err)
	}
	c.SetSessionToken(s.Me.SessionToken)
	return c
}

// Route: ключ маршрута для Hits и Fail, например "PUT /api/chat/{id}/end".
func Route(method, pattern string) string { return method + " " + pattern }

// Hits: сколько раз вызван маршрут.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Fail заставляет маршрут отвечать status с {"error": message}. status 0 снимает подмену.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = failure{status: status, message: message}
}

// Hold задерживает следующий вызов route, пока не вызван release. entered закрывается,
// когда вызов дошёл до сервера. Действует один раз.
func (s *Server) Hold(route string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.holds[route] = h
	s.mu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

func (s *Server) AddSession(cs model.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now()
	}
	s.sessions = append(s.sessions, cs)
}

func (s *Server) AddMessage(m model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ChatSessionID] = append(s.messages[m.ChatSessionID], m)
}

func (s *Server) AddChatroom(room model.Chatroom, msgs ...model.ChatroomMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatrooms = append(s.chatrooms, room)
	s.roomMsgs[room.ID] = append(s.roomMsgs[room.ID], msgs...)
}

func (s *Server) AddForum(f model.Forum, posts ...model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forums = append(s.forums, f)
	s.posts[f.ID] = append(s.posts[f.ID], posts...)
}

// Session возвращает серверную копию сессии.
func (s *Server) Session(id int64) (model.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.sessions {
		if cs.ID == id {
			return cs, true
		}
	}
	return model.ChatSession{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

// track считает вызов и, если маршрут подменён, отвечает ошибкой.
func (s *Server) track(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := Route(r.Method, pattern)
		s.mu.Lock()
		s.hits[route]++
		f, failing := s.failures[route]
		h := s.holds[route]
		delete(s.holds, route)
		s.mu.Unlock()
		if h != nil {
			close(h.entered)
			select {
			case <-h.release:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			if f.message == "" {
				w.WriteHeader(f.status)
				return
			}
			writeJSON(w, f.status, map[string]string{"error": f.message})
			return
		}
		next(w, r)
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	handle := func(method, pattern string, h http.HandlerFunc) {
		r.Method(method, pattern, s.track(pattern, h))
	}

	handle(http.MethodGet, "/api/session/me", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		me := s.Me
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": me})
	})
	handle(http.MethodPost, "/api/session/create", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		if body.Username != "" {
			s.Me.Username = body.Username
		}
		me := s.Me
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: api.SessionCookie, Value: me.SessionToken, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": me})
	})

	handle(http.MethodGet, "/api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.ChatSession(nil), s.sessions...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
	})
	handle(http.MethodPost, "/api/chat/match/random", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.nextID++
		cs := model.ChatSession{
			ID: s.nextID, User1Username: s.Me.Username, User1SessionToken: s.Me.SessionToken,
			Status: s.MatchStatus, Type: model.SessionRandom, CreatedAt: time.Now(),
		}
		s.sessions = append(s.sessions, cs)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"session": cs})
	})
	handle(http.MethodPost, "/api/chat/match/planned", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RecipientID string `json:"recipientId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.nextID++
		cs := model.ChatSession{
			ID: s.nextID, User1Username: s.Me.Username, User1SessionToken: s.Me.SessionToken,
			User2Username: body.RecipientID, Status: model.SessionWaiting, Type: model.SessionPlanned, CreatedAt: time.Now(),
		}
		s.sessions = append(s.sessions, cs)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"session": cs})
	})

	setStatus := func(status model.SessionStatus) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id := idParam(r)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i := range s.sessions {
				if s.sessions[i].ID == id {
					s.sessions[i].Status = status
					writeJSON(w, http.StatusOK, map[string]any{"session": s.sessions[i]})
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		}
	}
	handle(http.MethodPost, "/api/chat/{id}/accept", setStatus(model.SessionActive))
	handle(http.MethodDelete, "/api/chat/{id}/reject", setStatus(model.SessionEnded))
	handle(http.MethodDelete, "/api/chat/{id}/cancel", setStatus(model.SessionEnded))
	handle(http.MethodPut, "/api/chat/{id}/end", setStatus(model.SessionEnded))
	handle(http.MethodPut, "/api/chat/{id}/mark-read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handle(http.MethodGet, "/api/chat/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.ChatMessage(nil), s.messages[idParam(r)]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
	})
	handle(http.MethodPost, "/api/chat/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := idParam(r)
		s.mu.Lock()
		s.nextID++
		m := model.ChatMessage{
			ID: s.nextID, ChatSessionID: id, SenderSessionToken: s.Me.SessionToken,
			SenderUsername: s.Me.Username, Content: body.Content, CreatedAt: time.Now(),
		}
		s.messages[id] = append(s.messages[id], m)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": m})
	})

	handle(http.MethodGet, "/api/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.Chatroom(nil), s.chatrooms...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"chatrooms": out})
	})
	handle(http.MethodPost, "/api/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		var body api.CreateChatroomRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.nextID++
		room := model.Chatroom{ID: s.nextID, Name: body.Name, Description: body.Description, CreatedAt: time.Now()}
		s.chatrooms = append(s.chatrooms, room)
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"chatroom": room})
	})
	handle(http.MethodGet, "/api/chatrooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.ChatroomMessage(nil), s.roomMsgs[idParam(r)]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
	})
	handle(http.MethodPost, "/api/chatrooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := idParam(r)
		s.mu.Lock()
		s.nextID++
		m := model.ChatroomMessage{
			ID: s.nextID, ChatroomID: id, SenderSessionToken: s.Me.SessionToken,
			SenderUsername: s.Me.Username, Content: body.Content, CreatedAt: time.Now(),
		}
		s.roomMsgs[id] = append(s.roomMsgs[id], m)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": m})
	})

	handle(http.MethodGet, "/api/forums", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.Forum(nil), s.forums...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"forums": out})
	})
	handle(http.MethodGet, "/api/forums/{id}/posts", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := append([]model.Post(nil), s.posts[idParam(r)]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"posts": out})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no route %s %s", r.Method, r.URL.Path)})
	})
	return r
}
