package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agora/internal/api"
	"github.com/agora/internal/config"
	"github.com/agora/internal/controller"
	"github.com/agora/internal/events"
	"github.com/agora/internal/middleware"
	"github.com/agora/internal/store"
	"github.com/agora/internal/ws"
)

// Options: всё, что нужно control API.
type Options struct {
	API            *api.Client
	Config         *config.Config
	Store          *store.Store
	Events         *events.Dispatcher
	Navigator      *controller.Navigator
	Requests       *controller.Requests
	Planned        *controller.Planned
	Hub            *ws.Hub
	AllowedOrigins []string
}

// NewRouter собирает control API: chi-роутер только для loopback.
func NewRouter(o Options) http.Handler {
	chatH := NewChatHandler(o.Navigator, o.Requests, o.Planned, o.Store)
	stateH := NewStateHandler(o.Store, o.API, o.Events, o.Navigator)
	communityH := NewCommunityHandler(o.API, o.Navigator)
	wsH := NewWSHandler(o.Hub, o.AllowedOrigins)
	configH := NewConfigHandler(o.Config)

	r := chi.NewRouter()
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.InternalOnly)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader, middleware.ControlTokenHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(120, time.Minute))
	// снимок состояния устаревает с каждым push-событием
	r.Use(chimw.NoCache)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/ws/state", wsH.ServeState)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", configH.GetClientConfig)
		r.Get("/state", stateH.GetState)
		r.Post("/home", stateH.Home)
		r.Delete("/notification", stateH.DismissNotification)
		r.Put("/session/username", stateH.UpdateUsername)

		r.Post("/floaters/{id}/toggle", stateH.ToggleFloater)
		r.Delete("/floaters/{id}", stateH.CloseFloater)

		r.Route("/random", func(r chi.Router) {
			r.Post("/", chatH.OpenRandom)
			r.Post("/find", chatH.FindRandom)
			r.Post("/cancel", chatH.CancelRandom)
			r.Post("/end", chatH.EndRandom)
			r.Post("/reroll", chatH.RerollRandom)
			r.Post("/messages", chatH.SendRandom)
		})

		r.Post("/requests/{id}/accept", chatH.AcceptRequest)
		r.Post("/requests/{id}/reject", chatH.RejectRequest)
		r.Post("/planned/invite", chatH.Invite)

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", chatH.OpenList)
			r.Get("/", chatH.ListRows)
			r.Post("/{id}/open", chatH.OpenChat)
			r.Get("/{id}", chatH.GetChat)
			r.Post("/{id}/messages", chatH.SendChat)
			r.Post("/{id}/end", chatH.EndChat)
			r.Post("/{id}/close", chatH.CloseChat)
		})

		r.Route("/chatrooms", func(r chi.Router) {
			r.Get("/", communityH.ListChatrooms)
			r.Post("/", communityH.CreateChatroom)
			r.Post("/{id}/open", communityH.OpenChatroom)
			r.Get("/{id}", communityH.GetChatroom)
			r.Post("/{id}/messages", communityH.SendChatroom)
			r.Post("/{id}/close", communityH.CloseChatroom)
		})

		r.Route("/forums", func(r chi.Router) {
			r.Get("/", communityH.ListForums)
			r.Post("/", communityH.CreateForum)
			r.Get("/{id}/posts", communityH.ListPosts)
			r.Post("/{id}/posts", communityH.CreatePost)
			r.Put("/{id}/posts/{postId}", communityH.UpdatePost)
			r.Delete("/{id}/posts/{postId}", communityH.DeletePost)
		})
	})
	return r
}
