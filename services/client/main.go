package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agora/internal/api"
	"github.com/agora/internal/config"
	"github.com/agora/internal/controller"
	"github.com/agora/internal/events"
	"github.com/agora/internal/handler"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/middleware"
	"github.com/agora/internal/startup"
	"github.com/agora/internal/store"
	"github.com/agora/internal/transport"
	"github.com/agora/internal/view"
	"github.com/agora/internal/ws"
)

func main() {
	logger.SetPrefix("client")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	logger.Info("starting chat client")

	client, err := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, cfg.BeaconTimeout)
	if err != nil {
		logger.Errorf("api client: %v", err)
		os.Exit(1)
	}

	st := store.New(store.WithDismissDelay(cfg.NotificationDismiss))
	if err := openSession(client, st, cfg.Username); err != nil {
		logger.Errorf("anonymous session: %v", err)
		os.Exit(1)
	}

	socketURL, err := socketEndpoint(cfg.SocketURL)
	if err != nil {
		logger.Errorf("socket url: %v", err)
		os.Exit(1)
	}
	sock := transport.NewClient(transport.Options{
		URL:               socketURL,
		Jar:               client.Jar(),
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectDelayMax: cfg.ReconnectDelayMax,
	})
	disp := events.New(sock, st)
	disp.Attach()

	sockCtx, sockCancel := context.WithCancel(context.Background())
	defer sockCancel()
	if err := sock.Connect(sockCtx); err != nil {
		logger.Errorf("push channel: %v", err)
		os.Exit(1)
	}

	guardCtx, guardCancel := context.WithTimeout(context.Background(), 30*time.Second)
	guard := startup.CleanupGuard(guardCtx, cfg.RedisURL, 20*time.Second, "client: ")
	guardCancel()

	banner := view.NewBanner(st)
	banner.Start()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(st, 0)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	deps := controller.Deps{
		API:    client,
		Socket: sock,
		Store:  st,
		Guard:  guard,
		Events: disp,
		Expiry: cfg.SessionExpiry,
	}
	nav := controller.NewNavigator(deps)

	srv := &http.Server{
		Addr: cfg.ControlAddr,
		Handler: handler.NewRouter(handler.Options{
			API:            client,
			Config:         cfg,
			Store:          st,
			Events:         disp,
			Navigator:      nav,
			Requests:       controller.NewRequests(deps),
			Planned:        controller.NewPlanned(deps),
			Hub:            hub,
			AllowedOrigins: cfg.AllowedOrigins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("control API listening on %s", cfg.ControlAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("control API stopped accepting connections")

	// уход со страницы: beacon cancel/end для random-чата, выход из комнат
	nav.Shutdown(shutdownCtx)
	if !client.Flush(cfg.BeaconTimeout) {
		logger.Error("beacons still in flight at exit")
	}
	disp.Detach()
	sock.Disconnect()
	sock.Wait()
	banner.Stop()
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	if err := guard.Close(); err != nil {
		logger.Errorf("guard close: %v", err)
	}
	srvWg.Wait()
	logger.Info("client stopped")
}

// openSession создаёт анонимную сессию; cookie остаётся в jar клиента.
func openSession(client *api.Client, st *store.Store, username string) error {
	defer logger.DeferLogDuration("openSession", time.Now())()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	user, err := client.CreateSession(ctx, username)
	if err != nil {
		return err
	}
	st.SetIdentity(user.SessionToken, user.Username)
	logger.Infof("session %s as %s", middleware.MaskSessionToken(user.SessionToken), user.Username)
	return nil
}

// socketEndpoint переводит http(s)-адрес в ws(s) и добавляет путь /ws.
func socketEndpoint(base string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path += "/ws"
	}
	return u.String(), nil
}
