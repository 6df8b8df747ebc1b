package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-console/internal/apiclient"
	"payment-console/internal/config"
	"payment-console/internal/domain"
	"payment-console/internal/handler"
	"payment-console/internal/messaging"
	"payment-console/internal/middleware"
	"payment-console/internal/notification"
	"payment-console/internal/observability"
	"payment-console/internal/persist"
	"payment-console/internal/repository/file"
	"payment-console/internal/repository/memory"
	"payment-console/internal/repository/postgres"
	"payment-console/internal/repository/redis"
	"payment-console/internal/security"
	"payment-console/internal/session"
	"payment-console/internal/tokenstore"
	"payment-console/internal/websocket"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting session agent",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("token_store", cfg.TokenStore),
		slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, closeKV, err := openKVStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open token store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeKV()

	tokens := tokenstore.New(kv)

	var sealer persist.Sealer
	if cfg.SnapshotKey != "" {
		cipher, err := security.NewSnapshotCipher(cfg.SnapshotKey)
		if err != nil {
			slog.Error("invalid snapshot key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sealer = cipher
	}
	snapshots := persist.New(kv, sealer)

	client, err := apiclient.New(apiclient.Config{
		BaseURL:           cfg.APIBaseURL,
		LoginPath:         cfg.LoginPath,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSec,
		Burst:             cfg.RequestBurst,
	}, tokens)
	if err != nil {
		slog.Error("failed to create api client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()

	mgr := session.NewManager(client, tokens, snapshots, hub, session.Options{
		RevalidationInterval: cfg.RefreshInterval,
	})
	client.SetRefresher(mgr)
	client.OnAuthFailure(func(loginPath string) {
		mgr.RedirectToLogin(ctx, loginPath)
		hub.Publish(websocket.EventRedirect, map[string]string{"loginPath": loginPath})
	})

	var relay *messaging.Relay
	var notificationRelay notification.Relay
	if cfg.RabbitMQURL != "" {
		relay, err = connectRelay(ctx, cfg.RabbitMQURL)
		if err != nil {
			// Relaying is optional; the agent keeps working without it.
			slog.Warn("notification relay disabled", slog.String("error", err.Error()))
		} else {
			defer relay.Close()
			notificationRelay = relay
		}
	}
	notifications := notification.NewStore(hub, notificationRelay)

	channel, err := notification.NewChannel(notification.ChannelConfig{
		URL:            cfg.WSURL,
		ReconnectDelay: cfg.ReconnectDelay,
	}, tokens, notifications)
	if err != nil {
		slog.Error("failed to create notification channel", slog.String("error", err.Error()))
		os.Exit(1)
	}

	unsubscribe := wireState(ctx, mgr, notifications, channel, hub)
	defer unsubscribe()

	if _, err := mgr.Hydrate(ctx); err != nil {
		slog.Warn("failed to hydrate session", slog.String("error", err.Error()))
	}
	mgr.Bootstrap(ctx)

	if !mgr.Session().IsAuthenticated && cfg.LoginUsername != "" {
		if err := mgr.Login(ctx, domain.LoginRequest{
			UsernameOrEmail: cfg.LoginUsername,
			Password:        cfg.LoginPassword,
		}); err != nil {
			slog.Warn("startup login failed", slog.String("error", err.Error()))
		}
	}
	if mgr.Session().IsAuthenticated {
		startAuthenticated(ctx, mgr, channel)
	}

	controlToken, err := resolveControlToken(cfg)
	if err != nil {
		slog.Error("failed to prepare control token", slog.String("error", err.Error()))
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(20, 50)
	defer limiter.Stop()

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	router := handler.NewRouter(handler.RouterConfig{
		Session:       handler.NewSessionHandler(mgr),
		Notifications: handler.NewNotificationHandler(notifications),
		Channel:       handler.NewChannelHandler(channel),
		Theme:         handler.NewThemeHandler(snapshots),
		State: handler.NewStateHandler(hub, func() [][]byte {
			return snapshotFrames(mgr, notifications, channel)
		}, origins),
		ReadinessChecks:   readinessChecks(mgr, tokens, channel, relay),
		ControlToken:      controlToken,
		AllowedOrigins:    origins,
		OpenAPIValidation: cfg.OpenAPIEnabled,
		Limiter:           limiter,
	})

	srv := &http.Server{
		Addr:         cfg.ControlAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("control api listening", slog.String("addr", cfg.ControlAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	foreground := make(chan os.Signal, 1)
	signal.Notify(foreground, syscall.SIGUSR1)
	go func() {
		for range foreground {
			mgr.OnForeground(session.WithTrigger(ctx, "foreground"))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	signal.Stop(foreground)

	slog.Info("shutting down session agent")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	mgr.StopRevalidation()
	channel.Disconnect()
	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("session agent stopped gracefully")
}

// openKVStore builds the durable store selected by TOKEN_STORE. The returned
// func releases its connections.
func openKVStore(ctx context.Context, cfg *config.Config) (domain.KVStore, func(), error) {
	noop := func() {}

	switch cfg.TokenStore {
	case config.StoreMemory:
		slog.Warn("using in-memory token store, sessions will not survive restarts")
		return memory.NewKVStore(), noop, nil

	case config.StoreRedis:
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()
		rdb, err := config.NewRedisClient(connCtx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("connected to redis")
		return redis.NewKVStore(rdb, ""), func() { _ = rdb.Close() }, nil

	case config.StorePostgres:
		db, err := config.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()
		store, err := postgres.NewKVStore(connCtx, db)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		slog.Info("connected to postgresql")
		return store, func() { _ = store.Close(); _ = db.Close() }, nil

	default:
		store, err := file.NewKVStore(cfg.StateDir)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("using file token store", slog.String("path", store.Path()))
		return store, noop, nil
	}
}

func connectRelay(ctx context.Context, url string) (*messaging.Relay, error) {
	relay, err := messaging.NewRelay(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := relay.Setup(); err != nil {
		relay.Close()
		return nil, err
	}
	slog.Info("notification relay connected", slog.String("exchange", messaging.NotificationsExchange))
	return relay, nil
}

// wireState pushes every state change to UI subscribers and follows session
// transitions: the channel and revalidation run only while authenticated.
func wireState(ctx context.Context, mgr *session.Manager, notifications *notification.Store, channel *notification.Channel, hub *websocket.Hub) func() {
	// Coalesced: the watcher re-reads the session on every signal.
	changed := make(chan struct{}, 1)

	unsubSession := mgr.Subscribe(func(s domain.Session) {
		hub.Publish(websocket.EventSession, handler.NewSessionView(s))
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	unsubNotifications := notifications.Subscribe(func(st notification.ListState) {
		hub.Publish(websocket.EventNotifications, st)
	})
	unsubChannel := channel.Subscribe(func(st notification.Status) {
		hub.Publish(websocket.EventChannel, st)
	})

	go func() {
		was := mgr.Session().IsAuthenticated
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				is := mgr.Session().IsAuthenticated
				switch {
				case is && !was:
					startAuthenticated(ctx, mgr, channel)
				case !is && was:
					mgr.StopRevalidation()
					channel.Disconnect()
				}
				was = is
			}
		}
	}()

	return func() {
		unsubSession()
		unsubNotifications()
		unsubChannel()
	}
}

func startAuthenticated(ctx context.Context, mgr *session.Manager, channel *notification.Channel) {
	if err := channel.Connect(ctx); err != nil {
		slog.Error("failed to connect notification channel", slog.String("error", err.Error()))
	}
	mgr.StartRevalidation(ctx)
}

func snapshotFrames(mgr *session.Manager, notifications *notification.Store, channel *notification.Channel) [][]byte {
	events := []struct {
		eventType string
		data      any
	}{
		{websocket.EventSession, handler.NewSessionView(mgr.Session())},
		{websocket.EventNotifications, notifications.State()},
		{websocket.EventChannel, channel.Status()},
	}

	frames := make([][]byte, 0, len(events))
	for _, e := range events {
		frame, err := websocket.Encode(e.eventType, e.data)
		if err != nil {
			slog.Error("failed to encode state snapshot", slog.String("type", e.eventType), slog.String("error", err.Error()))
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

func readinessChecks(mgr *session.Manager, tokens *tokenstore.Store, channel *notification.Channel, relay *messaging.Relay) []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{
		{Name: "token_store", Check: func(ctx context.Context) (map[string]interface{}, error) {
			return nil, tokens.Ping(ctx)
		}},
		{Name: "notification_channel", Check: func(context.Context) (map[string]interface{}, error) {
			st := channel.Status()
			meta := map[string]interface{}{"state": st.State, "reconnect_pending": st.ReconnectPending}
			if mgr.Session().IsAuthenticated && !st.Connected && !st.ReconnectPending && st.State != notification.StateConnecting {
				return meta, errors.New("channel down while authenticated")
			}
			return meta, nil
		}},
	}
	if relay != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "relay", Check: func(ctx context.Context) (map[string]interface{}, error) {
			return nil, relay.Ping(ctx)
		}})
	}
	return checks
}

// resolveControlToken generates and stores a control token in production when
// none is configured, so the control API is never left open there.
func resolveControlToken(cfg *config.Config) (string, error) {
	if cfg.ControlToken != "" || !cfg.IsProduction() {
		return cfg.ControlToken, nil
	}

	token, err := security.GenerateControlToken()
	if err != nil {
		return "", err
	}
	path, err := security.WriteControlToken(cfg.StateDir, token)
	if err != nil {
		return "", err
	}
	slog.Info("generated control token", slog.String("path", path))
	return token, nil
}
