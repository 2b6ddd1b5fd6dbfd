package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/a-essam23/go-classroom/internal/router"
	"github.com/a-essam23/go-classroom/internal/server/middleware"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/state/statemanager"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

// App is the local stand-in for the classroom service: the /api/auth
// endpoints and the realtime relay.
type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	users        *Directory
	tokens       *TokenIssuer
	polls        *pollRegistry
	wg           sync.WaitGroup
	handler      http.Handler
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootContx context.Context, cfg *config.Config, users *Directory) *App {
	stateManager := statemanager.NewInMemoryManager(logger)

	app := &App{
		logger:       logger.With(slog.String("component", "stub_server")),
		stateManager: stateManager,
		users:        users,
		tokens:       NewTokenIssuer(cfg.Stub.JWTSecret, cfg.Stub.TokenTTL),
		polls:        newPollRegistry(),
		config:       cfg,
		ctx:          rootContx,
	}
	app.eventRouter = router.NewEventRouter(logger, stateManager, app.identify)

	connCounter := middleware.ConnectionCounter(stateManager.GetConnectionCountFrom)
	// Create a cycler function that closes over the stateManager and logger.
	connCycler := func(ipAddr string) {
		oldest, found := stateManager.FindOldestConnectionFrom(ipAddr)
		if found {
			app.logger.Info("Cycling connection: closing oldest", slog.String("ip", ipAddr), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}
	limiter := middleware.NewConnectionLimiter(app.logger, connCounter, connCycler, cfg.Stub.ConnectionLimit)
	requireToken := middleware.NewAuthMiddleware(app.logger, app.tokens.Verify)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Routes live on the root router: mux reports a method mismatch inside a
	// subrouter as not found, which would hide the 405 handler.
	r.HandleFunc("/api/auth/login", app.login).Methods(http.MethodPost)
	r.Handle("/api/auth/logout", middleware.Chain(http.HandlerFunc(app.logout), requireToken)).Methods(http.MethodPost)
	r.Handle("/api/auth/verify-token", middleware.Chain(http.HandlerFunc(app.verifyToken), requireToken)).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/register", app.register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/send-code", app.sendCode).Methods(http.MethodPost)

	r.Handle("/realtime/ws", middleware.Chain(http.HandlerFunc(app.upgradeHandler), limiter)).Methods(http.MethodGet)
	r.Handle("/realtime/poll", middleware.Chain(http.HandlerFunc(app.openPoll), limiter)).Methods(http.MethodPost)
	r.HandleFunc("/realtime/poll/{sid}", app.pollFrames).Methods(http.MethodGet)
	r.HandleFunc("/realtime/poll/{sid}", app.pushFrame).Methods(http.MethodPost)
	r.HandleFunc("/realtime/poll/{sid}", app.closePoll).Methods(http.MethodDelete)

	app.handler = middleware.Chain(r,
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(app.logger),
	)
	app.http = &http.Server{Addr: cfg.Stub.Address, Handler: app.handler, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	go app.expirePolls()
	return app
}

// Handler exposes the routed handler, for tests and embedding.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Users() *Directory { return a.users }

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) connConfig() transport.ConnectionConfig {
	return transport.ConnectionConfig{PollTimeout: a.pollTimeout()}
}

func (a *App) pollTimeout() time.Duration {
	if a.config.Stub.PollTimeout <= 0 {
		return 25 * time.Second
	}
	return a.config.Stub.PollTimeout
}

// identify is the handshake's token check.
func (a *App) identify(token string) (state.Identity, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return state.Identity{}, fmt.Errorf("token validation failed: %w", err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return state.Identity{}, fmt.Errorf("token validation failed: bad subject %q", claims.Subject)
	}
	user, ok := a.users.Find(id)
	if !ok {
		return state.Identity{}, errors.New("user no longer exists")
	}
	return state.Identity{
		ID:     claims.Subject,
		Name:   user.RealName,
		Avatar: user.PhotoURL,
		Role:   string(user.Role),
	}, nil
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	a.wg.Add(1)
	defer a.wg.Done()

	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewWSConn(wsConn, a.connConfig(), a.eventRouter.HandleMessage, a.eventRouter.HandleClose, a.logger)
	if _, err := a.stateManager.RegisterConnection(conn, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("Realtime connection established, awaiting handshake", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// expirePolls closes polling sessions whose client stopped polling.
func (a *App) expirePolls() {
	ttl := a.config.Stub.PollSessionTTL
	if ttl <= 0 {
		ttl = 2 * a.pollTimeout()
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case now := <-ticker.C:
			for _, sess := range a.polls.expired(now.Add(-ttl)) {
				a.logger.Info("Expiring idle polling session", slog.String("sid", sess.sid))
				sess.Close(errPollExpired)
			}
		}
	}
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Close()
	a.logger.Info("Server shut down gracefully.")
	return nil
}

// Close drops every realtime connection and waits for their handlers to return.
func (a *App) Close() {
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.AllConnections() {
		conn.Close(errors.New("graceful shutdown"))
	}
	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
}
