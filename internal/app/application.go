package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"codepair/internal/ai"
	"codepair/internal/api"
	"codepair/internal/auth"
	"codepair/internal/config"
	"codepair/internal/database"
	"codepair/internal/relay"
	"codepair/internal/session"
	"codepair/internal/websocket"
	pkgdatabase "codepair/pkg/database"
)

// Application coordinates all system components with clean dependency
// injection. The relay's registry and membership state belong to this
// instance; there are no process-wide singletons.
type Application struct {
	config     *config.Config
	store      *database.Manager
	sessions   *session.Manager
	registry   *relay.Registry
	membership *relay.Membership
	dispatcher *relay.Dispatcher
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application instance with all components
// initialized in dependency order:
// Database → Sessions → Relay → Auth → AI → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager (foundation layer, applies schema)
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	store, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Session manager with its active-session cache
	sessions := session.NewManager(store)
	if err := sessions.LoadActiveSessions(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	// STEP 3: Relay state and dispatcher
	registry := relay.NewRegistry()
	membership := relay.NewMembership()
	dispatcher := relay.NewDispatcher(registry, membership, store, sessions)

	// STEP 4: Token manager shared by the API and the socket upgrade
	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	// STEP 5: Assist client; a missing API key disables the endpoints
	var assist *ai.Client
	if cfg.AI.APIKey != "" {
		assist, err = ai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize assist client: %w", err)
		}
	} else {
		log.Println("AI assist disabled: no API key configured")
	}

	// STEP 6: API server and relay socket handler
	apiServer := api.NewServer(sessions, store, dispatcher, tokens, assist)
	wsHandler := websocket.NewHandler(dispatcher, tokens, cfg.WebSocket)

	// STEP 7: Shared HTTP server for both surfaces
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		sessions:   sessions,
		registry:   registry,
		membership: membership,
		dispatcher: dispatcher,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution and verifies the HTTP server came
// up before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting CodePair application on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("CodePair application started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down in reverse dependency order: HTTP → Database.
// In-flight relay connections close with the HTTP server; their deferred
// disconnect reconciliation runs before the store closes.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down CodePair application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("CodePair application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
