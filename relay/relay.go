// Package relay serves the browser-facing chat API. It relays the backend's
// chat event stream to the caller as events arrive, forwards the persistence
// side channel, and records every relayed turn.
package relay

import (
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/eventstream"
	"github.com/papercomputeco/typhoon/pkg/mock"
	"github.com/papercomputeco/typhoon/pkg/storage"
	"github.com/papercomputeco/typhoon/pkg/streamclient"
	"github.com/papercomputeco/typhoon/relay/auth"
	"github.com/papercomputeco/typhoon/relay/header"
	"github.com/papercomputeco/typhoon/relay/limit"
	"github.com/papercomputeco/typhoon/relay/worker"
)

// ChatRoute is the relay's streaming chat route.
const ChatRoute = "/api/llm/chat"

// Relay sits between a chat UI and the backend chat service. It is
// transparent to the event stream: events are written to the caller in the
// order they arrive and turns are recorded off the hot path by its worker
// pool.
type Relay struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *zap.Logger
	streams       *streamclient.Client
	backend       *backend.Client
	server        *fiber.App
	headerHandler *header.Handler
	limiter       *limit.Limiter

	// inflight tracks stream goroutines that may still enqueue a job.
	inflight sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Relay. Relayed turns are stored with driver and announced
// on publisher, which may be nil.
func New(config Config, driver storage.Driver, publisher eventstream.Publisher, logger *zap.Logger) (*Relay, error) {
	if config.BackendURL == "" && !config.Mock {
		return nil, errors.New("backend URL is required")
	}
	config.BackendURL = strings.TrimRight(config.BackendURL, "/")
	if config.StreamTimeout <= 0 {
		config.StreamTimeout = DefaultStreamTimeout
	}
	if config.MockInterval <= 0 {
		config.MockInterval = mock.DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	r := &Relay{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		streams:       streamclient.New(streamclient.WithLogger(logger)),
		backend:       backend.New(config.BackendURL, backend.WithLogger(logger)),
	}
	if config.RequestsPerSecond > 0 {
		r.limiter = limit.NewLimiter(config.RequestsPerSecond, config.Burst)
	}

	r.routes()
	return r, nil
}

func (r *Relay) routes() {
	r.server.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	api := r.server.Group("/api")
	if r.config.JWTSecret != "" {
		api.Use(auth.New(r.config.JWTSecret, r.logger))
	}

	api.Post("/llm/chat", r.chatHandlers(r.handleChat)...)
	api.Get("/llm/chat", r.chatHandlers(r.handleMockChat)...)

	api.Post("/messages/register", r.handleRegisterMessage)
	api.Patch("/messages/preference", r.handlePreference)
	api.Get("/chatsessions/:session_id/messages", r.handleSessionMessages)
	api.Get("/users/:email/chat_sessions", r.handleUserSessions)
	api.Get("/llm/params", r.handleModelParams)
	api.Post("/users/register", r.handleRegisterUser)
}

func (r *Relay) chatHandlers(h fiber.Handler) []fiber.Handler {
	if r.limiter == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{r.limiter.Middleware(r.logger), h}
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		zap.String("listen", r.config.ListenAddr),
		zap.String("backend", r.config.BackendURL),
		zap.Bool("mock", r.config.Mock),
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("backend", r.config.BackendURL),
		zap.Bool("mock", r.config.Mock),
	)

	return r.server.Listener(listener)
}

// Close shuts the server down, waits for open streams to finish, and then
// drains the worker pool. Later calls return the first call's result.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.server.Shutdown()
		r.inflight.Wait()
		r.workerPool.Close()
	})
	return r.closeErr
}
