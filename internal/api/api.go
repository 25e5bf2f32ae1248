// Package api exposes the REST surface of the tracker: account
// management, jobs, tasks, notes and the URL analysis endpoint. Every
// successful mutation is broadcast to the realtime hub after the
// response is committed to storage.
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/dailytrack/dailytrack/internal/auth"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/metrics"
)

// nowFunc is swapped out in tests that need a fixed clock.
var nowFunc = time.Now

// Config contains API configuration
type Config struct {
	// Server address
	Addr string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
	}
}

// API handles HTTP endpoints
type API struct {
	config      Config
	app         *fiber.App
	storage     domain.Storage
	broadcaster domain.Broadcaster
	sessions    *auth.Sessions
	sender      auth.Sender
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewAPI creates the API and builds the Fiber app with all routes.
func NewAPI(config Config, storage domain.Storage, broadcaster domain.Broadcaster, sessions *auth.Sessions, sender auth.Sender) *API {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}

	a := &API{
		config:      config,
		storage:     storage,
		broadcaster: broadcaster,
		sessions:    sessions,
		sender:      sender,
		logger:      log.With().Str("component", "api").Logger(),
		metrics:     metrics.GetMetrics(),
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool { return true },
		AllowCredentials: true,
	}))
	app.Use(a.metricsMiddleware)

	a.registerRoutes(app)
	a.app = app
	return a
}

// App returns the underlying Fiber app.
func (a *API) App() *fiber.App {
	return a.app
}

// Start runs the server until the context is cancelled.
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.app.Listen(a.config.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the server.
func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}

// metricsMiddleware records request counts, durations and error totals.
func (a *API) metricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	path := c.Route().Path
	status := c.Response().StatusCode()
	a.metrics.APIRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
	a.metrics.APIRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
	if status >= 500 {
		a.metrics.APIErrorsTotal.WithLabelValues(c.Method(), path, "server_error").Inc()
	}
	return err
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(app *fiber.App) {
	// Health checks
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/readyz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// Account endpoints
	app.Post("/api/auth/register", a.handleRegister)
	app.Post("/api/auth/login", a.handleLogin)
	app.Post("/api/auth/logout", a.handleLogout)
	app.Get("/api/auth/check", a.handleCheck)
	app.Get("/api/auth/me", a.handleMe)
	app.Post("/api/auth/change-password", a.handleChangePassword)
	app.Delete("/api/auth/account", a.handleDeleteAccount)
	app.Post("/api/auth/forgot-password/send-otp", a.handleForgotPasswordSendOTP)
	app.Post("/api/auth/forgot-password/verify-otp", a.handleForgotPasswordVerifyOTP)
	app.Post("/api/auth/forgot-password/reset", a.handleForgotPasswordReset)
	app.Post("/api/auth/reset-password", a.handleForgotPasswordReset)
	app.Post("/api/auth/mobile-login/send-otp", a.handleMobileLoginSendOTP)
	app.Post("/api/auth/mobile-login/verify-otp", a.handleMobileLoginVerifyOTP)

	// Job endpoints
	app.Get("/api/jobs", a.handleListJobs)
	app.Post("/api/jobs", a.handleCreateJob)
	app.Post("/api/jobs/analyze", a.handleAnalyzeJob)
	app.Put("/api/jobs/:id", a.handleUpdateJob)
	app.Delete("/api/jobs/:id", a.handleDeleteJob)

	// Task endpoints
	app.Get("/api/tasks", a.handleListTasks)
	app.Post("/api/tasks", a.handleCreateTask)
	app.Put("/api/tasks/:id", a.handleUpdateTask)
	app.Patch("/api/tasks/:id", a.handleUpdateTask)
	app.Delete("/api/tasks/:id", a.handleDeleteTask)

	// Note endpoints
	app.Get("/api/notes", a.handleListNotes)
	app.Post("/api/notes", a.handleCreateNote)
	app.Patch("/api/notes/:id", a.handleUpdateNote)
	app.Delete("/api/notes/:id", a.handleDeleteNote)
}

// currentUser resolves the session cookie to a user ID.
func (a *API) currentUser(c *fiber.Ctx) (string, bool) {
	token := c.Cookies(a.sessions.Config().SessionCookie)
	return a.sessions.Resolve(token)
}

// requireUser resolves the session or writes a 401. Mutations call this
// before touching storage so unauthenticated requests never persist or
// broadcast anything.
func (a *API) requireUser(c *fiber.Ctx) (string, error) {
	userID, ok := a.currentUser(c)
	if !ok {
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}
	return userID, nil
}

// setSessionCookie issues a session for the user on the response.
func (a *API) setSessionCookie(c *fiber.Ctx, userID string) {
	token := a.sessions.Create(userID)
	c.Cookie(&fiber.Cookie{
		Name:     a.sessions.Config().SessionCookie,
		Value:    token,
		Expires:  time.Now().Add(a.sessions.Config().SessionTTL),
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

func noStore(c *fiber.Ctx) {
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	c.Set("Pragma", "no-cache")
	c.Set("Expires", "0")
}
