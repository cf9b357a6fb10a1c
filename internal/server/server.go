package server

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"pdfreader/internal/config"
	"pdfreader/internal/conversation"
	"pdfreader/internal/index"
	"pdfreader/internal/pipeline"
	"pdfreader/internal/ratelimit"
	"pdfreader/internal/session"
	"pdfreader/internal/storage"
)

const sessionCookie = "pdfreader_session"

// Server exposes the question-answering pipeline over a small JSON
// API plus static serving for rendered page images.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	sessions *session.Manager
	pipe     *pipeline.Pipeline
	store    *storage.Store
	validate *validator.Validate
}

func New(cfg *config.Config, sessions *session.Manager, pipe *pipeline.Pipeline, store *storage.Store) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:    int(cfg.MaxFileSize()),
		ErrorHandler: errorHandler,
	})

	app.Use(cors.New())
	app.Use(requestLogger())

	s := &Server{
		app:      app,
		cfg:      cfg,
		sessions: sessions,
		pipe:     pipe,
		store:    store,
		validate: validator.New(),
	}
	s.registerRoutes()
	return s
}

// App returns the underlying Fiber app, used by tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("server listening")
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) registerRoutes() {
	api := s.app.Group("/api", s.withSession)
	api.Post("/documents", s.handleUpload)
	api.Post("/ask", s.handleAsk)
	api.Get("/sessions/current", s.handleSession)
	api.Get("/documents/current/file", s.handleDownload)

	s.app.Static("/files", s.store.Root())
}

// withSession resolves the caller's session from the cookie, creating
// one on first contact. The session is stored in locals for handlers.
func (s *Server) withSession(c *fiber.Ctx) error {
	var sess *session.Session
	if id := c.Cookies(sessionCookie); id != "" {
		sess, _ = s.sessions.Get(id)
	}
	if sess == nil {
		sess = s.sessions.Create()
		c.Cookie(&fiber.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			HTTPOnly: true,
			SameSite: "Lax",
		})
	}
	c.Locals("session", sess)
	err := c.Next()
	s.sessions.Touch(sess)
	return err
}

func currentSession(c *fiber.Ctx) *session.Session {
	return c.Locals("session").(*session.Session)
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	}
}

// errorHandler maps the error taxonomy onto HTTP statuses. Recoverable
// errors have already left session state untouched by the time they
// reach here.
func errorHandler(c *fiber.Ctx, err error) error {
	var (
		fiberErr      *fiber.Error
		validationErr *pipeline.ValidationError
		deniedErr     *ratelimit.DeniedError
		buildErr      *index.BuildError
		generationErr *conversation.GenerationError
	)

	status := fiber.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		message = fiberErr.Message
		if status == fiber.StatusRequestEntityTooLarge {
			message = "file exceeds the maximum upload size"
		}
	case errors.As(err, &validationErr):
		status = fiber.StatusBadRequest
		message = validationErr.Msg
	case errors.As(err, &deniedErr):
		status = fiber.StatusTooManyRequests
		message = deniedErr.Error()
	case errors.Is(err, index.ErrNotInitialized):
		status = fiber.StatusConflict
		message = "no document has been processed yet"
	case errors.As(err, &buildErr):
		status = fiber.StatusUnprocessableEntity
		message = "failed to index the document"
	case errors.As(err, &generationErr):
		status = fiber.StatusBadGateway
		message = "the language model is unavailable, please try again"
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}

	return c.Status(status).JSON(fiber.Map{"error": message})
}
