// Package api exposes the library over HTTP. Handlers only parse and validate
// input, call the LibraryManager and map outcomes to status codes.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"library-lending/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the HTTP front end.
type Server struct {
	app      *fiber.App
	mgr      *library.LibraryManager
	log      *slog.Logger
	secret   []byte
	validate *validator.Validate
}

// Options configures New.
type Options struct {
	JWTSecret      string
	Logger         *slog.Logger
	AccessLog      bool
	RequestTimeout time.Duration
}

// New builds the fiber app with every route registered.
func New(mgr *library.LibraryManager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	s := &Server{
		mgr:      mgr,
		log:      opts.Logger,
		secret:   []byte(opts.JWTSecret),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.validate.RegisterTagNameFunc(fieldName)

	s.app = fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           90 * time.Second,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	if opts.AccessLog {
		s.app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	s.app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), opts.RequestTimeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	s.routes()
	return s
}

// App returns the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	r := s.app.Group("/api")
	auth := s.requireAuth
	admin := s.requireAdmin

	r.Get("/home", s.home)
	r.Post("/auth/register", s.register)

	r.Get("/books", s.listBooks)
	r.Get("/books/search", s.searchBooks)
	r.Get("/books/popular", s.popularBooks)
	r.Get("/books/new", s.newBooks)
	r.Get("/books/:id", s.getBook)
	r.Post("/books", auth, admin, s.createBook)
	r.Put("/books/:id", auth, admin, s.updateBook)
	r.Delete("/books/:id", auth, admin, s.deleteBook)
	r.Patch("/books/:id/inventory", auth, admin, s.adjustInventory)
	r.Post("/books/:id/loan", auth, s.issueLoan)
	r.Post("/books/:id/reserve", auth, s.createReservation)

	r.Get("/authors", s.listAuthors)
	r.Post("/authors", auth, admin, s.createAuthor)
	r.Put("/authors/:id", auth, admin, s.updateAuthor)
	r.Delete("/authors/:id", auth, admin, s.deleteAuthor)
	r.Get("/authors/:id/books", s.authorBooks)
	r.Get("/categories", s.listCategories)
	r.Post("/categories", auth, admin, s.createCategory)
	r.Put("/categories/:id", auth, admin, s.updateCategory)
	r.Delete("/categories/:id", auth, admin, s.deleteCategory)
	r.Get("/categories/:id/books", s.categoryBooks)
	r.Get("/publishers", s.listPublishers)
	r.Get("/publishers/:id", s.getPublisher)
	r.Post("/publishers", auth, admin, s.createPublisher)
	r.Put("/publishers/:id", auth, admin, s.updatePublisher)
	r.Delete("/publishers/:id", auth, admin, s.deletePublisher)
	r.Get("/publishers/:id/books", s.publisherBooks)

	r.Get("/loans", auth, s.listLoans)
	r.Get("/loans/active", auth, s.activeLoans)
	r.Get("/loans/history", auth, s.loanHistory)
	r.Get("/loans/:id", auth, s.getLoan)
	r.Post("/loans/:id/renew", auth, s.renewLoan)
	r.Post("/loans/:id/return", auth, admin, s.returnLoan)

	r.Get("/reservations", auth, s.listReservations)
	r.Get("/reservations/active", auth, s.activeReservations)
	r.Post("/reservations/:id/cancel", auth, s.cancelReservation)

	r.Get("/notifications", auth, s.listNotifications)
	r.Get("/notifications/unread", auth, s.unreadNotifications)
	r.Post("/notifications/read-all", auth, s.markAllRead)
	r.Post("/notifications/:id/read", auth, s.markRead)

	r.Get("/reviews", s.listReviews)
	r.Post("/reviews", auth, s.createReview)
	r.Patch("/reviews/:id", auth, s.updateReview)
	r.Delete("/reviews/:id", auth, s.deleteReview)

	r.Get("/profile", auth, s.getProfile)
	r.Patch("/profile", auth, s.updateProfile)
	r.Get("/profile/stats", auth, s.profileStats)
	r.Patch("/users/:id/profile", auth, admin, s.updateUserPolicy)
}
