// Package server exposes the pipeline and guide over HTTP. The routes
// are a thin boundary; all processing behavior lives in the pipeline.
package server

import (
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/guide"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/lifecycle"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/pipeline"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/models"
)

// acceptedTypes are the declared MIME types the upload boundary accepts;
// a .heic extension is honored as a fallback signal for mislabeled files.
var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// Server wires the HTTP surface.
type Server struct {
	app   *fiber.App
	cfg   config.ServerConfig
	orch  *pipeline.Orchestrator
	store *lifecycle.Store
	guide *guide.Service
}

// New builds the fiber app and registers routes.
func New(cfg config.ServerConfig, orch *pipeline.Orchestrator, store *lifecycle.Store, guideSvc *guide.Service) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "travelguide",
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	s := &Server{app: app, cfg: cfg, orch: orch, store: store, guide: guideSvc}
	s.routes()
	return s
}

// Listen serves until the context is canceled, then shuts down.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server")
		return s.app.Shutdown()
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	api := s.app.Group("/api/v1")

	// Upload a batch of photos (multipart/form-data, repeated field
	// name: photos). Processing is asynchronous; the response carries
	// the freshly queued lifecycle records.
	api.Post("/photos", func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FORM", "multipart form required")
		}
		files := form.File["photos"]
		if len(files) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one photo is required")
		}

		uploads := make([]models.RawUpload, 0, len(files))
		for _, fh := range files {
			if !accepted(fh) {
				return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE",
					"unsupported file type: "+fh.Filename)
			}
			// Copy the bytes now; the form's buffers do not outlive this
			// handler, while the pipeline runs on after it returns.
			up, err := rawUpload(fh)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR",
					"cannot read uploaded file: "+fh.Filename)
			}
			uploads = append(uploads, up)
		}

		records := s.orch.Enqueue(c.UserContext(), uploads)
		return c.Status(fiber.StatusAccepted).JSON(records)
	})

	api.Get("/photos", func(c *fiber.Ctx) error {
		return c.JSON(s.store.List())
	})

	api.Get("/photos/:id", func(c *fiber.Ctx) error {
		rec, ok := s.store.Get(c.Params("id"))
		if !ok {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "photo not found")
		}
		return c.JSON(rec)
	})

	// Removal is idempotent: deleting an unknown id is still a 204.
	api.Delete("/photos/:id", func(c *fiber.Ctx) error {
		s.orch.Remove(c.Params("id"))
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/chat", func(c *fiber.Ctx) error {
		var req struct {
			Message string `json:"message"`
		}
		if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			return writeError(c, fiber.StatusBadRequest, "MESSAGE_REQUIRED", "message is required")
		}

		msg, err := s.guide.Chat(c.UserContext(), req.Message)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(msg)
	})

	api.Get("/guide", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"places": s.guide.Places()})
	})
}

func accepted(fh *multipart.FileHeader) bool {
	ct := strings.ToLower(strings.TrimSpace(fh.Header.Get("Content-Type")))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if acceptedTypes[ct] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	return ext == ".heic" || ext == ".heif"
}

func rawUpload(fh *multipart.FileHeader) (models.RawUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return models.RawUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.RawUpload{}, err
	}
	return models.NewRawUpload(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"code": code, "message": message},
	})
}
