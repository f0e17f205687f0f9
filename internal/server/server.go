// Package server exposes the automation over a small HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/app"
	"github.com/ibeckermayer/tenshi/internal/library"
	"github.com/ibeckermayer/tenshi/internal/reader"
	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

const defaultSleepMs = 5000

// Automation is the part of app.App the API drives.
type Automation interface {
	Trigger(ctx context.Context, req app.TriggerRequest) (*types.TriggerResult, error)
	SaveImage(ctx context.Context, req app.SaveImageRequest) (*types.SaveImageResult, error)
	SaveChapter(ctx context.Context, req app.SaveChapterRequest) (*types.SaveChapterResult, error)
	Images(slug, chapter string) (*types.ChapterImages, error)
	ImagePath(slug, chapter, filename string) (string, error)
	Runs(limit int) ([]store.Run, error)
	Run(id string) (*store.Run, error)
}

var _ Automation = (*app.App)(nil)

// Server serves the automation API.
type Server struct {
	auto    Automation
	timeout time.Duration
	mux     *http.ServeMux
}

// New creates a Server. requestTimeout bounds each automation request.
func New(auto Automation, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Minute
	}
	s := &Server{auto: auto, timeout: requestTimeout, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /trigger", s.handleTrigger)
	s.mux.HandleFunc("GET /save_image", s.handleSaveImage)
	s.mux.HandleFunc("GET /save_chapter", s.handleSaveChapter)
	s.mux.HandleFunc("GET /get_image", s.handleGetImage)
	s.mux.HandleFunc("GET /read", s.handleRead)
	s.mux.HandleFunc("GET /runs", s.handleRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRun)

	return s
}

// Handler returns the API with request logging.
func (s *Server) Handler() http.Handler {
	logger := log.With().Str("component", "server").Logger()

	var h http.Handler = s.mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		lvl := zerolog.InfoLevel
		if status >= 500 {
			lvl = zerolog.ErrorLevel
		}
		hlog.FromRequest(r).WithLevel(lvl).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("elapsed", d).
			Msg("request")
	})(h)
	h = hlog.NewHandler(logger)(h)
	return h
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "server").Str("addr", ln.Addr().String()).Msg("listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Str("component", "server").Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// automationContext detaches the request from client disconnects so a
// keystroke sequence is never cut off halfway, and bounds it by the request
// timeout.
func (s *Server) automationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, ok := required(w, q.Get("url"), "url")
	if !ok {
		return
	}
	sleepMs := defaultSleepMs
	if v := q.Get("sleep"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, "sleep must be a non-negative integer (milliseconds)")
			return
		}
		sleepMs = n
	}

	ctx, cancel := s.automationContext(r)
	defer cancel()

	res, err := s.auto.Trigger(ctx, app.TriggerRequest{
		URL:   target,
		JS:    q.Get("js"),
		Wait:  q.Get("wait"),
		Sleep: time.Duration(sleepMs) * time.Millisecond,
	})
	if err != nil {
		sendAutomationError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chapterURL, ok := required(w, q.Get("chapter_url"), "chapter_url")
	if !ok {
		return
	}
	imageURL, ok := required(w, q.Get("image_url"), "image_url")
	if !ok {
		return
	}

	ctx, cancel := s.automationContext(r)
	defer cancel()

	res, err := s.auto.SaveImage(ctx, app.SaveImageRequest{
		ChapterURL: chapterURL,
		ImageURL:   imageURL,
		Slug:       q.Get("slug"),
	})
	if err != nil {
		sendAutomationError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleSaveChapter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chapterURL, ok := required(w, q.Get("chapter_url"), "chapter_url")
	if !ok {
		return
	}

	ctx, cancel := s.automationContext(r)
	defer cancel()

	res, err := s.auto.SaveChapter(ctx, app.SaveChapterRequest{
		ChapterURL: chapterURL,
		JS:         q.Get("js"),
		Slug:       q.Get("slug"),
	})
	if err != nil {
		sendAutomationError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chapter, ok := required(w, q.Get("chapter"), "chapter")
	if !ok {
		return
	}
	slug, filename := q.Get("slug"), q.Get("filename")

	if filename == "" {
		listing, err := s.auto.Images(slug, chapter)
		if err != nil {
			sendLibraryError(w, err)
			return
		}
		sendJSON(w, http.StatusOK, listing)
		return
	}

	p, err := s.auto.ImagePath(slug, chapter, filename)
	if err != nil {
		sendLibraryError(w, err)
		return
	}
	http.ServeFile(w, r, p)
}

// handleRead shows a saved chapter as one scrolling page.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chapter, ok := required(w, q.Get("chapter"), "chapter")
	if !ok {
		return
	}
	slug := q.Get("slug")

	listing, err := s.auto.Images(slug, chapter)
	if err != nil {
		sendLibraryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reader.Render(w, reader.NewPage(slug, chapter, listing.Images)); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render chapter page")
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.auto.Runs(limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.auto.Run(r.PathValue("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		sendError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, run)
}

func required(w http.ResponseWriter, v, name string) (string, bool) {
	if v == "" {
		sendError(w, http.StatusBadRequest, "missing query parameter: "+name)
		return "", false
	}
	return v, true
}

func sendAutomationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidURL), errors.Is(err, app.ErrInvalidImageURL):
		sendError(w, http.StatusBadRequest, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("automation failed")
		sendError(w, http.StatusInternalServerError, "Automation error: "+err.Error())
	}
}

func sendLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrChapterNotFound):
		sendError(w, http.StatusNotFound, "Chapter folder not found")
	case errors.Is(err, library.ErrImageNotFound):
		sendError(w, http.StatusNotFound, "Image not found")
	case errors.Is(err, library.ErrInvalidName):
		sendError(w, http.StatusBadRequest, err.Error())
	default:
		sendError(w, http.StatusInternalServerError, "Error reading chapter folder: "+err.Error())
	}
}

func sendError(w http.ResponseWriter, status int, detail string) {
	sendJSON(w, status, map[string]string{"detail": detail})
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
