// Package httpapi exposes the persisted schedule and feed documents over a
// read-only HTTP surface. The downstream client polls these instead of reading
// the data directory directly.
package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"anischedule/internal/store"
)

const defaultRequestTimeout = 30 * time.Second

// documentRoutes is the allowlist of servable files, keyed by URL path.
// Anything outside it is a 404, never a filesystem probe.
func documentRoutes() map[string]string {
	docs := map[string]string{"/changes.txt": "changes.txt"}
	for _, name := range []string{
		"dub-schedule", "sub-schedule",
		"dub-episode-feed", "sub-episode-feed", "hentai-episode-feed",
	} {
		docs["/raw/"+name+".json"] = filepath.Join("raw", name+".json")
		docs["/readable/"+name+"-readable.json"] = filepath.Join("readable", name+"-readable.json")
	}
	return docs
}

type Server struct {
	logger zerolog.Logger
	store  *store.Store
}

func NewServer(logger zerolog.Logger, st *store.Store) *Server {
	return &Server{logger: logger, store: st}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Get("/api/v1/health", s.handleHealth)
	for urlPath, rel := range documentRoutes() {
		r.Get(urlPath, s.handleDocument(rel))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDocument(rel string) http.HandlerFunc {
	path := filepath.Join(s.store.Dir(), rel)
	contentType := "application/json; charset=utf-8"
	if filepath.Ext(rel) == ".txt" {
		contentType = "text/plain; charset=utf-8"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				writeError(w, http.StatusNotFound, "document not generated yet")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
