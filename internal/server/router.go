// Package server implements the HTTP server and routing logic.
package server

import (
	"io"
	"io/fs"
	"net/http"
	"path"

	"github.com/maruel/pantry/internal/server/handlers"
	"github.com/maruel/pantry/internal/server/ratelimit"
)

// Config holds the router configuration.
type Config struct {
	handlers.Config

	GoogleClientID     string
	GoogleClientSecret string
	// Web, when set, is served at / with fallback to index.html.
	Web fs.FS
}

// NewRouter creates and configures the HTTP router.
// Serves API endpoints at /api/* and the optional web UI at /.
func NewRouter(svc *handlers.Services, cfg *Config, limiters *ratelimit.Limiters) http.Handler {
	mux := &http.ServeMux{}
	hc := &cfg.Config

	authh := handlers.NewAuthHandler(svc, hc)
	ih := handlers.NewItemHandler(svc, hc)
	rh := handlers.NewRecipeHandler(svc, hc)

	// Health check
	hh := handlers.NewHealthHandler(cfg.Version)
	mux.Handle("GET /api/health", Wrap(hh.Health, hc, limiters))

	// Auth endpoints
	mux.Handle("GET /api/auth/me", WrapAuth(authh.GetMe, svc, hc, limiters))
	mux.Handle("POST /api/auth/logout", WrapAuth(authh.Logout, svc, hc, limiters))
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		oh := handlers.NewOAuthHandler(authh, svc, hc, cfg.GoogleClientID, cfg.GoogleClientSecret)
		mux.Handle("GET /api/auth/oauth/{provider}", WrapRaw(oh.LoginRedirect, limiters))
		mux.Handle("GET /api/auth/oauth/{provider}/callback", WrapRaw(oh.Callback, limiters))
	}

	// Item endpoints
	mux.Handle("GET /api/items", WrapAuth(ih.ListItems, svc, hc, limiters))
	mux.Handle("POST /api/items", WrapAuth(ih.AddItem, svc, hc, limiters))
	mux.Handle("GET /api/items/history", WrapAuth(ih.History, svc, hc, limiters))
	mux.Handle("POST /api/items/{name}/increment", WrapAuth(ih.IncrementItem, svc, hc, limiters))
	mux.Handle("POST /api/items/{name}/decrement", WrapAuth(ih.DecrementItem, svc, hc, limiters))

	// Recipe suggestions
	mux.Handle("POST /api/recipes", WrapAuth(rh.Suggest, svc, hc, limiters))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if cfg.Web != nil {
		mux.Handle("/", NewSPAHandler(cfg.Web))
	}
	return mux
}

// SPAHandler serves a single-page application with fallback to index.html.
type SPAHandler struct {
	fsys       fs.FS
	fileServer http.Handler
}

// NewSPAHandler creates a handler for the web UI rooted at fsys.
func NewSPAHandler(fsys fs.FS) *SPAHandler {
	return &SPAHandler{fsys: fsys, fileServer: http.FileServer(http.FS(fsys))}
}

// ServeHTTP implements http.Handler for SPA routing.
func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean(r.URL.Path)[1:]
	if name != "" {
		if st, err := fs.Stat(h.fsys, name); err == nil && !st.IsDir() {
			if path.Ext(name) != "" {
				w.Header().Set("Cache-Control", "public, max-age=3600")
			}
			h.fileServer.ServeHTTP(w, r)
			return
		}
	}

	// Unknown paths are client-side routes.
	indexFile, err := h.fsys.Open("index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = indexFile.Close() }()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = io.Copy(w, indexFile)
}
