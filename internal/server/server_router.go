package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func buildRouter(s *stateStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loadViewer)
	r.NotFound(s.notFound)

	// Health/static
	r.Get("/healthz", healthzHandler)
	r.Get("/ui/app.js", uiAssetHandler("application/javascript; charset=utf-8", appJS))
	r.Get("/ui/app.css", uiAssetHandler("text/css; charset=utf-8", appCSS))

	// Auth
	r.Get("/auth/login", s.loginPageHandler)
	r.Post("/auth/login", s.loginHandler)
	r.Get("/auth/logout", s.logoutHandler)

	r.Group(func(r chi.Router) {
		r.Use(requireViewer)

		r.Get("/auth/csrf", s.csrfHandler)

		// Pages
		r.Get("/", s.indexHandler)
		r.Get("/post/{slug}", s.postHandler)
		r.Post("/post/{slug}/comment", s.addCommentHandler)
		r.Get("/media/*", s.mediaHandler)

		// Terminal sessions
		r.Get("/script/stream", s.scriptStreamHandler)
		r.Get("/script/ws", s.scriptWSHandler)
		r.Post("/script/input", s.scriptInputHandler)
		r.Post("/script/keepalive", s.scriptKeepaliveHandler)
		r.Post("/script/stop", s.scriptStopHandler)
		r.Get("/widget/stream", s.widgetStreamHandler)
		r.Post("/widget/release", s.widgetReleaseHandler)
	})

	return r
}

func uiAssetHandler(contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write([]byte(body))
	}
}
