package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdimtricp/pairjudge/internal/session"
)

func NewRouter(app *App, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/groups", app.ListGroupsHandler)
	r.Post("/register", app.RegisterHandler)
	r.Post("/sessions", app.RestoreSessionHandler)
	r.Get("/items/{id}/image", app.ItemImageHandler)

	r.Group(func(r chi.Router) {
		r.Use(app.requireSession)

		r.Get("/preferences/next", app.NextPreferenceHandler)
		r.Post("/preferences", app.ClassifyItemHandler)
		r.Get("/pairs/next", app.NextPairHandler)
		r.Post("/judgments", app.SubmitJudgmentHandler)
		r.Get("/comparisons/{id}", app.ComparisonHandler)
		r.Get("/cycle", app.CycleHandler)
	})

	return r
}

type sessionKey struct{}

// requireSession resolves the session token header. Handlers below it may
// mutate the session's state and are responsible for saving it.
func (app *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(SessionHeader)
		if token == "" {
			app.writeError(w, r, session.ErrNotFound)
			return
		}
		sess, err := app.Sessions.Get(r.Context(), token)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
