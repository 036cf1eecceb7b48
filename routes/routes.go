package routes

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/metrics"
	"github.com/ptarchi/gridforms/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Get("/health", Health)
	root.Method("GET", "/metrics", metrics.Handler())

	root.Route("/auth", func(r chi.Router) {
		r.Get("/airtable", StartAuth(app))
		r.Get("/callback", AuthCallback(app))
		r.Post("/logout", Logout(app))
		r.With(middlewares.Session(app.Auth)).Post("/disconnect", Disconnect(app))
	})

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// public: form filling does not require a session
	api.Get("/forms/{id}", PublicGetForm(app))
	api.Post("/forms/{id}/fill", OpenFill(app))
	api.Get("/fill/{sessionID}", GetFill(app))
	api.Patch("/fill/{sessionID}", UpdateFill(app))
	api.Post("/forms/{id}/submit", SubmitForm(app))

	// owner endpoints
	api.Group(func(r chi.Router) {
		r.Use(middlewares.Session(app.Auth))

		r.Get("/user", CurrentUser(app))
		r.Get("/bases", ListBases(app))
		r.Get("/bases/{baseID}/schema", BaseSchema(app))

		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Put("/forms/{id}", UpdateForm(app))
		r.Delete("/forms/{id}", DeleteForm(app))
		r.Get("/forms/{id}/submissions", ListSubmissions(app))
	})

	return api
}

func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "OK"})
}
