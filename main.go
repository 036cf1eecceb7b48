package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/ptarchi/gridforms/airtable"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/config"
	"github.com/ptarchi/gridforms/credential"
	"github.com/ptarchi/gridforms/database"
	"github.com/ptarchi/gridforms/fill"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/routes"
)

const fillSessionTTL = 30 * time.Minute

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	client := airtable.New(cfg)
	credStore := credential.NewStore(db)

	app := app.App{
		DB:          db,
		Config:      cfg,
		Airtable:    client,
		CredStore:   credStore,
		Credentials: credential.NewManager(credStore, client),
		Sessions:    fill.NewStore(fillSessionTTL),
		Auth:        jwtauth.New("HS256", []byte(cfg.TokenSecret), nil),
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
