package app

import (
	"database/sql"

	"github.com/go-chi/jwtauth"
	"github.com/ptarchi/gridforms/airtable"
	"github.com/ptarchi/gridforms/config"
	"github.com/ptarchi/gridforms/credential"
	"github.com/ptarchi/gridforms/fill"
)

type App struct {
	*sql.DB
	config.Config
	Airtable    *airtable.Client
	CredStore   *credential.Store
	Credentials *credential.Manager
	Sessions    *fill.Store
	Auth        *jwtauth.JWTAuth
}
