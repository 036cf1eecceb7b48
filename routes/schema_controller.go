package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/airtable"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/credential"
	"github.com/ptarchi/gridforms/httpx"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/routes/middlewares"
)

// validToken resolves a currently-valid access token for the account,
// reporting lifecycle failures on the response. Returns false when a
// response has already been written.
func validToken(w http.ResponseWriter, r *http.Request, app app.App, accountID string) (string, bool) {
	token, err := app.Credentials.ValidToken(r.Context(), accountID)
	if err == nil {
		return token, true
	}

	var refreshErr *credential.RefreshError
	switch {
	case errors.Is(err, credential.ErrAccountNotFound):
		httpx.LogNotFound(w, r, "credential.lookup", accountID)
	case errors.As(err, &refreshErr):
		httpx.LogStatusMsg(w, r, http.StatusBadGateway, log.WarnLevel, "credential.refresh", "%s", refreshErr.Error())
	default:
		httpx.LogInternalError(w, r, "credential.token", err)
	}
	return "", false
}

// remoteError reports an upstream API failure, passing the remote status and
// message through untouched.
func remoteError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var remote *airtable.RemoteError
	if errors.As(err, &remote) {
		httpx.LogStatusMsg(w, r, remote.Status, log.WarnLevel, code, "%s", remote.Message)
		return
	}
	httpx.LogInternalError(w, r, code, err)
}

func ListBases(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := validToken(w, r, app, middlewares.AccountID(r))
		if !ok {
			return
		}

		bases, err := app.Airtable.ListBases(r.Context(), token)
		if err != nil {
			remoteError(w, r, "airtable.list_bases", err)
			return
		}

		render.JSON(w, r, map[string]any{"bases": bases})
	}
}

func BaseSchema(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := validToken(w, r, app, middlewares.AccountID(r))
		if !ok {
			return
		}

		tables, err := app.Airtable.BaseSchema(r.Context(), token, chi.URLParam(r, "baseID"))
		if err != nil {
			remoteError(w, r, "airtable.base_schema", err)
			return
		}

		render.JSON(w, r, map[string]any{"tables": tables})
	}
}
