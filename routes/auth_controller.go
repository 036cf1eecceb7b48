package routes

import (
	"database/sql"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/credential"
	"github.com/ptarchi/gridforms/httpx"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/model"
	"github.com/ptarchi/gridforms/routes/middlewares"
)

const (
	stateCookie   = "oauth_state"
	sessionCookie = "jwt"
)

// StartAuth hands the frontend the provider authorization URL, with a random
// state pinned in a short-lived cookie.
func StartAuth(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := uuid.NewV4()
		if err != nil {
			httpx.LogInternalError(w, r, "auth.state", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     stateCookie,
			Value:    state.String(),
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		render.JSON(w, r, map[string]any{
			"authUrl": app.Airtable.AuthCodeURL(state.String()),
		})
	}
}

// AuthCallback finishes the authorization-code flow: code for tokens, tokens
// for a profile, then account + credential upsert and a session cookie.
func AuthCallback(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if errParam := q.Get("error"); errParam != "" {
			redirectAuthError(w, r, app, errParam)
			return
		}
		code := q.Get("code")
		if code == "" {
			redirectAuthError(w, r, app, "No authorization code received")
			return
		}
		state, err := r.Cookie(stateCookie)
		if err != nil || state.Value == "" || q.Get("state") != state.Value {
			redirectAuthError(w, r, app, "Invalid state parameter")
			return
		}

		pair, err := app.Airtable.ExchangeCode(r.Context(), code)
		if err != nil {
			log.Errorf("auth.exchange_code: %s", err)
			redirectAuthError(w, r, app, err.Error())
			return
		}

		profile, err := app.Airtable.WhoAmI(r.Context(), pair.AccessToken)
		if err != nil {
			log.Errorf("auth.whoami: %s", err)
			redirectAuthError(w, r, app, "Failed to fetch user profile")
			return
		}

		now := time.Now()
		_, err = app.ExecContext(r.Context(), `
			INSERT INTO account (id, email, name, last_login, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				email = excluded.email,
				name = excluded.name,
				last_login = excluded.last_login,
				updated_at = excluded.updated_at`,
			profile.ID, profile.Email, profile.Name, now, now,
		)
		if err != nil {
			log.Errorf("auth.upsert_account: %s", err)
			redirectAuthError(w, r, app, "Failed to store account")
			return
		}

		var expiresAt *time.Time
		if pair.ExpiresIn > 0 {
			t := now.Add(time.Duration(pair.ExpiresIn) * time.Second)
			expiresAt = &t
		}
		err = app.CredStore.Put(r.Context(), model.Credential{
			AccountID:    profile.ID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    expiresAt,
			UpdatedAt:    now,
		})
		if err != nil {
			log.Errorf("auth.store_credential: %s", err)
			redirectAuthError(w, r, app, "Failed to store credentials")
			return
		}

		claims := map[string]any{"account_id": profile.ID}
		jwtauth.SetIssuedNow(claims)
		jwtauth.SetExpiryIn(claims, app.SessionTTL)
		_, token, err := app.Auth.Encode(claims)
		if err != nil {
			log.Errorf("auth.encode_session: %s", err)
			redirectAuthError(w, r, app, "Failed to open session")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     stateCookie,
			Value:    "",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     sessionCookie,
			Value:    token,
			MaxAge:   int(app.SessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, app.FrontendURL+"?auth=success", http.StatusFound)
	}
}

func redirectAuthError(w http.ResponseWriter, r *http.Request, app app.App, msg string) {
	http.Redirect(w, r, app.FrontendURL+"?auth=error&message="+url.QueryEscape(msg), http.StatusFound)
}

func Logout(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     sessionCookie,
			Value:    "",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		render.JSON(w, r, map[string]any{"success": true})
	}
}

// Disconnect drops the stored credential. Published forms of the account stop
// accepting submissions until it reconnects.
func Disconnect(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := middlewares.AccountID(r)
		err := app.CredStore.Delete(r.Context(), accountID)
		if errors.Is(err, credential.ErrAccountNotFound) {
			httpx.LogNotFound(w, r, "disconnect", accountID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_credential", err)
			return
		}
		render.JSON(w, r, map[string]any{"success": true})
	}
}

func CurrentUser(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := middlewares.AccountID(r)

		account := model.Account{ID: accountID}
		var lastLogin sql.NullTime
		err := app.QueryRowContext(r.Context(), `
			SELECT email, name, last_login
			FROM account
			WHERE id = ?`,
			accountID,
		).Scan(&account.Email, &account.Name, &lastLogin)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, r, "get_user", accountID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_account", err)
			return
		}
		account.LastLogin = lastLogin.Time

		render.JSON(w, r, account)
	}
}
