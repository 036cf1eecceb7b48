package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/ptarchi/gridforms/airtable"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/config"
	"github.com/ptarchi/gridforms/credential"
	"github.com/ptarchi/gridforms/database"
	"github.com/ptarchi/gridforms/fill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFormID = "form-1"

// newTestApp builds a wired router over a throwaway database, one connected
// account and one published form (text field A, required text field B shown
// when A equals "yes"). remote stands in for the Airtable API.
func newTestApp(t *testing.T, remote http.Handler) (app.App, http.Handler) {
	t.Helper()

	remoteServer := httptest.NewServer(remote)
	t.Cleanup(remoteServer.Close)

	db, err := database.Open(config.Config{DBUrl: filepath.Join(t.TempDir(), "test.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now()
	expiresAt := now.Add(time.Hour)
	_, err = db.Exec(`INSERT INTO account (id, email, name, last_login, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"usr-1", "owner@example.com", "Owner", now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO credential (account_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		"usr-1", "valid-token", "refresh-token", expiresAt, now)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO form (id, account_id, base_id, table_id, title, description, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		testFormID, "usr-1", "appBase", "tblTable", "Test form", "", now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO form_field (id, form_id, position, source_field_id, type, label, required, options)
		VALUES
			('a', ?, 0, 'fld_a', 'singleLineText', 'A', FALSE, ''),
			('b', ?, 1, 'fld_b', 'singleLineText', 'B', TRUE, '')`,
		testFormID, testFormID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO form_rule (id, form_id, position, trigger_field_id, operator, compare_value, action, target_field_id)
		VALUES ('r1', ?, 0, 'a', 'equals', 'yes', 'show', 'b')`,
		testFormID)
	require.NoError(t, err)

	client := &airtable.Client{
		HTTP:     remoteServer.Client(),
		TokenURL: remoteServer.URL + "/oauth2/v1/token",
		APIURL:   remoteServer.URL + "/v0",
	}
	credStore := credential.NewStore(db)

	a := app.App{
		DB:          db,
		Config:      config.Config{FrontendURL: "http://localhost:3000"},
		Airtable:    client,
		CredStore:   credStore,
		Credentials: credential.NewManager(credStore, client),
		Sessions:    fill.NewStore(time.Hour),
		Auth:        jwtauth.New("HS256", []byte("test-secret"), nil),
	}
	return a, Wire(a)
}

func postJSON(t *testing.T, handler http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:52000"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestSubmitForm(t *testing.T) {
	var remoteBody struct {
		Fields map[string]any `json:"fields"`
	}
	remote := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/appBase/tblTable", r.URL.Path)
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&remoteBody))
		json.NewEncoder(w).Encode(map[string]any{"id": "recNew"})
	})
	a, handler := newTestApp(t, remote)

	// A="no" hides required B: submittable, and B's stale answer must not
	// reach the remote table
	resp := postJSON(t, handler, "/api/forms/"+testFormID+"/submit",
		`{"values":{"a":"no","b":"stale"}}`)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var result struct {
		Success  bool   `json:"success"`
		RecordID string `json:"recordId"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "recNew", result.RecordID)

	assert.Equal(t, map[string]any{"fld_a": "no"}, remoteBody.Fields)

	var count int
	var ip string
	require.NoError(t, a.QueryRow(`SELECT COUNT(*), MAX(ip) FROM submission WHERE form_id = ?`, testFormID).
		Scan(&count, &ip))
	assert.Equal(t, 1, count)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestSubmitForm_ValidationFailure(t *testing.T) {
	remoteCalled := false
	remote := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalled = true
	})
	a, handler := newTestApp(t, remote)

	// A="yes" reveals required B, left empty
	resp := postJSON(t, handler, "/api/forms/"+testFormID+"/submit",
		`{"values":{"a":"yes"}}`)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	var result struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "This field is required", result.Fields["b"])

	assert.False(t, remoteCalled, "validation failure must not reach the remote API")

	var count int
	require.NoError(t, a.QueryRow(`SELECT COUNT(*) FROM submission`).Scan(&count))
	assert.Zero(t, count)
}

func TestSubmitForm_RemoteRejection(t *testing.T) {
	remote := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Unknown field name: fld_a"},
		})
	})
	a, handler := newTestApp(t, remote)

	resp := postJSON(t, handler, "/api/forms/"+testFormID+"/submit",
		`{"values":{"a":"no"}}`)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "Unknown field name: fld_a",
		"upstream message must be surfaced verbatim")

	var count int
	require.NoError(t, a.QueryRow(`SELECT COUNT(*) FROM submission`).Scan(&count))
	assert.Zero(t, count, "no submission row on remote rejection")
}

func TestSubmitForm_UnknownForm(t *testing.T) {
	_, handler := newTestApp(t, http.NotFoundHandler())

	resp := postJSON(t, handler, "/api/forms/no-such-form/submit", `{"values":{"a":"no"}}`)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPublicGetForm_StripsOwner(t *testing.T) {
	_, handler := newTestApp(t, http.NotFoundHandler())

	req := httptest.NewRequest("GET", "/api/forms/"+testFormID, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &doc))
	assert.NotContains(t, doc, "accountId")
	assert.Len(t, doc["fields"], 2)
	assert.Len(t, doc["rules"], 1)
}

func TestFillSessionFlow(t *testing.T) {
	remote := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "recNew"})
	})
	a, handler := newTestApp(t, remote)

	resp := postJSON(t, handler, "/api/forms/"+testFormID+"/fill", "")
	require.Equal(t, http.StatusCreated, resp.Code)

	var state struct {
		SessionID  string            `json:"sessionId"`
		Visibility []string          `json:"visibility"`
		Errors     map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &state))
	require.NotEmpty(t, state.SessionID)
	assert.Equal(t, []string{"a", "b"}, state.Visibility)

	req := httptest.NewRequest("PATCH", "/api/fill/"+state.SessionID,
		strings.NewReader(`{"fieldId":"a","value":"no"}`))
	patchResp := httptest.NewRecorder()
	handler.ServeHTTP(patchResp, req)
	require.Equal(t, http.StatusOK, patchResp.Code)

	require.NoError(t, json.Unmarshal(patchResp.Body.Bytes(), &state))
	assert.Equal(t, []string{"a"}, state.Visibility, "b should hide after a=no")

	resp = postJSON(t, handler, "/api/forms/"+testFormID+"/submit",
		`{"sessionId":"`+state.SessionID+`"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	_, open := a.Sessions.Get(state.SessionID)
	assert.False(t, open, "session should be dropped after a successful submit")
}
