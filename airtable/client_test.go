package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		HTTP:         server.Client(),
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3001/auth/callback",
		AuthURL:      server.URL + "/oauth2/v1/authorize",
		TokenURL:     server.URL + "/oauth2/v1/token",
		APIURL:       server.URL + "/v0",
	}
}

func TestExchangeRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth2/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-refresh-token", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	pair, err := testClient(server).ExchangeRefreshToken(context.Background(), "the-refresh-token")

	require.NoError(t, err)
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "new-refresh", pair.RefreshToken)
	assert.Equal(t, 3600, pair.ExpiresIn)
}

func TestExchangeRefreshToken_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Refresh token revoked",
		})
	}))
	defer server.Close()

	_, err := testClient(server).ExchangeRefreshToken(context.Background(), "revoked")

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.Status)
	assert.Equal(t, "Refresh token revoked", remote.Message)
}

func TestExchangeRefreshToken_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	}))
	defer server.Close()

	_, err := testClient(server).ExchangeRefreshToken(context.Background(), "whatever")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestCreateRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/appBase/tblTable", r.URL.Path)
		assert.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))

		var body struct {
			Fields map[string]any `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"fldName": "Ada"}, body.Fields)

		json.NewEncoder(w).Encode(map[string]any{"id": "recNew"})
	}))
	defer server.Close()

	recordID, err := testClient(server).CreateRecord(context.Background(),
		"the-token", "appBase", "tblTable", map[string]any{"fldName": "Ada"})

	require.NoError(t, err)
	assert.Equal(t, "recNew", recordID)
}

func TestCreateRecord_RejectionSurfacesMessageVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "INVALID_VALUE_FOR_COLUMN",
				"message": `Field "fldAge" cannot accept the provided value`,
			},
		})
	}))
	defer server.Close()

	_, err := testClient(server).CreateRecord(context.Background(),
		"the-token", "appBase", "tblTable", map[string]any{"fldAge": "not a number"})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnprocessableEntity, remote.Status)
	assert.Equal(t, `Field "fldAge" cannot accept the provided value`, remote.Message)
}

func TestWhoAmI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/meta/whoami", r.URL.Path)
		assert.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "usr123",
			"email": "ada@example.com",
			"name":  "Ada",
		})
	}))
	defer server.Close()

	profile, err := testClient(server).WhoAmI(context.Background(), "the-token")

	require.NoError(t, err)
	assert.Equal(t, Profile{ID: "usr123", Email: "ada@example.com", Name: "Ada"}, profile)
}

func TestAuthCodeURL(t *testing.T) {
	client := &Client{
		ClientID:    "client-id",
		RedirectURI: "http://localhost:3001/auth/callback",
		AuthURL:     "https://airtable.com/oauth2/v1/authorize",
	}

	authURL := client.AuthCodeURL("the-state")

	assert.Contains(t, authURL, "https://airtable.com/oauth2/v1/authorize?")
	assert.Contains(t, authURL, "client_id=client-id")
	assert.Contains(t, authURL, "state=the-state")
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "scope=data.records%3Aread+data.records%3Awrite+schema.bases%3Aread")
}
