// Package airtable is the client for the remote collaborators: the OAuth
// token endpoint, the metadata API and the record-write API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/config"
	"github.com/ptarchi/gridforms/credential"
)

const (
	defaultAuthURL  = "https://airtable.com/oauth2/v1/authorize"
	defaultTokenURL = "https://airtable.com/oauth2/v1/token"
	defaultAPIURL   = "https://api.airtable.com/v0"

	userAgent = "gridforms/1.0"
)

var oauthScopes = []string{
	"data.records:read",
	"data.records:write",
	"schema.bases:read",
}

// RemoteError carries an upstream rejection verbatim: Message is surfaced to
// the caller unmodified.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

type Client struct {
	HTTP         *http.Client
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

func New(cfg config.Config) *Client {
	return &Client{
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		AuthURL:      defaultAuthURL,
		TokenURL:     defaultTokenURL,
		APIURL:       defaultAPIURL,
	}
}

// AuthCodeURL builds the authorization URL the user is sent to.
func (c *Client) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {c.ClientID},
		"redirect_uri":  {c.RedirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(oauthScopes, " ")},
		"state":         {state},
	}
	return c.AuthURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for the initial token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (credential.TokenPair, error) {
	return c.token(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.RedirectURI},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	})
}

// ExchangeRefreshToken implements credential.TokenExchanger.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (credential.TokenPair, error) {
	return c.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	})
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) token(ctx context.Context, body url.Values) (pair credential.TokenPair, err error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.TokenURL, strings.NewReader(body.Encode()))
	if err != nil {
		return pair, errors.Wrap(err, "token.request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return pair, errors.Wrap(err, "token.exchange")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pair, errors.Wrap(err, "token.read_body")
	}

	var tokens tokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return pair, errors.Errorf("invalid JSON from token endpoint: %s", raw)
	}
	if resp.StatusCode >= 300 || tokens.AccessToken == "" {
		msg := tokens.ErrorDescription
		if msg == "" {
			msg = tokens.Error
		}
		if msg == "" {
			msg = "HTTP " + resp.Status + " from token endpoint"
		}
		return pair, &RemoteError{Status: resp.StatusCode, Message: msg}
	}

	return credential.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}, nil
}

type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c *Client) WhoAmI(ctx context.Context, accessToken string) (profile Profile, err error) {
	err = c.getJSON(ctx, accessToken, "/meta/whoami", &profile)
	return
}

type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

func (c *Client) ListBases(ctx context.Context, accessToken string) ([]Base, error) {
	var data struct {
		Bases []Base `json:"bases"`
	}
	err := c.getJSON(ctx, accessToken, "/meta/bases", &data)
	return data.Bases, err
}

type TableField struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
}

type Table struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Fields []TableField `json:"fields"`
}

func (c *Client) BaseSchema(ctx context.Context, accessToken, baseID string) ([]Table, error) {
	var data struct {
		Tables []Table `json:"tables"`
	}
	err := c.getJSON(ctx, accessToken, "/meta/bases/"+url.PathEscape(baseID)+"/tables", &data)
	return data.Tables, err
}

// CreateRecord writes one record and returns its remote id. A rejection is
// returned as a RemoteError with the upstream message untouched.
func (c *Client) CreateRecord(ctx context.Context, accessToken, baseID, tableID string, fields map[string]any) (string, error) {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", errors.Wrap(err, "record.marshal")
	}

	target := c.APIURL + "/" + url.PathEscape(baseID) + "/" + url.PathEscape(tableID)
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "record.request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "record.create")
	}
	defer resp.Body.Close()

	var data struct {
		ID    string `json:"id"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&data)

	if resp.StatusCode >= 300 {
		msg := data.Error.Message
		if msg == "" {
			msg = "Failed to create record"
		}
		return "", &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", errors.Wrap(decodeErr, "record.parse_response")
	}
	return data.ID, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.APIURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "api.request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "api.get")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &RemoteError{Status: resp.StatusCode, Message: "HTTP " + resp.Status + ": " + string(raw)}
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "api.parse_response")
}
