package credential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/metrics"
	"github.com/ptarchi/gridforms/model"
)

// refreshSkew is how close to expiry a token is still trusted.
const refreshSkew = 60 * time.Second

// TokenPair is the outcome of a token-endpoint exchange. RefreshToken is
// empty when the provider did not rotate it; ExpiresIn is 0 when no lifetime
// was reported.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// TokenExchanger trades a refresh token for a new token pair at the remote
// token endpoint.
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

// Storage is the slice of Store the manager needs.
type Storage interface {
	Get(ctx context.Context, accountID string) (model.Credential, error)
	Put(ctx context.Context, cred model.Credential) error
}

// RefreshError marks a refresh attempt rejected by the token endpoint.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return "token refresh rejected: " + e.Cause.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// Manager hands out currently-valid access tokens, refreshing and persisting
// transparently. Concurrent calls for the same account may both refresh; the
// single-upsert persistence makes that a redundant exchange, not corruption.
type Manager struct {
	store    Storage
	exchange TokenExchanger
	now      func() time.Time
}

func NewManager(store Storage, exchange TokenExchanger) *Manager {
	return &Manager{store, exchange, time.Now}
}

// ValidToken returns an access token for the account that is good for at
// least the refresh skew. A token with no recorded expiry is refreshed on
// every access: without a lifetime there is no way to trust it.
func (m *Manager) ValidToken(ctx context.Context, accountID string) (string, error) {
	cred, err := m.store.Get(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !needsRefresh(cred, m.now()) {
		return cred.AccessToken, nil
	}

	pair, err := m.exchange.ExchangeRefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
		return "", &RefreshError{Cause: err}
	}

	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		// provider did not rotate: keep the previous one
		refreshToken = cred.RefreshToken
	}
	var expiresAt *time.Time
	if pair.ExpiresIn > 0 {
		t := m.now().Add(time.Duration(pair.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	cred = model.Credential{
		AccountID:    accountID,
		AccessToken:  pair.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UpdatedAt:    m.now(),
	}
	if err := m.store.Put(ctx, cred); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", errors.Wrap(err, "persist refreshed credential")
	}

	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	log.Debugf("credential.refresh: account %s", accountID)
	return cred.AccessToken, nil
}

func needsRefresh(cred model.Credential, now time.Time) bool {
	if cred.ExpiresAt == nil {
		return true
	}
	return cred.ExpiresAt.Sub(now) < refreshSkew
}
