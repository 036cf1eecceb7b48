// Package credential keeps the persisted access/refresh token pair of each
// connected account valid across the lifetime of its published forms.
package credential

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/model"
)

// ErrAccountNotFound is returned when no credential exists for an account.
var ErrAccountNotFound = errors.New("account not found")

// Store persists one credential row per connected account.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db}
}

func (s *Store) Get(ctx context.Context, accountID string) (cred model.Credential, err error) {
	cred.AccountID = accountID
	err = s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at, updated_at
		FROM credential
		WHERE account_id = ?`,
		accountID,
	).Scan(&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrAccountNotFound
	}
	return
}

// Put replaces the whole credential record in a single upsert, so a reader
// racing a refresh only ever observes the previous or the new record.
func (s *Store) Put(ctx context.Context, cred model.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credential (account_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		cred.AccountID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.ExpiresAt,
		cred.UpdatedAt,
	)
	return errors.Wrap(err, "credential.put")
}

// Delete removes the credential on account disconnect.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credential WHERE account_id = ?`, accountID)
	if err != nil {
		return errors.Wrap(err, "credential.delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
