package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agentx/internal/apperr"
	"agentx/internal/xclient"
)

// LinkedAccount is an X account connected to a local user. Tokens are
// stored as given.
type LinkedAccount struct {
	UserID   string
	XUserID  string
	Username string
	xclient.Credentials
}

// LinkAccount inserts or replaces the account linked to a.UserID.
func (d *DB) LinkAccount(ctx context.Context, a LinkedAccount) error {
	if a.UserID == "" || a.AccessToken == "" {
		return apperr.Validation("account", "user id and access token are required")
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO linked_accounts(user_id, x_user_id, username, access_token, refresh_token, expires_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET x_user_id=excluded.x_user_id, username=excluded.username,
		access_token=excluded.access_token, refresh_token=excluded.refresh_token,
		expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		a.UserID, a.XUserID, a.Username, a.AccessToken, a.RefreshToken, millis(a.ExpiresAt), d.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("link account %s: %w", a.UserID, err)
	}
	return nil
}

// Account returns the account linked to userID.
func (d *DB) Account(ctx context.Context, userID string) (LinkedAccount, error) {
	var a LinkedAccount
	var xid, name, refresh sql.NullString
	var expires sql.NullInt64
	err := d.sql.QueryRowContext(ctx, `SELECT user_id, x_user_id, username, access_token, refresh_token, expires_at
		FROM linked_accounts WHERE user_id=?`, userID).Scan(&a.UserID, &xid, &name, &a.AccessToken, &refresh, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkedAccount{}, apperr.New(apperr.KindNotFound, "No linked X account for user %s", userID)
	}
	if err != nil {
		return LinkedAccount{}, fmt.Errorf("load account %s: %w", userID, err)
	}
	a.XUserID, a.Username, a.RefreshToken = xid.String, name.String, refresh.String
	a.ExpiresAt = fromMillis(expires)
	return a, nil
}

// UnlinkAccount forgets userID's account.
func (d *DB) UnlinkAccount(ctx context.Context, userID string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM linked_accounts WHERE user_id=?`, userID)
	return err
}

// DecryptedTokens implements xclient.CredentialSupplier.
func (d *DB) DecryptedTokens(ctx context.Context, userID string) (xclient.Credentials, error) {
	a, err := d.Account(ctx, userID)
	if err != nil {
		return xclient.Credentials{}, err
	}
	return a.Credentials, nil
}

var _ xclient.CredentialSupplier = (*DB)(nil)
