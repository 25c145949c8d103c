package store

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const accountColumns = `id, name, email, mobile_number, password_hash, is_verified, token, token_expiry,
	otp_code, otp_expiry, created_at`

// Customers and agents live in separate tables with identical columns; the
// kind selects the table. Table names never come from request data.

func (s *Store) accountQuery(kind models.AccountKind, format string) string {
	return fmt.Sprintf(format, kind.Table())
}

func (s *Store) CreateAccount(ctx context.Context, kind models.AccountKind, a *models.Account) error {
	query := s.accountQuery(kind, `
		INSERT INTO %s (name, email, mobile_number, password_hash, is_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`)
	return sqlx.GetContext(ctx, s.q, a, query, a.Name, a.Email, a.MobileNumber, a.PasswordHash, a.IsVerified)
}

func (s *Store) GetAccountByID(ctx context.Context, kind models.AccountKind, id int64) (*models.Account, error) {
	return s.getAccount(ctx, kind, "id = $1", id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, kind models.AccountKind, email string) (*models.Account, error) {
	return s.getAccount(ctx, kind, "LOWER(email) = LOWER($1)", email)
}

func (s *Store) GetAccountByMobile(ctx context.Context, kind models.AccountKind, mobile string) (*models.Account, error) {
	return s.getAccount(ctx, kind, "mobile_number = $1", mobile)
}

// GetAccountByToken returns the account currently holding the session token.
func (s *Store) GetAccountByToken(ctx context.Context, kind models.AccountKind, token string) (*models.Account, error) {
	return s.getAccount(ctx, kind, "token = $1", token)
}

func (s *Store) getAccount(ctx context.Context, kind models.AccountKind, where string, arg any) (*models.Account, error) {
	var a models.Account
	query := s.accountQuery(kind, "SELECT "+accountColumns+" FROM %s WHERE "+where)
	if err := s.get(ctx, &a, query, arg); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAccountToken replaces the stored session token. Only the latest token is valid.
func (s *Store) SetAccountToken(ctx context.Context, kind models.AccountKind, id int64, token string, expiry time.Time) error {
	return s.execAffected(ctx,
		s.accountQuery(kind, "UPDATE %s SET token = $1, token_expiry = $2 WHERE id = $3"), token, expiry, id)
}

func (s *Store) ClearAccountToken(ctx context.Context, kind models.AccountKind, id int64) error {
	return s.execAffected(ctx,
		s.accountQuery(kind, "UPDATE %s SET token = NULL, token_expiry = NULL WHERE id = $1"), id)
}

// SetAccountOTP stores a pending one-time code, replacing any earlier one.
func (s *Store) SetAccountOTP(ctx context.Context, kind models.AccountKind, id int64, code string, expiry time.Time) error {
	return s.execAffected(ctx,
		s.accountQuery(kind, "UPDATE %s SET otp_code = $1, otp_expiry = $2 WHERE id = $3"), code, expiry, id)
}

// ConsumeAccountOTP clears the pending code and marks the account verified.
// It only matches while code is still pending and unexpired at now, so a code
// is redeemed at most once; otherwise ErrNotFound.
func (s *Store) ConsumeAccountOTP(ctx context.Context, kind models.AccountKind, id int64, code string, now time.Time) error {
	return s.execAffected(ctx, s.accountQuery(kind, `
		UPDATE %s SET otp_code = NULL, otp_expiry = NULL, is_verified = TRUE
		WHERE id = $1 AND otp_code = $2 AND otp_expiry > $3`), id, code, now)
}
