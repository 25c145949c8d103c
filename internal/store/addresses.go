package store

import (
	"context"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const addressColumns = `id, user_id, full_name, mobile_number, pincode, line1, line2, landmark, city, state,
	country, is_default, lat, lon, created_at, updated_at`

func (s *Store) CreateAddress(ctx context.Context, a *models.Address) error {
	query := `
		INSERT INTO user_addresses
			(user_id, full_name, mobile_number, pincode, line1, line2, landmark, city, state, country, is_default, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, a, query,
		a.UserID, a.FullName, a.MobileNumber, a.Pincode, a.Line1, a.Line2, a.Landmark,
		a.City, a.State, a.Country, a.IsDefault, a.Lat, a.Lon)
}

func (s *Store) ListAddresses(ctx context.Context, userID int64) ([]models.Address, error) {
	addresses := []models.Address{}
	err := s.selectAll(ctx, &addresses,
		"SELECT "+addressColumns+" FROM user_addresses WHERE user_id = $1 ORDER BY is_default DESC, id", userID)
	return addresses, err
}

func (s *Store) GetAddress(ctx context.Context, id int64) (*models.Address, error) {
	var a models.Address
	if err := s.get(ctx, &a, "SELECT "+addressColumns+" FROM user_addresses WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAddress rewrites the mutable fields of an address. Ownership is not changed.
func (s *Store) UpdateAddress(ctx context.Context, a *models.Address) error {
	return s.get(ctx, a, `
		UPDATE user_addresses SET
			full_name = $1, mobile_number = $2, pincode = $3, line1 = $4, line2 = $5, landmark = $6,
			city = $7, state = $8, country = $9, is_default = $10, lat = $11, lon = $12, updated_at = NOW()
		WHERE id = $13
		RETURNING `+addressColumns,
		a.FullName, a.MobileNumber, a.Pincode, a.Line1, a.Line2, a.Landmark,
		a.City, a.State, a.Country, a.IsDefault, a.Lat, a.Lon, a.ID)
}

func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	return s.execAffected(ctx, "DELETE FROM user_addresses WHERE id = $1", id)
}

// LockUserAddresses row-locks every address of the user until the
// transaction ends, serialising default-flag changes for that user.
func (s *Store) LockUserAddresses(ctx context.Context, userID int64) error {
	var ids []int64
	return s.selectAll(ctx, &ids, "SELECT id FROM user_addresses WHERE user_id = $1 FOR UPDATE", userID)
}

// ClearDefaultAddresses unsets the default flag on every address of the user.
func (s *Store) ClearDefaultAddresses(ctx context.Context, userID int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE user_addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default", userID)
	return err
}

func (s *Store) SetDefaultAddress(ctx context.Context, id int64) error {
	return s.execAffected(ctx,
		"UPDATE user_addresses SET is_default = TRUE, updated_at = NOW() WHERE id = $1", id)
}
