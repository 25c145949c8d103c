package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

const defaultCountry = "India"

// errDefaultChanged reports a concurrent default flip for the same user.
var errDefaultChanged = apperr.New(apperr.CodeConflict, "default address changed concurrently, retry")

// AddressService manages shipping addresses. A user has at most one default
// address; every write that sets a default clears the others in the same
// transaction.
type AddressService struct {
	store *store.Store
}

func NewAddressService(store *store.Store) *AddressService {
	return &AddressService{store: store}
}

type AddressInput struct {
	UserID       int64    `json:"user_id"`
	FullName     string   `json:"full_name"`
	MobileNumber *string  `json:"mobile_number"`
	Pincode      string   `json:"pincode"`
	Line1        string   `json:"line1"`
	Line2        *string  `json:"line2"`
	Landmark     *string  `json:"landmark"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Country      string   `json:"country"`
	IsDefault    bool     `json:"is_default"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
}

func (in *AddressInput) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"full_name", in.FullName},
		{"pincode", in.Pincode},
		{"line1", in.Line1},
		{"city", in.City},
		{"state", in.State},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.New(apperr.CodeValidation, "missing required fields").
			WithDetails(map[string][]string{"missing": missing})
	}
	return nil
}

func (in *AddressInput) apply(a *models.Address) {
	a.FullName = strings.TrimSpace(in.FullName)
	a.MobileNumber = in.MobileNumber
	a.Pincode = strings.TrimSpace(in.Pincode)
	a.Line1 = in.Line1
	a.Line2 = in.Line2
	a.Landmark = in.Landmark
	a.City = in.City
	a.State = in.State
	a.Country = in.Country
	if a.Country == "" {
		a.Country = defaultCountry
	}
	a.IsDefault = in.IsDefault
	a.Lat = in.Lat
	a.Lon = in.Lon
}

func (s *AddressService) CreateAddress(ctx context.Context, in *AddressInput) (*models.Address, error) {
	if in.UserID <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "user_id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	address := &models.Address{UserID: in.UserID}
	in.apply(address)

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if address.IsDefault {
			if err := clearDefaults(ctx, tx, address.UserID); err != nil {
				return err
			}
		}
		if err := tx.CreateAddress(ctx, address); err != nil {
			if store.IsForeignKeyViolation(err) {
				return apperr.New(apperr.CodeNotFound, "user not found")
			}
			if store.IsUniqueViolation(err) {
				return errDefaultChanged
			}
			return fmt.Errorf("failed to create address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *AddressService) ListAddresses(ctx context.Context, userID int64) ([]models.Address, error) {
	addresses, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// GetAddress loads an address. callerID, when set, must own it.
func (s *AddressService) GetAddress(ctx context.Context, id int64, callerID *int64) (*models.Address, error) {
	return s.ownedAddress(ctx, s.store, id, callerID)
}

func (s *AddressService) UpdateAddress(ctx context.Context, id int64, in *AddressInput, callerID *int64) (*models.Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var address *models.Address
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		address, err = s.ownedAddress(ctx, tx, id, callerID)
		if err != nil {
			return err
		}
		in.apply(address)

		if address.IsDefault {
			if err := clearDefaults(ctx, tx, address.UserID); err != nil {
				return err
			}
		}
		if err := tx.UpdateAddress(ctx, address); err != nil {
			return addressWriteError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *AddressService) DeleteAddress(ctx context.Context, id int64, callerID *int64) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := s.ownedAddress(ctx, tx, id, callerID); err != nil {
			return err
		}
		if err := tx.DeleteAddress(ctx, id); err != nil {
			return addressWriteError(err)
		}
		return nil
	})
}

// SetDefault makes the address its owner's only default.
func (s *AddressService) SetDefault(ctx context.Context, id int64, callerID *int64) (*models.Address, error) {
	var address *models.Address
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		address, err = s.ownedAddress(ctx, tx, id, callerID)
		if err != nil {
			return err
		}
		if err := clearDefaults(ctx, tx, address.UserID); err != nil {
			return err
		}
		if err := tx.SetDefaultAddress(ctx, id); err != nil {
			return addressWriteError(err)
		}
		address.IsDefault = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *AddressService) ownedAddress(ctx context.Context, st *store.Store, id int64, callerID *int64) (*models.Address, error) {
	address, err := st.GetAddress(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "address not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	if callerID != nil && address.UserID != *callerID {
		return nil, apperr.New(apperr.CodeForbidden, "address belongs to another user")
	}
	return address, nil
}

// clearDefaults locks the user's addresses, then unsets their default flag.
func clearDefaults(ctx context.Context, tx *store.Store, userID int64) error {
	if err := tx.LockUserAddresses(ctx, userID); err != nil {
		return fmt.Errorf("failed to lock addresses: %w", err)
	}
	if err := tx.ClearDefaultAddresses(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear default addresses: %w", err)
	}
	return nil
}

func addressWriteError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "address not found")
	}
	if store.IsUniqueViolation(err) {
		return errDefaultChanged
	}
	return fmt.Errorf("failed to write address: %w", err)
}
