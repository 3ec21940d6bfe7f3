// Package account manages a customer's saved shipping addresses.
package account

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

var errAddressNotFound = apperr.NotFound("Address", "")

// AddressInput is the address form sent by the storefront.
type AddressInput struct {
	FullName      string `json:"fullName"`
	Phone         string `json:"phone"`
	StreetAddress string `json:"streetAddress"`
	Barangay      string `json:"barangay"`
	City          string `json:"city"`
	Province      string `json:"province"`
	PostalCode    string `json:"postalCode"`
	IsDefault     *bool  `json:"isDefault"`
}

func (in AddressInput) apply(a *domain.Address) {
	a.FullName = in.FullName
	a.Phone = in.Phone
	a.StreetAddress = in.StreetAddress
	a.Barangay = in.Barangay
	a.City = in.City
	a.Province = in.Province
	a.PostalCode = in.PostalCode
	if in.IsDefault != nil {
		a.IsDefault = *in.IsDefault
	}
}

// Service implements address operations for one user at a time.
type Service struct {
	store store.AddressStore
	log   *zap.Logger
}

// NewService creates an address service.
func NewService(s store.AddressStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log}
}

// List returns the user's addresses, default first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Address, error) {
	out, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch addresses")
	}
	return out, nil
}

// Default returns the user's default address, or the newest one.
func (s *Service) Default(ctx context.Context, userID string) (*domain.Address, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "No address found")
	}
	return &list[0], nil
}

func (s *Service) find(ctx context.Context, userID, id string) (*domain.Address, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, errAddressNotFound
}

// Save updates the user's existing address or creates the first one. New
// addresses are the default unless the input says otherwise.
func (s *Service) Save(ctx context.Context, userID string, in AddressInput) (*domain.Address, error) {
	current, err := s.Default(ctx, userID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	if in.IsDefault == nil {
		def := true
		in.IsDefault = &def
	}
	if current != nil {
		in.apply(current)
		if err := current.Validate(); err != nil {
			return nil, apperr.Invalid(err.Error())
		}
		if err := s.store.UpdateAddress(ctx, current); err != nil {
			return nil, apperr.Internal(err, "Failed to update address")
		}
		return current, nil
	}

	a := &domain.Address{UserID: userID}
	in.apply(a)
	if err := a.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.CreateAddress(ctx, a); err != nil {
		return nil, apperr.Internal(err, "Failed to create address")
	}
	s.log.Debug("address created", zap.String("user", userID), zap.String("address", a.ID))
	return a, nil
}

// Update overwrites one of the user's addresses.
func (s *Service) Update(ctx context.Context, userID, id string, in AddressInput) (*domain.Address, error) {
	a, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)
	if err := a.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.UpdateAddress(ctx, a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errAddressNotFound
		}
		return nil, apperr.Internal(err, "Failed to update address")
	}
	return a, nil
}

// Delete removes one of the user's addresses.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.store.DeleteAddress(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return errAddressNotFound
	}
	if err != nil {
		return apperr.Internal(err, "Failed to delete address")
	}
	return nil
}

// SetDefault makes id the user's only default address.
func (s *Service) SetDefault(ctx context.Context, userID, id string) (*domain.Address, error) {
	a, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearDefaultAddress(ctx, userID); err != nil {
		return nil, apperr.Internal(err, "Failed to unset default addresses")
	}
	a.IsDefault = true
	if err := s.store.UpdateAddress(ctx, a); err != nil {
		return nil, apperr.Internal(err, "Failed to set default address")
	}
	return a, nil
}
