// Package users is the back office account administration: admin and
// owner accounts, the customer directory and artist account edits. Auth
// users live in Supabase Auth; profile rows live in the store.
package users

import (
	"cmp"
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const minPasswordLength = 6

// Store is the persistence account administration touches.
type Store interface {
	store.BranchStore
	store.ProfileStore
	store.AddressStore
	store.OrderStore
	store.ArtistStore
}

// Service implements account administration.
type Service struct {
	admin auth.UserAdmin
	store Store
	log   *zap.Logger
}

// NewService creates a users service.
func NewService(admin auth.UserAdmin, s Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{admin: admin, store: s, log: log}
}

func (s *Service) listUsers(ctx context.Context) ([]auth.UserInfo, error) {
	users, err := s.admin.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch users")
	}
	return users, nil
}

func meta(u *auth.UserInfo, keys ...string) string {
	for _, k := range keys {
		if v, ok := u.Metadata[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func roleOf(u *auth.UserInfo) domain.Role {
	role, _ := u.Metadata["role"].(string)
	return domain.ParseRole(role)
}

// AdminUser is a staff account as listed to the owner.
type AdminUser struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	FirstName     string      `json:"first_name,omitempty"`
	LastName      string      `json:"last_name,omitempty"`
	Name          string      `json:"name"`
	Role          domain.Role `json:"role"`
	BranchID      *int64      `json:"branch_id"`
	BranchName    string      `json:"branch_name,omitempty"`
	ContactNumber string      `json:"contact_number,omitempty"`
	CreatedAt     string      `json:"created_at,omitempty"`
}

func (s *Service) adminUser(ctx context.Context, u *auth.UserInfo, branches map[int64]string) AdminUser {
	a := AdminUser{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     meta(u, "first_name", "firstName"),
		LastName:      meta(u, "last_name", "lastName"),
		Role:          roleOf(u),
		BranchID:      auth.ParseBranchID(u.Metadata["branch_id"]),
		ContactNumber: meta(u, "contact_number"),
	}
	a.Name = cmp.Or(strings.TrimSpace(a.FirstName+" "+a.LastName), u.Email)
	if !u.CreatedAt.IsZero() {
		a.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	if a.BranchID != nil {
		name, ok := branches[*a.BranchID]
		if !ok {
			if b, err := s.store.GetBranch(ctx, *a.BranchID); err == nil {
				name = b.Name
			} else if !errors.Is(err, store.ErrNotFound) {
				s.log.Warn("branch lookup failed", zap.Int64("branch", *a.BranchID), zap.Error(err))
			}
			branches[*a.BranchID] = name
		}
		a.BranchName = cmp.Or(name, meta(u, "branch_name"))
	}
	return a
}

// ListAdmins returns the admin and owner accounts, oldest first.
func (s *Service) ListAdmins(ctx context.Context) ([]AdminUser, error) {
	users, err := s.listUsers(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(users, func(a, b auth.UserInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	branches := map[int64]string{}
	out := []AdminUser{}
	for i := range users {
		if r := roleOf(&users[i]); r == domain.RoleAdmin || r == domain.RoleOwner {
			out = append(out, s.adminUser(ctx, &users[i], branches))
		}
	}
	return out, nil
}

// NewAdmin is an admin account to create.
type NewAdmin struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	ContactNumber string `json:"contact_number"`
	BranchID      *int64 `json:"branch_id"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// CreateAdmin creates a branch admin account.
func (s *Service) CreateAdmin(ctx context.Context, in NewAdmin) (*AdminUser, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case in.Email == "" || in.Password == "":
		return nil, apperr.Invalid("Email and password are required")
	case !validEmail(in.Email):
		return nil, apperr.Invalid("Invalid email format")
	case len(in.Password) < minPasswordLength:
		return nil, apperr.Invalid("Password must be at least 6 characters")
	case in.BranchID == nil:
		return nil, apperr.Invalid("Branch is required for admin accounts")
	}
	if _, err := s.store.GetBranch(ctx, *in.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Invalid("Branch not found")
		}
		return nil, apperr.Internal(err, "Failed to fetch branch")
	}
	if taken, err := s.emailTaken(ctx, in.Email, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Invalid("Email is already taken by another user")
	}

	metadata := map[string]any{
		"role":      string(domain.RoleAdmin),
		"branch_id": *in.BranchID,
	}
	for k, v := range map[string]string{"first_name": in.FirstName, "last_name": in.LastName, "contact_number": in.ContactNumber} {
		if v = strings.TrimSpace(v); v != "" {
			metadata[k] = v
		}
	}
	u, err := s.admin.CreateUser(ctx, auth.NewUser{Email: in.Email, Password: in.Password, Metadata: metadata})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, err
		}
		return nil, apperr.Internal(err, "Failed to create admin user")
	}
	s.log.Info("admin account created", zap.String("user", u.ID), zap.Int64("branch", *in.BranchID))
	a := s.adminUser(ctx, u, map[int64]string{})
	return &a, nil
}

// DeleteAdmin removes an admin account. Owners cannot delete themselves.
func (s *Service) DeleteAdmin(ctx context.Context, p *auth.Principal, id string) error {
	if p != nil && p.ID == id {
		return apperr.Invalid("You cannot delete your own account")
	}
	u, err := s.admin.LookupUser(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound("Admin user", "")
		}
		return apperr.Internal(err, "Failed to fetch admin user")
	}
	if r := roleOf(u); r != domain.RoleAdmin && r != domain.RoleOwner {
		return apperr.Invalid("User is not an admin account")
	}
	if err := s.admin.DeleteUser(ctx, id); err != nil {
		return apperr.Internal(err, "Failed to delete admin user")
	}
	s.log.Info("admin account deleted", zap.String("user", id))
	return nil
}

func (s *Service) emailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	users, err := s.listUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// ArtistUpdate is the owner's edit of an artist account.
type ArtistUpdate struct {
	ArtistName string `json:"artist_name"`
	Email      string `json:"email"`
}

// UpdateArtist renames an artist and changes their login email.
func (s *Service) UpdateArtist(ctx context.Context, artistID string, in ArtistUpdate) (*domain.ArtistProfile, error) {
	in.ArtistName = strings.TrimSpace(in.ArtistName)
	in.Email = strings.TrimSpace(in.Email)
	if in.ArtistName == "" || in.Email == "" {
		return nil, apperr.Invalid("Artist name and email are required")
	}
	if !validEmail(in.Email) {
		return nil, apperr.Invalid("Invalid email format")
	}
	profile, err := s.artist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, in.Email, profile.UserID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Invalid("Email is already taken by another user")
	}
	if err := s.admin.UpdateUserEmail(ctx, profile.UserID, in.Email); err != nil {
		return nil, apperr.Internal(err, "Failed to update user email")
	}
	profile.ArtistName = in.ArtistName
	if err := s.store.SaveArtistProfile(ctx, profile); err != nil {
		return nil, apperr.Internal(err, "Failed to update artist profile")
	}
	s.log.Info("artist updated", zap.String("artist", profile.ID))
	return profile, nil
}

// DeleteArtist removes an artist's auth user and profile. Their tasks go
// with the profile.
func (s *Service) DeleteArtist(ctx context.Context, artistID string) error {
	profile, err := s.artist(ctx, artistID)
	if err != nil {
		return err
	}
	if err := s.admin.DeleteUser(ctx, profile.UserID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return apperr.Internal(err, "Failed to delete artist account")
	}
	if err := s.store.DeleteArtistProfile(ctx, profile.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperr.Internal(err, "Failed to delete artist account")
	}
	s.log.Info("artist deleted", zap.String("artist", profile.ID), zap.String("user", profile.UserID))
	return nil
}

func (s *Service) artist(ctx context.Context, id string) (*domain.ArtistProfile, error) {
	p, err := s.store.GetArtistProfile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Artist", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist")
	}
	return p, nil
}
