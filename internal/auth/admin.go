package auth

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/yohanns/storefront/internal/apperr"
)

// NewUser is an account created by staff. The email is confirmed on
// creation.
type NewUser struct {
	Email    string
	Password string
	Metadata map[string]any
}

// UserAdmin manages auth users on behalf of the back office.
type UserAdmin interface {
	Directory
	ListUsers(ctx context.Context) ([]UserInfo, error)
	CreateUser(ctx context.Context, u NewUser) (*UserInfo, error)
	UpdateUserEmail(ctx context.Context, id, email string) error
	DeleteUser(ctx context.Context, id string) error
}

func userInfo(u types.User) *UserInfo {
	return &UserInfo{ID: u.ID.String(), Email: u.Email, Metadata: u.UserMetadata, CreatedAt: u.CreatedAt}
}

func parseUserID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.NotFound("User", id)
	}
	return uid, nil
}

// ListUsers returns every auth user.
func (d *SupabaseDirectory) ListUsers(ctx context.Context) ([]UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := d.client.AdminListUsers()
	if err != nil {
		return nil, fmt.Errorf("admin list users: %w", err)
	}
	out := make([]UserInfo, 0, len(resp.Users))
	for _, u := range resp.Users {
		out = append(out, *userInfo(u))
	}
	return out, nil
}

// CreateUser creates a confirmed auth user.
func (d *SupabaseDirectory) CreateUser(ctx context.Context, u NewUser) (*UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	password := u.Password
	resp, err := d.client.AdminCreateUser(types.AdminCreateUserRequest{
		Email:        u.Email,
		Password:     &password,
		EmailConfirm: true,
		UserMetadata: u.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("admin create user %s: %w", u.Email, err)
	}
	return userInfo(resp.User), nil
}

// UpdateUserEmail changes the login email of user id.
func (d *SupabaseDirectory) UpdateUserEmail(ctx context.Context, id, email string) error {
	uid, err := parseUserID(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.client.AdminUpdateUser(types.AdminUpdateUserRequest{UserID: uid, Email: email, EmailConfirm: true}); err != nil {
		return fmt.Errorf("admin update user %s: %w", id, err)
	}
	return nil
}

// DeleteUser removes user id from Supabase Auth.
func (d *SupabaseDirectory) DeleteUser(ctx context.Context, id string) error {
	uid, err := parseUserID(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.client.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: uid}); err != nil {
		return fmt.Errorf("admin delete user %s: %w", id, err)
	}
	return nil
}

// ListUsers returns the users oldest first.
func (d MapDirectory) ListUsers(context.Context) ([]UserInfo, error) {
	out := make([]UserInfo, 0, len(d))
	for _, u := range d {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b UserInfo) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// CreateUser adds a user with a fresh id. Emails are unique.
func (d MapDirectory) CreateUser(_ context.Context, u NewUser) (*UserInfo, error) {
	for _, existing := range d {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, apperr.New(apperr.KindConflict, "A user with this email address has already been registered")
		}
	}
	info := UserInfo{ID: uuid.NewString(), Email: u.Email, Metadata: u.Metadata, CreatedAt: time.Now().UTC()}
	d[info.ID] = info
	return &info, nil
}

// UpdateUserEmail changes the email of user id.
func (d MapDirectory) UpdateUserEmail(_ context.Context, id, email string) error {
	u, ok := d[id]
	if !ok {
		return apperr.NotFound("User", id)
	}
	u.Email = email
	d[id] = u
	return nil
}

// DeleteUser removes user id.
func (d MapDirectory) DeleteUser(_ context.Context, id string) error {
	if _, ok := d[id]; !ok {
		return apperr.NotFound("User", id)
	}
	delete(d, id)
	return nil
}
