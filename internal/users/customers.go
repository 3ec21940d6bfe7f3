package users

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// CustomerQuery selects a page of the customer directory.
type CustomerQuery struct {
	Page    int
	PerPage int
	Search  string
}

// Customer is a row of the customer directory.
type Customer struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	ContactNumber string    `json:"contact_number"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"perPage"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// CustomerPage is one page of customers.
type CustomerPage struct {
	Customers  []Customer `json:"customers"`
	Pagination Pagination `json:"pagination"`
}

func matchesSearch(u *auth.UserInfo, term string) bool {
	if term == "" {
		return true
	}
	first := strings.ToLower(meta(u, "first_name", "firstName"))
	last := strings.ToLower(meta(u, "last_name", "lastName"))
	return strings.Contains(strings.ToLower(u.Email), term) ||
		strings.Contains(strings.TrimSpace(first+" "+last), term) ||
		strings.Contains(strings.ToLower(meta(u, "full_name", "fullName")), term)
}

// ListCustomers returns a page of customer accounts, oldest first. Search
// matches email and names case-insensitively.
func (s *Service) ListCustomers(ctx context.Context, q CustomerQuery) (*CustomerPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = defaultPerPage
	}
	q.PerPage = min(q.PerPage, maxPerPage)
	term := strings.ToLower(strings.TrimSpace(q.Search))

	users, err := s.listUsers(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(users, func(a, b auth.UserInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	var matched []auth.UserInfo
	for i := range users {
		if roleOf(&users[i]) == domain.RoleCustomer && matchesSearch(&users[i], term) {
			matched = append(matched, users[i])
		}
	}

	total := len(matched)
	pages := (total + q.PerPage - 1) / q.PerPage
	start := min((q.Page-1)*q.PerPage, total)
	end := min(start+q.PerPage, total)
	page := matched[start:end]

	customers, err := s.describe(ctx, page)
	if err != nil {
		return nil, err
	}
	return &CustomerPage{
		Customers: customers,
		Pagination: Pagination{
			Page:        q.Page,
			PerPage:     q.PerPage,
			Total:       total,
			TotalPages:  pages,
			HasNextPage: q.Page < pages,
			HasPrevPage: q.Page > 1,
		},
	}, nil
}

// describe resolves display fields. Names come from the profile, then auth
// metadata, then the latest delivery; contacts from the profile, then
// metadata; addresses from saved addresses, then the latest delivery, then
// metadata.
func (s *Service) describe(ctx context.Context, users []auth.UserInfo) ([]Customer, error) {
	out := make([]Customer, 0, len(users))
	if len(users) == 0 {
		return out, nil
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	profiles, err := s.store.GetUserProfiles(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch customers")
	}

	addresses := map[string]string{}
	var missing []string
	for _, id := range ids {
		list, err := s.store.ListAddresses(ctx, id)
		if err != nil {
			s.log.Warn("address lookup failed", zap.String("user", id), zap.Error(err))
		}
		for _, a := range list {
			if line := addressLine(a.StreetAddress, a.Barangay, a.City, a.Province, a.PostalCode); line != "" {
				addresses[id] = line
				break
			}
		}
		if addresses[id] == "" {
			missing = append(missing, id)
		}
	}
	orderNames := map[string]string{}
	if len(missing) > 0 {
		s.fromOrders(ctx, missing, addresses, orderNames)
	}

	for i := range users {
		u := &users[i]
		p := profiles[u.ID]
		c := Customer{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
		c.Name = cmp.Or(
			strings.TrimSpace(p.FullName),
			meta(u, "full_name"),
			strings.TrimSpace(meta(u, "first_name")+" "+meta(u, "last_name")),
			orderNames[u.ID],
			u.Email,
			"N/A",
		)
		c.ContactNumber = cmp.Or(strings.TrimSpace(p.Phone), meta(u, "phone", "contact_number"))
		c.Address = cmp.Or(addresses[u.ID], meta(u, "address"))
		out = append(out, c)
	}
	return out, nil
}

// fromOrders fills addresses and names from each user's latest order that
// has a delivery address.
func (s *Service) fromOrders(ctx context.Context, ids []string, addresses, names map[string]string) {
	orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{UserIDs: ids})
	if err != nil {
		s.log.Warn("order address lookup failed", zap.Int("users", len(ids)), zap.Error(err))
		return
	}
	seen := map[string]bool{}
	for _, o := range orders {
		if o.DeliveryAddress == nil || seen[o.UserID] {
			continue
		}
		seen[o.UserID] = true
		d := o.DeliveryAddress
		switch {
		case strings.TrimSpace(d.Address) != "":
			addresses[o.UserID] = strings.TrimSpace(d.Address)
		case d.Street != "" && d.City != "":
			addresses[o.UserID] = addressLine(d.Street, d.Barangay, d.City, d.Province, d.PostalCode)
		}
		name := strings.TrimSpace(d.Receiver)
		if name == "" && len(o.Items) > 0 {
			name = strings.TrimSpace(o.Items[0].ClientName)
		}
		if name != "" {
			names[o.UserID] = name
		}
	}
}

func addressLine(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// DeleteCustomer removes a customer's auth user and profile data.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	u, err := s.admin.LookupUser(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound("Customer", "")
		}
		return apperr.Internal(err, "Failed to delete customer account")
	}
	if roleOf(u) != domain.RoleCustomer {
		return apperr.Invalid("User is not a customer account")
	}
	if err := s.admin.DeleteUser(ctx, id); err != nil {
		return apperr.Internal(err, "Failed to delete customer account")
	}
	if err := s.store.DeleteUserProfile(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("customer profile cleanup failed", zap.String("user", id), zap.Error(err))
	}
	s.log.Info("customer deleted", zap.String("user", id))
	return nil
}
