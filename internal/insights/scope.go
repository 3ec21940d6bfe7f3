package insights

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

var errMissingBranch = apperr.Forbidden("Admin account is missing branch assignment")

// Scope limits figures to the orders of one branch. The zero Scope covers
// every branch.
type Scope struct {
	BranchID   *int64 `json:"branchId,omitempty"`
	BranchName string `json:"branchName,omitempty"`
	key        string
}

// All reports whether the scope covers every branch.
func (sc Scope) All() bool { return sc.BranchID == nil }

// ResolveScope decides which branch p may see. Owners see everything
// unless they ask for one branch. Admins see their own branch and may not
// ask for another. Other roles are not branch bound.
func (s *Service) ResolveScope(ctx context.Context, p *auth.Principal, requested *int64) (Scope, error) {
	branchID := requested
	if p.Is(domain.RoleAdmin) {
		if p.BranchID == nil {
			return Scope{}, errMissingBranch
		}
		if branchID == nil {
			branchID = p.BranchID
		}
	}
	if branchID == nil {
		return Scope{}, nil
	}
	if err := auth.BranchAccess(p, *branchID); err != nil {
		return Scope{}, err
	}

	sc := Scope{BranchID: branchID}
	b, err := s.store.GetBranch(ctx, *branchID)
	switch {
	case err == nil:
		sc.BranchName = b.Name
	case errors.Is(err, store.ErrNotFound):
		s.log.Warn("scoped branch does not exist", zap.Int64("branch", *branchID))
	default:
		return Scope{}, apperr.Internal(err, "Failed to resolve branch context")
	}
	sc.key = branchKey(sc.BranchName)
	if sc.BranchName == "" {
		sc.BranchName = "Branch " + strconv.FormatInt(*branchID, 10)
	}
	return sc, nil
}

var (
	parenthesized = regexp.MustCompile(`\(.*?\)`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// branchKey reduces a branch label to the letters and digits that identify
// it, so "Batangas City Branch (Main)" and "batangas city" match.
func branchKey(name string) string {
	v := strings.ToLower(name)
	v = parenthesized.ReplaceAllString(v, " ")
	v = strings.ReplaceAll(v, "branch", " ")
	v = strings.ReplaceAll(v, "main", " ")
	return nonAlnum.ReplaceAllString(v, "")
}

// Includes reports whether o belongs to the scope.
func (sc Scope) Includes(o *domain.Order) bool {
	if sc.All() {
		return true
	}
	return sc.key != "" && branchKey(o.PickupLocation) == sc.key
}

// Filter returns the orders inside the scope.
func (sc Scope) Filter(orders []domain.Order) []domain.Order {
	if sc.All() {
		return orders
	}
	out := make([]domain.Order, 0, len(orders))
	for i := range orders {
		if sc.Includes(&orders[i]) {
			out = append(out, orders[i])
		}
	}
	return out
}

// orders loads every order matching f that falls inside the scope.
func (s *Service) orders(ctx context.Context, sc Scope, f store.OrderFilter) ([]domain.Order, error) {
	orders, _, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch orders")
	}
	return sc.Filter(orders), nil
}
