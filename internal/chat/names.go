package chat

import (
	"context"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/store"
)

// FallbackName is shown when no name can be found for a customer.
const FallbackName = "Customer"

// lookupLimit bounds concurrent Auth Admin requests.
const lookupLimit = 8

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// MetadataFullName returns full_name, else first and last name joined.
func MetadataFullName(m map[string]any) string {
	if n := metaString(m, "full_name"); n != "" {
		return n
	}
	return strings.TrimSpace(metaString(m, "first_name") + " " + metaString(m, "last_name"))
}

// DisplayName derives a customer name from an auth user: metadata names,
// then username style fields, then the email local part.
func DisplayName(u *auth.UserInfo) string {
	if u == nil {
		return ""
	}
	if n := MetadataFullName(u.Metadata); n != "" {
		return n
	}
	for _, key := range []string{"username", "display_name", "name"} {
		if n := metaString(u.Metadata, key); n != "" {
			return n
		}
	}
	return nameFromEmail(u.Email)
}

// nameFromEmail turns "ana.cruz@x" into "Ana Cruz" and "ana@x" into "Ana".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return ""
	}
	sep := ""
	switch {
	case strings.Contains(local, "."):
		sep = "."
	case strings.Contains(local, "_"):
		sep = "_"
	}
	if sep != "" {
		parts := strings.Split(local, sep)
		if len(parts) >= 2 {
			for i, p := range parts {
				parts[i] = capitalize(strings.ToLower(p))
			}
			return strings.Join(parts, " ")
		}
	}
	return capitalize(local)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// customerNames resolves display names for customer ids: profile full
// name, then the receiver on the customer's latest order, then the auth
// user. Ids that resolve to nothing are absent from the result.
func (s *Service) customerNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}

	profiles, err := s.store.GetUserProfiles(ctx, ids)
	if err != nil {
		s.log.Warn("failed to fetch user profiles", zap.Error(err))
	}
	for id, p := range profiles {
		if n := strings.TrimSpace(p.FullName); n != "" {
			names[id] = n
		}
	}

	if missing := missingIDs(ids, names); len(missing) > 0 {
		orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{UserIDs: missing, Limit: 1000})
		if err != nil {
			s.log.Warn("failed to fetch customer orders", zap.Error(err))
		}
		// Orders come newest first; the first receiver per user wins.
		for _, o := range orders {
			if _, ok := names[o.UserID]; ok {
				continue
			}
			if n := o.DeliveryAddress.ReceiverLabel(); n != "" {
				names[o.UserID] = n
			}
		}
	}

	missing := missingIDs(ids, names)
	if len(missing) == 0 || s.dir == nil {
		return names
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for _, id := range missing {
		g.Go(func() error {
			u, err := s.dir.LookupUser(gctx, id)
			if err != nil {
				s.log.Debug("failed to look up user", zap.String("user", id), zap.Error(err))
				return nil
			}
			if n := DisplayName(u); n != "" {
				mu.Lock()
				names[id] = n
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return names
}

func missingIDs(ids []string, names map[string]string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
