package api

import (
	"context"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/realtime"
)

var errTopicDenied = apperr.Forbidden("Access denied to this topic")

// TopicAuthorizer returns the realtime.Authorizer for the storefront's
// topics: order updates go to the customer and staff, artist task events
// to that artist and staff, and chat rooms to their participants.
func TopicAuthorizer(svc Services) realtime.Authorizer {
	return func(ctx context.Context, p *auth.Principal, topic string) error {
		kind, id, ok := realtime.SplitTopic(topic)
		if !ok {
			return apperr.Invalid("Invalid topic").With("topic", topic)
		}
		switch kind {
		case "order":
			o, err := svc.Orders.Get(ctx, id)
			if err != nil {
				return err
			}
			if !canSeeOrder(p, o) {
				return errTopicDenied
			}
			return nil
		case "artist":
			if p.IsStaff() {
				return nil
			}
			prof, err := svc.Artist.ProfileByID(ctx, id)
			if err != nil {
				return err
			}
			if prof.UserID != p.ID {
				return errTopicDenied
			}
			return nil
		case "design":
			return svc.Chat.DesignRoomAccess(ctx, p, id)
		case "branch":
			return svc.Chat.BranchRoomAccess(ctx, p, id)
		}
		return errTopicDenied
	}
}
