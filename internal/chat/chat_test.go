package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store/sqlite"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) Publish(topic, _ string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

type fixture struct {
	svc    *Service
	db     *sqlite.DB
	pub    *recorder
	branch *domain.Branch
	other  *domain.Branch
}

func newFixture(t *testing.T, dir auth.Directory) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	b := &domain.Branch{Name: "Batangas"}
	require.NoError(t, db.UpsertBranch(ctx, b))
	o := &domain.Branch{Name: "Lipa"}
	require.NoError(t, db.UpsertBranch(ctx, o))

	pub := &recorder{}
	return &fixture{svc: NewService(db, dir, pub, nil), db: db, pub: pub, branch: b, other: o}
}

func customer(id string) *auth.Principal {
	return &auth.Principal{ID: id, Role: domain.RoleCustomer}
}

func admin(id string, branch int64) *auth.Principal {
	return &auth.Principal{ID: id, Role: domain.RoleAdmin, BranchID: &branch}
}

var owner = &auth.Principal{ID: "owner-1", Role: domain.RoleOwner}

func TestDesignRoom_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := customer("cust-1")
	artist := &auth.Principal{ID: "artist-user", Role: domain.RoleArtist}

	order := &domain.Order{ID: "order-1", UserID: "cust-1"}
	require.NoError(t, f.db.CreateOrder(ctx, order))

	room, created, err := f.svc.CreateDesignRoom(ctx, cust, domain.DesignChatRoom{OrderID: "order-1", ArtistID: "artist-user"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cust-1", room.CustomerID)

	again, created, err := f.svc.CreateDesignRoom(ctx, artist, domain.DesignChatRoom{OrderID: "order-1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)

	_, _, err = f.svc.CreateDesignRoom(ctx, cust, domain.DesignChatRoom{})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	m, err := f.svc.SendDesignMessage(ctx, cust, room.ID, MessageInput{Message: "Can the logo be bigger?"})
	require.NoError(t, err)
	assert.Equal(t, domain.SenderCustomer, m.SenderType)
	assert.Equal(t, domain.MessageText, m.MessageType)
	_, err = f.svc.SendDesignMessage(ctx, artist, room.ID, MessageInput{Message: "Sure"})
	require.NoError(t, err)

	_, err = f.svc.SendDesignMessage(ctx, customer("stranger"), room.ID, MessageInput{Message: "hi"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	msgs, err := f.svc.DesignMessages(ctx, artist, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Can the logo be bigger?", msgs[0].Message)

	n, err := f.svc.MarkDesignRead(ctx, artist, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byOrder, err := f.svc.DesignRoomByOrder(ctx, cust, "order-1")
	require.NoError(t, err)
	require.NotNil(t, byOrder.LastMessageAt)

	_, err = f.svc.DesignRoomByOrder(ctx, cust, "order-2")
	e, _ := apperr.As(err)
	assert.Equal(t, "Room not found", e.Message)

	rooms, err := f.svc.ArtistDesignRooms(ctx, artist, "artist-user")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	_, err = f.svc.CustomerDesignRooms(ctx, cust, "cust-2")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	closed, err := f.svc.CloseDesignRoom(ctx, cust, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomClosed, closed.Status)

	assert.Len(t, f.pub.topics, 3)
	assert.Equal(t, "design:"+room.ID, f.pub.topics[0])
}

func TestCreateDesignRoom_RequiresOrderOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.db.CreateOrder(ctx, &domain.Order{ID: "order-9", UserID: "victim"}))

	// Claiming someone else's order, even while naming yourself as the
	// customer, is refused and leaves no room behind.
	_, _, err := f.svc.CreateDesignRoom(ctx, customer("attacker"), domain.DesignChatRoom{OrderID: "order-9", CustomerID: "attacker"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.DesignRoomByOrder(ctx, owner, "order-9")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, _, err = f.svc.CreateDesignRoom(ctx, customer("victim"), domain.DesignChatRoom{OrderID: "missing"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Staff may open the room; it still belongs to the order's customer.
	room, created, err := f.svc.CreateDesignRoom(ctx, admin("admin-1", f.branch.ID), domain.DesignChatRoom{OrderID: "order-9", CustomerID: "attacker"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "victim", room.CustomerID)

	_, _, err = f.svc.CreateDesignRoom(ctx, customer("attacker"), domain.DesignChatRoom{OrderID: "order-9"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.SendDesignMessage(ctx, customer("attacker"), room.ID, MessageInput{Message: "hi"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, created, err := f.svc.CreateDesignRoom(ctx, customer("victim"), domain.DesignChatRoom{OrderID: "order-9"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, got.ID)
}

func TestCustomerInfo(t *testing.T) {
	ctx := context.Background()
	dir := auth.MapDirectory{
		"meta-user": {ID: "meta-user", Metadata: map[string]any{"first_name": "Ana", "last_name": "Cruz"}},
	}
	f := newFixture(t, dir)

	order := &domain.Order{
		UserID:          "order-user",
		OrderNumber:     "ORD-1",
		ShippingMethod:  domain.ShippingCOD,
		DeliveryAddress: &domain.DeliveryAddress{FullName: "Not used", Receiver: "Ben Santos"},
		Items:           []domain.OrderItem{{Name: "Jersey", Quantity: 1, ClientName: "Team Ben"}},
	}
	require.NoError(t, f.db.CreateOrder(ctx, order))
	itemOrder := &domain.Order{
		UserID:         "item-user",
		OrderNumber:    "ORD-2",
		ShippingMethod: domain.ShippingPickup,
		Items:          []domain.OrderItem{{Name: "Jersey", Quantity: 1, ClientName: "Team Carla"}},
	}
	require.NoError(t, f.db.CreateOrder(ctx, itemOrder))
	require.NoError(t, f.db.UpsertUserProfile(ctx, &domain.UserProfile{UserID: "profile-user", FullName: "Dina Reyes", Phone: "0917"}))

	tests := []struct {
		customer string
		orderID  string
		name     string
		phone    string
	}{
		{"profile-user", "o-x", "Dina Reyes", "0917"},
		{"meta-user", "o-y", "Ana Cruz", ""},
		{"order-user", order.ID, "Ben Santos", ""},
		{"item-user", itemOrder.ID, "Team Carla", ""},
		{"nobody", "o-z", FallbackName, ""},
	}
	for _, id := range []string{"o-x", "o-y", "o-z"} {
		owners := map[string]string{"o-x": "profile-user", "o-y": "meta-user", "o-z": "nobody"}
		require.NoError(t, f.db.CreateOrder(ctx, &domain.Order{ID: id, UserID: owners[id]}))
	}
	for _, tt := range tests {
		t.Run(tt.customer, func(t *testing.T) {
			room, _, err := f.svc.CreateDesignRoom(ctx, owner, domain.DesignChatRoom{OrderID: tt.orderID})
			require.NoError(t, err)
			info, err := f.svc.CustomerInfo(ctx, owner, room.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.name, info.FullName)
			if tt.phone == "" {
				assert.Nil(t, info.Phone)
			} else {
				require.NotNil(t, info.Phone)
				assert.Equal(t, tt.phone, *info.Phone)
			}
		})
	}
}

func TestOpenBranchRoom(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := customer("cust-1")

	_, err := f.svc.OpenBranchRoom(ctx, cust, OpenRequest{})
	e, _ := apperr.As(err)
	assert.Equal(t, "branchId is required", e.Message)

	missing := int64(999)
	_, err = f.svc.OpenBranchRoom(ctx, cust, OpenRequest{BranchID: &missing})
	e, _ = apperr.As(err)
	assert.Equal(t, "Branch not found", e.Message)

	res, err := f.svc.OpenBranchRoom(ctx, cust, OpenRequest{BranchID: &f.branch.ID, InitialMessage: "  Do you have size XL?  "})
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.Equal(t, "Support inquiry for Batangas", res.Room.Subject)
	require.NotNil(t, res.Room.Branch)
	require.NotNil(t, res.InitialMessage)
	assert.Equal(t, "Do you have size XL?", res.InitialMessage.Message)

	again, err := f.svc.OpenBranchRoom(ctx, cust, OpenRequest{BranchID: &f.branch.ID, Subject: "ignored"})
	require.NoError(t, err)
	assert.False(t, again.IsNew)
	assert.Equal(t, res.Room.ID, again.Room.ID)
	assert.Nil(t, again.InitialMessage)
}

func TestBranchAccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.OpenBranchRoom(ctx, customer("cust-1"), OpenRequest{BranchID: &f.branch.ID})
	require.NoError(t, err)
	roomID := res.Room.ID

	tests := []struct {
		name string
		p    *auth.Principal
		kind apperr.Kind
		ok   bool
	}{
		{"own customer", customer("cust-1"), 0, true},
		{"other customer", customer("cust-2"), apperr.KindForbidden, false},
		{"branch admin", admin("admin-1", f.branch.ID), 0, true},
		{"other branch admin", admin("admin-2", f.other.ID), apperr.KindForbidden, false},
		{"owner", owner, 0, true},
		{"artist", &auth.Principal{ID: "a", Role: domain.RoleArtist}, apperr.KindForbidden, false},
		{"anonymous", nil, apperr.KindUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.BranchRoomAccess(ctx, tt.p, roomID)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err = f.svc.BranchMessages(ctx, owner, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSendBranchMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := customer("cust-1")
	staff := admin("admin-1", f.branch.ID)
	res, err := f.svc.OpenBranchRoom(ctx, cust, OpenRequest{BranchID: &f.branch.ID})
	require.NoError(t, err)

	_, err = f.svc.SendBranchMessage(ctx, cust, res.Room.ID, MessageInput{Message: "   "})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.svc.CloseBranchRoom(ctx, cust, res.Room.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.CloseBranchRoom(ctx, staff, res.Room.ID)
	require.NoError(t, err)

	m, err := f.svc.SendBranchMessage(ctx, staff, res.Room.ID, MessageInput{Message: "We do!"})
	require.NoError(t, err)
	assert.Equal(t, domain.SenderAdmin, m.SenderType)

	room, err := f.db.GetBranchRoom(ctx, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomOpen, room.Status)
	assert.Equal(t, "admin-1", room.AdminID)

	n, err := f.svc.MarkBranchRead(ctx, cust, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := f.svc.BranchMessages(ctx, cust, res.Room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsRead)
	assert.Contains(t, f.pub.topics, "branch:"+res.Room.ID)
}

func TestAdminBranchRooms(t *testing.T) {
	dir := auth.MapDirectory{
		"cust-meta":  {ID: "cust-meta", Metadata: map[string]any{"display_name": "kuya joe"}},
		"cust-email": {ID: "cust-email", Email: "maria.clara@example.com"},
	}
	f := newFixture(t, dir)
	ctx := context.Background()

	require.NoError(t, f.db.UpsertUserProfile(ctx, &domain.UserProfile{UserID: "cust-profile", FullName: "Paolo Diaz"}))
	require.NoError(t, f.db.CreateOrder(ctx, &domain.Order{
		UserID:          "cust-order",
		OrderNumber:     "ORD-1",
		ShippingMethod:  domain.ShippingCOD,
		DeliveryAddress: &domain.DeliveryAddress{ContactName: "Lito Lapid"},
		Items:           []domain.OrderItem{{Name: "Cap", Quantity: 1}},
	}))

	for _, id := range []string{"cust-profile", "cust-order", "cust-meta", "cust-email", "cust-unknown"} {
		_, err := f.svc.OpenBranchRoom(ctx, customer(id), OpenRequest{BranchID: &f.branch.ID})
		require.NoError(t, err)
	}
	_, err := f.svc.OpenBranchRoom(ctx, customer("cust-profile"), OpenRequest{BranchID: &f.other.ID})
	require.NoError(t, err)

	_, err = f.svc.AdminBranchRooms(ctx, customer("cust-1"), nil, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.AdminBranchRooms(ctx, &auth.Principal{ID: "a", Role: domain.RoleAdmin}, nil, "")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	rooms, err := f.svc.AdminBranchRooms(ctx, admin("admin-1", f.branch.ID), &f.other.ID, "")
	require.NoError(t, err)
	require.Len(t, rooms, 5)
	names := map[string]string{}
	for _, r := range rooms {
		assert.Equal(t, f.branch.ID, r.BranchID)
		require.NotNil(t, r.Branch)
		names[r.CustomerID] = r.CustomerName
	}
	assert.Equal(t, map[string]string{
		"cust-profile": "Paolo Diaz",
		"cust-order":   "Lito Lapid",
		"cust-meta":    "kuya joe",
		"cust-email":   "Maria Clara",
		"cust-unknown": FallbackName,
	}, names)

	all, err := f.svc.AdminBranchRooms(ctx, owner, nil, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)
	filtered, err := f.svc.AdminBranchRooms(ctx, owner, &f.other.ID, domain.RoomOpen)
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *auth.UserInfo
		want string
	}{
		{"nil", nil, ""},
		{"full name", &auth.UserInfo{Metadata: map[string]any{"full_name": "Ana Cruz", "first_name": "X"}}, "Ana Cruz"},
		{"first only", &auth.UserInfo{Metadata: map[string]any{"first_name": "Ana"}}, "Ana"},
		{"username", &auth.UserInfo{Metadata: map[string]any{"username": "anac"}}, "anac"},
		{"dotted email", &auth.UserInfo{Email: "JUAN.dela@x.ph"}, "Juan Dela"},
		{"underscore email", &auth.UserInfo{Email: "juan_luna@x.ph"}, "Juan Luna"},
		{"plain email", &auth.UserInfo{Email: "juan@x.ph"}, "Juan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.user))
		})
	}
}
