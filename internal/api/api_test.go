package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/account"
	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/artist"
	"github.com/yohanns/storefront/internal/assign"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/catalog"
	"github.com/yohanns/storefront/internal/chat"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/insights"
	"github.com/yohanns/storefront/internal/media"
	"github.com/yohanns/storefront/internal/newsletter"
	"github.com/yohanns/storefront/internal/orders"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store/sqlite"
	"github.com/yohanns/storefront/internal/users"
	"github.com/yohanns/storefront/internal/workflow"
)

// tokens maps bearer tokens to principals.
type tokens map[string]*auth.Principal

func (t tokens) Verify(_ context.Context, token string) (*auth.Principal, error) {
	p, ok := t[token]
	if !ok {
		return nil, apperr.Unauthorized("Invalid token")
	}
	return p, nil
}

func ptr[T any](v T) *T { return &v }

var testTokens = tokens{
	"customer": {ID: "cust-1", Email: "ana@example.com", Role: domain.RoleCustomer},
	"other":    {ID: "cust-2", Email: "ben@example.com", Role: domain.RoleCustomer},
	"admin":    {ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin, BranchID: ptr(int64(1))},
	"owner":    {ID: "owner-1", Email: "owner@example.com", Role: domain.RoleOwner},
	"artist":   {ID: "artist-user-1", Email: "amy@example.com", Role: domain.RoleArtist},
}

type harness struct {
	db     *sqlite.DB
	dir    auth.MapDirectory
	svc    Services
	server *Server
	http   *httptest.Server
	artist *domain.ArtistProfile
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertBranch(ctx, &domain.Branch{ID: 1, Name: "Batangas City"}))
	profile := &domain.ArtistProfile{UserID: "artist-user-1", ArtistName: "Amy", IsActive: true}
	require.NoError(t, db.SaveArtistProfile(ctx, profile))

	dir := auth.MapDirectory{
		"owner-1":       {ID: "owner-1", Email: "owner@example.com", Metadata: map[string]any{"role": "owner"}},
		"admin-1":       {ID: "admin-1", Email: "admin@example.com", Metadata: map[string]any{"role": "admin", "branch_id": float64(1)}},
		"cust-1":        {ID: "cust-1", Email: "ana@example.com", Metadata: map[string]any{"full_name": "Ana Cruz"}},
		"artist-user-1": {ID: "artist-user-1", Email: "amy@example.com", Metadata: map[string]any{"role": "artist"}},
	}
	files, err := media.NewDirBucket(t.TempDir(), "/media")
	require.NoError(t, err)

	wf := workflow.NewService(db, nil, nil)
	cat := catalog.NewService(db, nil)
	as := assign.NewService(db, assign.Options{})
	svc := Services{
		Catalog:    cat,
		Orders:     orders.NewService(db, orders.Options{Workflow: wf, Assigner: as, Stats: cat}),
		Workflow:   wf,
		Assign:     as,
		Artist:     artist.NewService(db, nil, nil),
		Chat:       chat.NewService(db, dir, nil, nil),
		Account:    account.NewService(db, nil),
		Insights:   insights.NewService(db, nil, "", nil),
		Users:      users.NewService(dir, db, nil),
		Newsletter: newsletter.NewService(db, nil),
		Media:      media.NewService(files, nil),
	}
	s := NewServer(Config{
		Verifier:    testTokens,
		Origins:     []string{"https://yohanns.example"},
		MediaPrefix: files.Prefix(),
		MediaFiles:  files.Handler(),
	}, svc)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{db: db, dir: dir, svc: svc, server: s, http: srv, artist: profile}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	status, raw := h.doRaw(t, method, path, token, body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return status, out
}

func (h *harness) doRaw(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.http.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw.Bytes()
}

func (h *harness) createOrder(t *testing.T, token string) string {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/orders", token, map[string]any{
		"shippingMethod": "cod",
		"pickupLocation": "Batangas City",
		"totalAmount":    1500,
		"totalItems":     3,
		"orderItems":     []map[string]any{{"name": "Jersey", "quantity": 3, "price": 500}},
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["id"].(string)
}

func TestHealthAndCORS(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	req, err := http.NewRequest(http.MethodOptions, h.http.URL+"/api/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://yohanns.example")
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://yohanns.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAuthErrors(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Access token required", body["error"])

	status, _ = h.do(t, http.MethodGet, "/api/orders", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(t, http.MethodGet, "/api/orders", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admin or owner access required", body["error"])

	status, body = h.do(t, http.MethodGet, "/api/artist/profile", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Insufficient permissions", body["error"])
}

func TestOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.createOrder(t, "customer")

	status, body := h.do(t, http.MethodGet, "/api/orders/"+id, "customer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cust-1", body["user_id"])
	assert.Equal(t, "pending", body["status"])

	status, _ = h.do(t, http.MethodGet, "/api/orders/"+id, "other", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(t, http.MethodGet, "/api/orders/missing", "admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Order not found", body["error"])

	status, body = h.do(t, http.MethodPatch, "/api/orders/"+id+"/status", "admin", map[string]string{"status": "shipped-ish"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid status", body["error"])
	assert.NotEmpty(t, body["validStatuses"])

	status, body = h.do(t, http.MethodPatch, "/api/orders/"+id+"/status", "admin", map[string]string{"status": "layout"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "layout", body["status"])

	// Entering layout starts production and hands the order to the artist.
	status, raw := h.doRaw(t, http.MethodGet, "/api/artist/tasks", "artist", nil)
	require.Equal(t, http.StatusOK, status)
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(raw, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0]["order_id"])

	status, body = h.do(t, http.MethodGet, "/api/production-workflow/"+id+"/progress", "artist", nil)
	require.Equal(t, http.StatusOK, status)
	progress := body["progress"].(map[string]any)
	assert.EqualValues(t, len(domain.Stages), progress["totalStages"])

	status, body = h.do(t, http.MethodPut, "/api/production-workflow/"+id+"/stage/embroidery", "admin",
		map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid stage", body["error"])
	assert.NotEmpty(t, body["validStages"])

	status, body = h.do(t, http.MethodPut, "/api/production-workflow/"+id+"/stage/layout", "admin",
		map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Layout updated to completed", body["message"])

	status, raw = h.doRaw(t, http.MethodGet, "/api/orders/mine", "customer", nil)
	require.Equal(t, http.StatusOK, status)
	var mine []map[string]any
	require.NoError(t, json.Unmarshal(raw, &mine))
	assert.Len(t, mine, 1)
}

func TestCODFulfillment(t *testing.T) {
	h := newHarness(t)
	id := h.createOrder(t, "customer")

	status, _ := h.do(t, http.MethodPost, "/api/order-tracking", "customer", map[string]any{"orderId": id, "status": "shipped"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := h.do(t, http.MethodPost, "/api/order-tracking", "admin", map[string]any{"orderId": id, "status": "shipped", "location": "Lipa"})
	require.Equal(t, http.StatusCreated, status, body)

	status, raw := h.doRaw(t, http.MethodGet, "/api/order-tracking/"+id, "customer", nil)
	require.Equal(t, http.StatusOK, status)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(raw, &events))
	assert.Len(t, events, 1)

	status, body = h.do(t, http.MethodPost, "/api/order-tracking/review", "customer", map[string]any{"orderId": id, "rating": 6})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = h.do(t, http.MethodPost, "/api/order-tracking/review", "customer", map[string]any{"orderId": id, "rating": 5, "comment": "Great print"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "cust-1", body["user_id"])

	status, body = h.do(t, http.MethodPost, "/api/order-tracking/delivery-proof", "admin", map[string]any{"orderId": id, "deliveryPersonName": "Carlo"})
	require.Equal(t, http.StatusCreated, status, body)
	proofID := body["id"].(string)

	status, body = h.do(t, http.MethodPut, "/api/order-tracking/delivery-proof/"+proofID+"/verify", "admin", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "admin-1", body["verified_by"])
	assert.NotEmpty(t, body["verified_at"])
}

func TestAddresses(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/user/address", "customer", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No address found", body["error"])

	status, body = h.do(t, http.MethodPost, "/api/user/address", "customer", map[string]any{"fullName": "Ana Cruz", "city": "Lipa"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["is_default"])

	status, body = h.do(t, http.MethodGet, "/api/user/address", "customer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Lipa", body["city"])

	status, body = h.do(t, http.MethodDelete, "/api/user/address/nope", "customer", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Address not found", body["error"])
}

func TestBranchChat(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/api/branch-chat/rooms", "customer", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "branchId is required", body["error"])

	status, body = h.do(t, http.MethodPost, "/api/branch-chat/rooms", "customer", map[string]any{"branchId": 1, "initialMessage": "  Hi!  "})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["isNew"])
	room := body["room"].(map[string]any)
	roomID := room["id"].(string)
	assert.Equal(t, "Support inquiry for Batangas City", room["subject"])

	status, body = h.do(t, http.MethodPost, "/api/branch-chat/rooms/"+roomID+"/messages", "admin", map[string]any{"message": "Hello Ana"})
	require.Equal(t, http.StatusOK, status, body)

	status, _ = h.do(t, http.MethodGet, "/api/branch-chat/rooms/"+roomID+"/messages", "other", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(t, http.MethodGet, "/api/branch-chat/rooms/"+roomID+"/messages", "customer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 2)

	status, body = h.do(t, http.MethodGet, "/api/branch-chat/rooms/admin", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	rooms := body["rooms"].([]any)
	require.Len(t, rooms, 1)

	status, _ = h.do(t, http.MethodPost, "/api/branch-chat/rooms/"+roomID+"/close", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = h.do(t, http.MethodPost, "/api/branch-chat/rooms/"+roomID+"/close", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestToggleArtist(t *testing.T) {
	h := newHarness(t)
	path := "/api/admin/artists/" + h.artist.ID + "/toggle-status"

	status, body := h.do(t, http.MethodPatch, path, "admin", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "is_active must be a boolean value", body["error"])

	status, _ = h.do(t, http.MethodPatch, path, "customer", map[string]any{"is_active": false})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(t, http.MethodPatch, path, "artist", map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Artist status updated to inactive", body["message"])

	status, raw := h.doRaw(t, http.MethodGet, "/api/admin/artists/workload", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	var loads []assign.Workload
	require.NoError(t, json.Unmarshal(raw, &loads))
	require.Len(t, loads, 1)
	assert.False(t, loads[0].IsActive)
}

func TestInsightsRoutes(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "customer")

	status, body := h.do(t, http.MethodGet, "/api/ai/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["configured"])

	status, body = h.do(t, http.MethodPost, "/api/ai/analytics", "owner", map[string]any{"question": "Sales?"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "AI analytics is not configured", body["error"])

	status, body = h.do(t, http.MethodGet, "/api/admin/dashboard", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["totalOrders"])
	assert.EqualValues(t, 1500, body["totalRevenue"])
}

func TestInsightsRoutes_BranchScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.UpsertBranch(ctx, &domain.Branch{ID: 2, Name: "Lipa Branch"}))
	h.createOrder(t, "customer")
	require.NoError(t, h.db.CreateOrder(ctx, &domain.Order{
		UserID: "cust-2", Status: domain.OrderPending, PickupLocation: "Lipa", TotalAmount: 200,
	}))

	// The admin belongs to branch 1 and only sees its orders.
	status, body := h.do(t, http.MethodGet, "/api/admin/dashboard", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["totalOrders"])
	assert.EqualValues(t, 1500, body["totalRevenue"])

	status, body = h.do(t, http.MethodGet, "/api/admin/dashboard?branch_id=2", "admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Access denied to this branch", body["error"])

	status, body = h.do(t, http.MethodGet, "/api/admin/dashboard", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["totalOrders"])

	status, body = h.do(t, http.MethodGet, "/api/admin/dashboard?branch_id=2", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 200, body["totalRevenue"])

	status, _ = h.do(t, http.MethodGet, "/api/admin/dashboard?branch_id=x", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnalyticsRoutes(t *testing.T) {
	h := newHarness(t)
	h.createOrder(t, "customer")

	for _, path := range []string{
		"/api/analytics/dashboard",
		"/api/analytics/sales-trends?period=7",
		"/api/analytics/product-performance",
		"/api/analytics/customer-analytics",
		"/api/analytics/sales-forecast?range=nextMonth",
		"/api/analytics/geographic-distribution",
	} {
		status, body := h.do(t, http.MethodGet, path, "owner", nil)
		require.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, true, body["success"], path)
		assert.Contains(t, body, "data", path)
	}

	status, body := h.do(t, http.MethodGet, "/api/analytics/sales-trends", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	points := body["data"].([]any)
	require.Len(t, points, 1)
	assert.EqualValues(t, 1500, points[0].(map[string]any)["sales"])

	status, body = h.do(t, http.MethodGet, "/api/analytics/sales-forecast?range=nextMonth", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Next Month", body["data"].(map[string]any)["rangeLabel"])

	status, _ = h.do(t, http.MethodGet, "/api/analytics/dashboard", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestTopicAuthorizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	orderID := h.createOrder(t, "customer")
	authorize := TopicAuthorizer(h.svc)

	tests := []struct {
		name  string
		token string
		topic string
		kind  apperr.Kind
		ok    bool
	}{
		{"owner of order", "customer", realtime.OrderTopic(orderID), 0, true},
		{"other customer", "other", realtime.OrderTopic(orderID), apperr.KindForbidden, false},
		{"staff on order", "admin", realtime.OrderTopic(orderID), 0, true},
		{"missing order", "admin", realtime.OrderTopic("nope"), apperr.KindNotFound, false},
		{"own artist topic", "artist", realtime.ArtistTopic(h.artist.ID), 0, true},
		{"customer on artist topic", "customer", realtime.ArtistTopic(h.artist.ID), apperr.KindForbidden, false},
		{"unknown kind", "admin", "invoice:1", apperr.KindInvalid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorize(ctx, testTokens[tt.token], tt.topic)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestServerStartStop_WebSocket(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "customer")

	hub := realtime.NewHub(realtime.Config{Verifier: testTokens, Authorize: TopicAuthorizer(h.svc)})
	s := NewServer(Config{Port: 0, Verifier: testTokens, Hub: hub}, h.svc)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	assert.NotEqual(t, ":0", s.GetAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, port, err := net.SplitHostPort(s.GetAddr())
	require.NoError(t, err)
	base := "ws://127.0.0.1:" + port + "/ws?token="
	_, resp, err := websocket.Dial(ctx, base+"other&topic="+realtime.OrderTopic(orderID), nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, base+"customer&topic="+realtime.OrderTopic(orderID), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var welcome realtime.Event
	require.NoError(t, json.Unmarshal(data, &welcome))
	assert.Equal(t, realtime.EventWelcome, welcome.Type)

	hub.Publish(realtime.OrderTopic(orderID), realtime.EventOrderStatus, map[string]string{"status": "layout"})
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	var ev realtime.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, realtime.EventOrderStatus, ev.Type)
	assert.Equal(t, realtime.OrderTopic(orderID), ev.Topic)
}
