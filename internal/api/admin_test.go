package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/domain"
)

type formFile struct {
	field, name, contentType, body string
}

func (h *harness) multipart(t *testing.T, path, token string, fields map[string]string, files ...formFile) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAdminUserRoutes_OwnerOnly(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodGet, "/api/admin/users", "admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Owner access required", body["error"])

	status, raw := h.doRaw(t, http.MethodGet, "/api/admin/users", "owner", nil)
	require.Equal(t, http.StatusOK, status)
	var admins []map[string]any
	require.NoError(t, json.Unmarshal(raw, &admins))
	assert.Len(t, admins, 2)

	status, body = h.do(t, http.MethodPost, "/api/admin/users", "owner", map[string]any{
		"email": "lipa@example.com", "password": "secret1", "first_name": "Lia", "branch_id": 1,
	})
	require.Equal(t, http.StatusCreated, status, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "Batangas City", user["branch_name"])
	id := user["id"].(string)

	status, body = h.do(t, http.MethodPost, "/api/admin/users", "owner", map[string]any{"email": "x@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Branch is required for admin accounts", body["error"])

	status, _ = h.do(t, http.MethodDelete, "/api/admin/users/"+id, "admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = h.do(t, http.MethodDelete, "/api/admin/users/"+id, "owner", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Admin account deleted successfully", body["message"])
	_, ok := h.dir[id]
	assert.False(t, ok)
}

func TestCustomerRoutes(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodGet, "/api/admin/customers", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := h.do(t, http.MethodGet, "/api/admin/customers?search=ana", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	customers := body["customers"].([]any)
	require.Len(t, customers, 1)
	assert.Equal(t, "Ana Cruz", customers[0].(map[string]any)["name"])
	assert.Equal(t, float64(1), body["pagination"].(map[string]any)["total"])

	status, body = h.do(t, http.MethodDelete, "/api/admin/customers/cust-1", "owner", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Customer account deleted successfully", body["message"])
}

func TestArtistAccountRoutes(t *testing.T) {
	h := newHarness(t)
	path := "/api/admin/artists/" + h.artist.ID

	status, _ := h.do(t, http.MethodPut, path, "admin", map[string]any{"artist_name": "Amy B", "email": "amyb@example.com"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := h.do(t, http.MethodPut, path, "owner", map[string]any{"artist_name": "Amy B", "email": "amyb@example.com"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Amy B", body["artist"].(map[string]any)["artist_name"])
	assert.Equal(t, "amyb@example.com", h.dir["artist-user-1"].Email)

	status, _ = h.do(t, http.MethodDelete, path, "admin", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodDelete, path, "admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNewsletterRoutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status, body := h.do(t, http.MethodPost, "/api/newsletter/subscribe", "customer", map[string]any{"email": "Ana@Example.com"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	sub, err := h.db.GetSubscriber(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", sub.UserID)

	status, body = h.do(t, http.MethodPost, "/api/newsletter/subscribe", "bogus-token", map[string]any{"email": "guest@example.com"})
	require.Equal(t, http.StatusOK, status, body)
	sub, err = h.db.GetSubscriber(ctx, "guest@example.com")
	require.NoError(t, err)
	assert.Empty(t, sub.UserID)

	status, body = h.do(t, http.MethodPost, "/api/newsletter/subscribe", "", map[string]any{"email": "guest@example.com"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["alreadySubscribed"])

	status, body = h.do(t, http.MethodPost, "/api/newsletter/subscribe", "", map[string]any{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid email address format", body["error"])

	status, body = h.do(t, http.MethodGet, "/api/newsletter/unsubscribe?email=guest@example.com", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "You have been successfully unsubscribed from our newsletter.", body["message"])

	status, _ = h.do(t, http.MethodGet, "/api/newsletter/subscribers", "customer", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = h.do(t, http.MethodGet, "/api/newsletter/subscribers", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

func TestCustomDesignRoutes(t *testing.T) {
	h := newHarness(t)
	members := []map[string]any{{"number": "7", "surname": "Cruz", "size": "M", "shortsSize": "M", "sizingType": "adult"}}

	status, body := h.do(t, http.MethodPost, "/api/custom-design", "customer", map[string]any{
		"clientName": "Ana", "email": "ana@example.com", "teamName": "Eagles",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields", body["error"])
	assert.Len(t, body["required"], 5)

	status, body = h.do(t, http.MethodPost, "/api/custom-design", "customer", map[string]any{
		"userId": "cust-2", "clientName": "Ana", "email": "ana@example.com", "teamName": "Eagles",
		"apparelType": "basketball_jersey", "members": members, "shippingMethod": "pickup", "pickupBranchId": 1,
		"isWalkIn": true,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Custom design order created successfully", body["message"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "cust-1", order["user_id"])
	assert.Equal(t, "Batangas City", order["pickup_location"])
	assert.Regexp(t, `^CD-`, order["order_number"])
	id := order["id"].(string)

	status, _ = h.do(t, http.MethodGet, "/api/custom-design/"+id, "other", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do(t, http.MethodGet, "/api/custom-design/"+id, "customer", nil)
	assert.Equal(t, http.StatusOK, status)

	membersJSON, err := json.Marshal(members)
	require.NoError(t, err)
	status, body = h.multipart(t, "/api/custom-design", "admin", map[string]string{
		"userId": "cust-2", "clientName": "Ben", "email": "ben@example.com", "teamName": "Hawks",
		"apparelType": "volleyball_jersey", "members": string(membersJSON), "shippingMethod": "delivery",
		"deliveryAddress": "12 Rizal St, Lipa", "isWalkIn": "true",
	}, formFile{"designImages", "logo.png", "image/png", "pixels"})
	require.Equal(t, http.StatusCreated, status, body)
	order = body["order"].(map[string]any)
	assert.Equal(t, "cust-2", order["user_id"])
	assert.Equal(t, domain.ShippingCOD, order["shipping_method"])
	assert.Regexp(t, `^WALKIN-CD-`, order["order_number"])
	assert.Equal(t, "12 Rizal St, Lipa", order["delivery_address"].(map[string]any)["address"])
	item := order["order_items"].([]any)[0].(map[string]any)
	images := item["design_images"].([]any)
	require.Len(t, images, 1)

	status, raw := h.doRaw(t, http.MethodGet, images[0].(string), "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pixels", string(raw))

	status, body = h.do(t, http.MethodGet, "/api/custom-design", "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["orders"], 2)
}

func TestUploadRoutes(t *testing.T) {
	h := newHarness(t)

	status, body := h.multipart(t, "/api/upload", "customer", nil, formFile{"file", "a.png", "image/png", "one"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["publicId"])

	status, body = h.multipart(t, "/api/upload/profile", "customer", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No image file provided", body["error"])

	status, body = h.multipart(t, "/api/upload", "customer", nil, formFile{"file", "a.txt", "text/plain", "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Only image files, PDF, AI, and PSD files are allowed!", body["error"])

	status, _ = h.multipart(t, "/api/upload/multiple", "customer", nil, formFile{"images", "a.png", "image/png", "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.multipart(t, "/api/upload/multiple", "admin", nil,
		formFile{"images", "a.png", "image/png", "x"}, formFile{"images", "b.jpg", "image/jpeg", "y"})
	require.Equal(t, http.StatusOK, status, body)
	ids := body["publicIds"].([]any)
	require.Len(t, ids, 2)

	status, body = h.do(t, http.MethodDelete, "/api/upload/"+ids[0].(string), "admin", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Image deleted successfully", body["message"])
	status, _ = h.do(t, http.MethodDelete, "/api/upload/"+ids[0].(string), "admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDesignUploadRoutes(t *testing.T) {
	h := newHarness(t)
	orderID := h.createOrder(t, "customer")
	path := "/api/design-upload/" + orderID

	status, body := h.multipart(t, path, "admin", nil, formFile{"designFiles", "v1.png", "image/png", "art"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only artists can upload design files", body["error"])

	status, body = h.multipart(t, path, "artist", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No design files provided", body["error"])

	status, body = h.multipart(t, path, "artist", nil, formFile{"designFiles", "v1.png", "image/png", "art"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["statusChanged"])
	assert.Equal(t, domain.OrderPending, body["previousStatus"])
	assert.Equal(t, domain.OrderSizing, body["newStatus"])
	files := body["designFiles"].([]any)
	require.Len(t, files, 1)
	publicID := files[0].(map[string]any)["publicId"].(string)

	status, body = h.do(t, http.MethodGet, path, "admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["designFiles"], 1)

	status, body = h.do(t, http.MethodDelete, path+"/"+publicID, "owner", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Empty(t, body["designFiles"])
}
