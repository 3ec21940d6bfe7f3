package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/store"
)

// restServer serves a fixed orders table and a products table the way
// PostgREST does: offset/limit ranges and an exact Content-Range count.
type restServer struct {
	mu       sync.Mutex
	orders   int
	requests []string
	selects  []string
}

func (rs *restServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rs.mu.Lock()
	rs.requests = append(rs.requests, r.URL.RawQuery)
	rs.selects = append(rs.selects, r.URL.Query().Get("select"))
	rs.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/rest/v1/orders":
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit > orderPageSize {
			limit = orderPageSize
		}
		end := min(offset+limit, rs.orders)
		rows := []map[string]any{}
		for i := offset; i < end; i++ {
			rows = append(rows, map[string]any{
				"id": fmt.Sprintf("o-%d", i), "user_id": "u", "order_number": fmt.Sprintf("ORD-%d", i),
				"status": "pending", "order_items": []any{},
			})
		}
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, end-1, rs.orders))
		_ = json.NewEncoder(w).Encode(rows)
	case "/rest/v1/products":
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "p-1", "name": "Jersey", "price": 900, "branch_id": 2, "branches": map[string]any{"name": "Batangas City"}},
			{"id": "p-2", "name": "Cap", "price": 250, "branch_id": nil, "branches": nil},
		})
	default:
		http.NotFound(w, r)
	}
}

func newRestStore(t *testing.T, orders int) (*Store, *restServer) {
	t.Helper()
	rs := &restServer{orders: orders}
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)
	s, err := New(srv.URL, "service-role-key")
	require.NoError(t, err)
	return s, rs
}

func TestListOrders_PagesUntilShortPage(t *testing.T) {
	s, rs := newRestStore(t, 2*orderPageSize+5)

	orders, total, err := s.ListOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 2*orderPageSize+5)
	assert.Equal(t, 2*orderPageSize+5, total)
	assert.Equal(t, "o-0", orders[0].ID)
	assert.Equal(t, fmt.Sprintf("o-%d", 2*orderPageSize+4), orders[len(orders)-1].ID)
	assert.Len(t, rs.requests, 3)
}

func TestListOrders_ExactPageMultipleStopsOnEmptyPage(t *testing.T) {
	s, rs := newRestStore(t, orderPageSize)

	orders, _, err := s.ListOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, orderPageSize)
	assert.Len(t, rs.requests, 2)
}

func TestListOrders_LimitIsOneRequest(t *testing.T) {
	s, rs := newRestStore(t, 50)

	orders, total, err := s.ListOrders(context.Background(), store.OrderFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, orders, 10)
	assert.Equal(t, 50, total)
	assert.Equal(t, "o-20", orders[0].ID)
	require.Len(t, rs.requests, 1)
	assert.Contains(t, rs.requests[0], "offset=20")
	assert.Contains(t, rs.requests[0], "limit=10")
}

func TestListProducts_JoinsBranchName(t *testing.T) {
	s, rs := newRestStore(t, 0)

	products, err := s.ListProducts(context.Background(), store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Batangas City", products[0].BranchName)
	require.NotNil(t, products[0].BranchID)
	assert.Equal(t, int64(2), *products[0].BranchID)
	assert.Empty(t, products[1].BranchName)
	assert.Equal(t, "*,branches(name)", rs.selects[0])

	p, err := s.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Batangas City", p.BranchName)
}
