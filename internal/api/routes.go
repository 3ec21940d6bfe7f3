package api

import (
	"net/http"

	"github.com/yohanns/storefront/internal/domain"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	if s.files != nil {
		mux.Handle("GET "+s.prefix+"/", s.files)
	}

	// Catalog
	mux.HandleFunc("GET /api/branches", s.listBranches)
	mux.HandleFunc("GET /api/branches/{id}", s.getBranch)
	mux.HandleFunc("GET /api/products", s.listProducts)
	mux.HandleFunc("GET /api/products/branch/{branchId}", s.listBranchProducts)
	mux.HandleFunc("GET /api/products/{id}", s.getProduct)
	mux.Handle("POST /api/products", s.staff(s.createProduct))
	mux.Handle("PUT /api/products/{id}", s.staff(s.updateProduct))
	mux.Handle("DELETE /api/products/{id}", s.staff(s.deleteProduct))

	// Orders
	mux.Handle("GET /api/orders", s.staff(s.listOrders))
	mux.Handle("GET /api/orders/mine", s.authed(s.listMyOrders))
	mux.Handle("GET /api/orders/{id}", s.authed(s.getOrder))
	mux.Handle("POST /api/orders", s.authed(s.createOrder))
	mux.Handle("PATCH /api/orders/{id}/status", s.staff(s.updateOrderStatus))

	// Custom design intake and artwork
	mux.Handle("POST /api/custom-design", s.authed(s.createCustomDesign))
	mux.Handle("GET /api/custom-design", s.staff(s.listCustomDesigns))
	mux.Handle("GET /api/custom-design/{id}", s.authed(s.getCustomDesign))
	mux.Handle("POST /api/design-upload/{orderId}", s.authed(s.uploadDesignFiles))
	mux.Handle("GET /api/design-upload/{orderId}", s.staff(s.listDesignFiles))
	mux.Handle("DELETE /api/design-upload/{orderId}/{publicId...}", s.staff(s.deleteDesignFile))

	// Uploads
	mux.Handle("POST /api/upload", s.authed(s.uploadFile))
	mux.Handle("POST /api/upload/profile", s.authed(s.uploadProfileImage))
	mux.Handle("POST /api/upload/single", s.staff(s.uploadImage))
	mux.Handle("POST /api/upload/multiple", s.staff(s.uploadImages))
	mux.Handle("DELETE /api/upload/{publicId...}", s.staff(s.deleteUpload))

	// COD fulfillment
	mux.Handle("GET /api/order-tracking/{orderId}", s.authed(s.listTracking))
	mux.Handle("POST /api/order-tracking", s.staff(s.addTracking))
	mux.Handle("GET /api/order-tracking/review/{orderId}", s.authed(s.getReview))
	mux.Handle("POST /api/order-tracking/review", s.authed(s.saveReview))
	mux.Handle("GET /api/order-tracking/delivery-proof/{orderId}", s.authed(s.getDeliveryProof))
	mux.Handle("POST /api/order-tracking/delivery-proof", s.staff(s.addDeliveryProof))
	mux.Handle("PUT /api/order-tracking/delivery-proof/{proofId}/verify", s.staff(s.verifyDeliveryProof))

	// Production workflow
	production := func(h http.HandlerFunc) http.Handler {
		return s.role(h, domain.RoleAdmin, domain.RoleOwner, domain.RoleArtist)
	}
	mux.Handle("GET /api/production-workflow/meta/stages", http.HandlerFunc(s.workflowMeta))
	mux.Handle("GET /api/production-workflow/status/overview", production(s.workflowOverview))
	mux.Handle("GET /api/production-workflow/{orderId}", production(s.workflowStages))
	mux.Handle("GET /api/production-workflow/{orderId}/history", production(s.workflowHistory))
	mux.Handle("GET /api/production-workflow/{orderId}/progress", production(s.workflowProgress))
	mux.Handle("PUT /api/production-workflow/{orderId}/stage/{stage}", production(s.updateStage))
	mux.Handle("PUT /api/production-workflow/{orderId}/bulk-update", production(s.bulkUpdateStages))

	// Artist dashboard
	artistOnly := func(h http.HandlerFunc) http.Handler { return s.role(h, domain.RoleArtist) }
	mux.Handle("GET /api/artist/profile", artistOnly(s.artistProfile))
	mux.Handle("PUT /api/artist/profile", artistOnly(s.updateArtistProfile))
	mux.Handle("GET /api/artist/metrics", artistOnly(s.artistMetrics))
	mux.Handle("GET /api/artist/workload", artistOnly(s.artistWorkload))
	mux.Handle("GET /api/artist/tasks", artistOnly(s.artistTasks))
	mux.Handle("PATCH /api/artist/tasks/{taskId}/status", artistOnly(s.updateTaskStatus))

	// Design chat
	mux.Handle("POST /api/chat/create-room", s.authed(s.createDesignRoom))
	mux.Handle("POST /api/chat/send-message", s.authed(s.sendDesignMessage))
	mux.Handle("GET /api/chat/messages/{roomId}", s.authed(s.designMessages))
	mux.Handle("GET /api/chat/customer-rooms/{customerId}", s.authed(s.customerDesignRooms))
	mux.Handle("GET /api/chat/artist-rooms/{artistId}", s.authed(s.artistDesignRooms))
	mux.Handle("POST /api/chat/mark-read", s.authed(s.markDesignRead))
	mux.Handle("GET /api/chat/customer-info/{roomId}", s.authed(s.designCustomerInfo))
	mux.Handle("GET /api/chat/room-by-order/{orderId}", s.authed(s.designRoomByOrder))
	mux.Handle("POST /api/chat/update-room", s.authed(s.updateDesignRoom))
	mux.Handle("POST /api/chat/close-room", s.authed(s.closeDesignRoom))

	// Branch support chat
	mux.Handle("POST /api/branch-chat/rooms", s.authed(s.openBranchRoom))
	mux.Handle("GET /api/branch-chat/rooms/customer", s.authed(s.customerBranchRooms))
	mux.Handle("GET /api/branch-chat/rooms/admin", s.authed(s.adminBranchRooms))
	mux.Handle("GET /api/branch-chat/rooms/{roomId}/messages", s.authed(s.branchMessages))
	mux.Handle("POST /api/branch-chat/rooms/{roomId}/messages", s.authed(s.sendBranchMessage))
	mux.Handle("POST /api/branch-chat/rooms/{roomId}/mark-read", s.authed(s.markBranchRead))
	mux.Handle("POST /api/branch-chat/rooms/{roomId}/close", s.authed(s.closeBranchRoom))

	// Addresses
	mux.Handle("GET /api/user/address", s.authed(s.defaultAddress))
	mux.Handle("GET /api/user/addresses", s.authed(s.listAddresses))
	mux.Handle("POST /api/user/address", s.authed(s.saveAddress))
	mux.Handle("PUT /api/user/address/{id}", s.authed(s.updateAddress))
	mux.Handle("DELETE /api/user/address/{id}", s.authed(s.deleteAddress))
	mux.Handle("PATCH /api/user/address/{id}/default", s.authed(s.setDefaultAddress))

	// Newsletter
	mux.Handle("POST /api/newsletter/subscribe", s.auth.Optional(http.HandlerFunc(s.subscribe)))
	mux.HandleFunc("POST /api/newsletter/unsubscribe", s.unsubscribe)
	mux.HandleFunc("GET /api/newsletter/unsubscribe", s.unsubscribe)
	mux.Handle("GET /api/newsletter/subscribers", s.staff(s.listSubscribers))

	// Back office
	mux.Handle("GET /api/admin/dashboard", s.staff(s.dashboardSummary))
	mux.Handle("GET /api/admin/artists", s.staff(s.listArtists))
	mux.Handle("GET /api/admin/artists/workload", s.staff(s.artistWorkloadSummary))
	mux.Handle("POST /api/admin/artists/backfill", s.staff(s.backfillTasks))
	mux.Handle("PATCH /api/admin/artists/{id}/toggle-status", s.authed(s.toggleArtist))
	mux.Handle("PUT /api/admin/artists/{id}", s.owner(s.updateArtistAccount))
	mux.Handle("DELETE /api/admin/artists/{id}", s.staff(s.deleteArtistAccount))
	mux.Handle("GET /api/admin/users", s.owner(s.listAdmins))
	mux.Handle("POST /api/admin/users", s.owner(s.createAdmin))
	mux.Handle("DELETE /api/admin/users/{id}", s.owner(s.deleteAdmin))
	mux.Handle("GET /api/admin/customers", s.staff(s.listCustomers))
	mux.Handle("DELETE /api/admin/customers/{id}", s.staff(s.deleteCustomer))
	mux.Handle("GET /api/ai/health", http.HandlerFunc(s.aiHealth))

	// Analytics
	mux.Handle("GET /api/analytics/dashboard", s.staff(s.analytics(s.analyticsDashboard)))
	mux.Handle("GET /api/analytics/sales-trends", s.staff(s.analytics(s.salesTrends)))
	mux.Handle("GET /api/analytics/product-performance", s.staff(s.analytics(s.productPerformance)))
	mux.Handle("GET /api/analytics/customer-analytics", s.staff(s.analytics(s.customerAnalytics)))
	mux.Handle("GET /api/analytics/sales-forecast", s.staff(s.analytics(s.salesForecast)))
	mux.Handle("GET /api/analytics/geographic-distribution", s.staff(s.analytics(s.geographicDistribution)))
	mux.Handle("POST /api/ai/analytics", s.staff(s.aiAnalytics))

	return mux
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.auth.Authenticate(h)
}

func (s *Server) staff(h http.HandlerFunc) http.Handler {
	return s.auth.Authenticate(s.auth.RequireAdminOrOwner(h))
}

func (s *Server) owner(h http.HandlerFunc) http.Handler {
	return s.auth.Authenticate(s.auth.RequireOwner(h))
}

func (s *Server) role(h http.HandlerFunc, roles ...domain.Role) http.Handler {
	return s.auth.Authenticate(s.auth.RequireRole(roles...)(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"ok": true}
	if s.hub != nil {
		body["clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, body)
}
