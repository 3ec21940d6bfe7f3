package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// testDB opens a fresh database in a temporary directory.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedOrder(t *testing.T, db *DB, mutate func(o *domain.Order)) *domain.Order {
	t.Helper()
	o := &domain.Order{
		UserID:         "user-1",
		OrderNumber:    "ORD-" + newID(),
		ShippingMethod: domain.ShippingPickup,
		Items:          []domain.OrderItem{{ProductID: "p-1", Name: "Jersey", Quantity: 1, Price: 100}},
		TotalAmount:    100,
	}
	if mutate != nil {
		mutate(o)
	}
	if err := db.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
	return o
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"branches", "products", "orders", "order_tracking", "order_reviews", "delivery_proof",
		"production_workflow", "production_workflow_history", "artist_profiles", "artist_tasks",
		"design_chat_rooms", "design_chat_messages", "branch_chat_rooms", "branch_chat_messages",
		"user_addresses", "user_profiles",
	}
	for _, table := range tables {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := db.InitSchemaContext(context.Background()); err != nil {
		t.Errorf("second InitSchemaContext() failed: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestBranches(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	for _, name := range []string{"Zamboanga", "Batangas"} {
		b := &domain.Branch{Name: name}
		if err := db.UpsertBranch(ctx, b); err != nil {
			t.Fatalf("UpsertBranch() failed: %v", err)
		}
		if b.ID == 0 {
			t.Fatal("UpsertBranch() did not assign an id")
		}
	}

	branches, err := db.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches() failed: %v", err)
	}
	if len(branches) != 2 || branches[0].Name != "Batangas" {
		t.Fatalf("ListBranches() = %+v, want Batangas first", branches)
	}

	b := branches[0]
	b.City = "Batangas City"
	if err := db.UpsertBranch(ctx, &b); err != nil {
		t.Fatalf("UpsertBranch() update failed: %v", err)
	}
	got, err := db.GetBranch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBranch() failed: %v", err)
	}
	if got.City != "Batangas City" {
		t.Errorf("City = %q, want Batangas City", got.City)
	}

	if _, err := db.GetBranch(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBranch(999) error = %v, want ErrNotFound", err)
	}
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	branch := &domain.Branch{Name: "Main"}
	if err := db.UpsertBranch(ctx, branch); err != nil {
		t.Fatalf("UpsertBranch() failed: %v", err)
	}

	older := &domain.Product{Name: "Cap", Price: 250, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &domain.Product{Name: "Jersey", Price: 900, BranchID: &branch.ID, AvailableSizes: []string{"S", "M"}}
	for _, p := range []*domain.Product{older, newer} {
		if err := db.CreateProduct(ctx, p); err != nil {
			t.Fatalf("CreateProduct() failed: %v", err)
		}
	}

	all, err := db.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		t.Fatalf("ListProducts() failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Jersey" {
		t.Fatalf("ListProducts() = %+v, want Jersey first", all)
	}
	if len(all[0].AvailableSizes) != 2 {
		t.Errorf("AvailableSizes = %v, want [S M]", all[0].AvailableSizes)
	}

	byBranch, err := db.ListProducts(ctx, store.ProductFilter{BranchID: &branch.ID})
	if err != nil {
		t.Fatalf("ListProducts(branch) failed: %v", err)
	}
	if len(byBranch) != 1 || byBranch[0].ID != newer.ID {
		t.Errorf("ListProducts(branch) = %+v", byBranch)
	}
	if all[0].BranchName != "Main" {
		t.Errorf("BranchName = %q, want Main", all[0].BranchName)
	}
	if all[1].BranchName != "" {
		t.Errorf("unassigned BranchName = %q, want empty", all[1].BranchName)
	}

	if err := db.UpdateProductStats(ctx, newer.ID, store.ProductStats{AverageRating: 4.5, ReviewCount: 2, SoldQuantity: 7}); err != nil {
		t.Fatalf("UpdateProductStats() failed: %v", err)
	}
	got, err := db.GetProduct(ctx, newer.ID)
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if got.AverageRating != 4.5 || got.SoldQuantity != 7 {
		t.Errorf("stats = %v/%d, want 4.5/7", got.AverageRating, got.SoldQuantity)
	}
	if got.BranchName != "Main" {
		t.Errorf("GetProduct() BranchName = %q, want Main", got.BranchName)
	}

	if err := db.DeleteProduct(ctx, older.ID); err != nil {
		t.Fatalf("DeleteProduct() failed: %v", err)
	}
	if err := db.DeleteProduct(ctx, older.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteProduct() error = %v, want ErrNotFound", err)
	}
}

func TestListOrders_FilterSortPage(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	for i, total := range []float64{300, 100, 200} {
		seedOrder(t, db, func(o *domain.Order) {
			o.TotalAmount = total
			o.PickupLocation = "Main"
			o.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			if i == 2 {
				o.Status = domain.OrderLayout
			}
		})
	}
	seedOrder(t, db, func(o *domain.Order) { o.PickupLocation = "North"; o.CreatedAt = base.Add(-time.Hour) })

	orders, total, err := db.ListOrders(ctx, store.OrderFilter{PickupBranch: "Main"})
	if err != nil {
		t.Fatalf("ListOrders() failed: %v", err)
	}
	if total != 3 || len(orders) != 3 {
		t.Fatalf("ListOrders() total = %d len = %d, want 3/3", total, len(orders))
	}
	if orders[0].TotalAmount != 200 {
		t.Errorf("default sort first total = %v, want newest (200)", orders[0].TotalAmount)
	}

	orders, _, err = db.ListOrders(ctx, store.OrderFilter{Sort: &store.Sort{Column: "total_amount", Ascending: true}, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListOrders(sorted) failed: %v", err)
	}
	if len(orders) != 2 || orders[0].TotalAmount != 100 || orders[1].TotalAmount != 200 {
		t.Errorf("sorted page = %v, %v", orders[0].TotalAmount, orders[1].TotalAmount)
	}

	orders, total, err = db.ListOrders(ctx, store.OrderFilter{Statuses: []string{domain.OrderLayout}})
	if err != nil {
		t.Fatalf("ListOrders(status) failed: %v", err)
	}
	if total != 1 || orders[0].Status != domain.OrderLayout {
		t.Errorf("ListOrders(status) total = %d", total)
	}

	since := base.Add(90 * time.Minute)
	_, total, err = db.ListOrders(ctx, store.OrderFilter{Since: &since})
	if err != nil {
		t.Fatalf("ListOrders(since) failed: %v", err)
	}
	if total != 1 {
		t.Errorf("ListOrders(since) total = %d, want 1", total)
	}
}

func TestOrder_RoundTripAndStatus(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	o := seedOrder(t, db, func(o *domain.Order) {
		o.ShippingMethod = domain.ShippingCOD
		o.DeliveryAddress = &domain.DeliveryAddress{ReceiverName: "Ana", City: "Manila"}
	})

	got, err := db.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.DeliveryAddress == nil || got.DeliveryAddress.ReceiverLabel() != "Ana" {
		t.Errorf("DeliveryAddress = %+v", got.DeliveryAddress)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Jersey" {
		t.Errorf("Items = %+v", got.Items)
	}

	updated, err := db.UpdateOrderStatus(ctx, o.ID, domain.OrderConfirmed)
	if err != nil {
		t.Fatalf("UpdateOrderStatus() failed: %v", err)
	}
	if updated.Status != domain.OrderConfirmed {
		t.Errorf("Status = %q, want confirmed", updated.Status)
	}
	if _, err := db.UpdateOrderStatus(ctx, "missing", domain.OrderConfirmed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateOrderStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFulfillment(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	o := seedOrder(t, db, func(o *domain.Order) { o.ShippingMethod = domain.ShippingCOD })

	for _, status := range []string{"shipped", "out_for_delivery"} {
		if err := db.AddTracking(ctx, &domain.TrackingEvent{OrderID: o.ID, Status: status}); err != nil {
			t.Fatalf("AddTracking() failed: %v", err)
		}
	}
	events, err := db.ListTracking(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListTracking() failed: %v", err)
	}
	if len(events) != 2 || events[0].Status != "shipped" {
		t.Errorf("ListTracking() = %+v", events)
	}

	r := &domain.Review{OrderID: o.ID, UserID: "user-1", Rating: 3}
	if err := db.UpsertReview(ctx, r); err != nil {
		t.Fatalf("UpsertReview() failed: %v", err)
	}
	firstID := r.ID
	r2 := &domain.Review{OrderID: o.ID, UserID: "user-1", Rating: 5, Comment: "great"}
	if err := db.UpsertReview(ctx, r2); err != nil {
		t.Fatalf("UpsertReview() second failed: %v", err)
	}
	if r2.ID != firstID || r2.Rating != 5 {
		t.Errorf("upsert produced id %s rating %d, want %s/5", r2.ID, r2.Rating, firstID)
	}
	reviews, err := db.ListReviews(ctx, []string{o.ID})
	if err != nil || len(reviews) != 1 {
		t.Fatalf("ListReviews() = %v, %v", reviews, err)
	}

	p := &domain.DeliveryProof{OrderID: o.ID, DeliveryPersonName: "Rider"}
	if err := db.AddDeliveryProof(ctx, p); err != nil {
		t.Fatalf("AddDeliveryProof() failed: %v", err)
	}
	verified, err := db.VerifyDeliveryProof(ctx, p.ID, "admin-1", time.Now())
	if err != nil {
		t.Fatalf("VerifyDeliveryProof() failed: %v", err)
	}
	if verified.VerifiedBy != "admin-1" || verified.VerifiedAt == nil {
		t.Errorf("verified = %+v", verified)
	}
	if _, err := db.VerifyDeliveryProof(ctx, "missing", "x", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("VerifyDeliveryProof(missing) error = %v", err)
	}
}

func TestWorkflowStages(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	o := seedOrder(t, db, nil)

	stages := make([]domain.WorkflowStage, 0, len(domain.Stages))
	for _, s := range domain.Stages {
		stages = append(stages, domain.WorkflowStage{OrderID: o.ID, Stage: s, Status: domain.StageStatusPending})
	}
	if err := db.InitStages(ctx, stages); err != nil {
		t.Fatalf("InitStages() failed: %v", err)
	}
	if err := db.InitStages(ctx, stages[:2]); err != nil {
		t.Fatalf("InitStages() again failed: %v", err)
	}

	got, err := db.ListStages(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListStages() failed: %v", err)
	}
	if len(got) != len(domain.Stages) {
		t.Fatalf("ListStages() len = %d, want %d", len(got), len(domain.Stages))
	}

	st, err := db.GetStage(ctx, o.ID, domain.StageLayout)
	if err != nil {
		t.Fatalf("GetStage() failed: %v", err)
	}
	now := time.Now()
	st.Status = domain.StageStatusInProgress
	st.StartedAt = &now
	if err := db.SaveStage(ctx, st); err != nil {
		t.Fatalf("SaveStage() failed: %v", err)
	}
	st2, _ := db.GetStage(ctx, o.ID, domain.StageLayout)
	if st2.Status != domain.StageStatusInProgress || st2.StartedAt == nil {
		t.Errorf("stage = %+v", st2)
	}

	missing := &domain.WorkflowStage{OrderID: "nope", Stage: domain.StageLayout, Status: domain.StageStatusPending}
	if err := db.SaveStage(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SaveStage(missing) error = %v, want ErrNotFound", err)
	}

	for i, status := range []string{domain.StageStatusInProgress, domain.StageStatusCompleted} {
		h := &domain.WorkflowHistory{OrderID: o.ID, Stage: domain.StageLayout, NewStatus: status, Timestamp: now.Add(time.Duration(i) * time.Second)}
		if err := db.AppendHistory(ctx, h); err != nil {
			t.Fatalf("AppendHistory() failed: %v", err)
		}
	}
	history, err := db.ListHistory(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListHistory() failed: %v", err)
	}
	if len(history) != 2 || history[0].NewStatus != domain.StageStatusCompleted {
		t.Errorf("ListHistory() = %+v, want newest first", history)
	}
}

func TestArtistsAndTasks(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := &domain.ArtistProfile{UserID: "u-art", ArtistName: "Mika", IsActive: true}
	if err := db.SaveArtistProfile(ctx, a); err != nil {
		t.Fatalf("SaveArtistProfile() failed: %v", err)
	}
	id := a.ID
	a.Bio = "Sublimation"
	a.ID = ""
	if err := db.SaveArtistProfile(ctx, a); err != nil {
		t.Fatalf("SaveArtistProfile() update failed: %v", err)
	}
	if a.ID != id || a.Bio != "Sublimation" {
		t.Errorf("profile upsert = %+v, want id %s", a, id)
	}

	inactive := &domain.ArtistProfile{UserID: "u-off", ArtistName: "Off", IsActive: false}
	if err := db.SaveArtistProfile(ctx, inactive); err != nil {
		t.Fatalf("SaveArtistProfile() failed: %v", err)
	}
	active, err := db.ListArtistProfiles(ctx, true)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListArtistProfiles(active) = %v, %v", active, err)
	}

	o := seedOrder(t, db, nil)
	task := &domain.ArtistTask{
		ArtistID: a.ID, OrderID: o.ID, TaskTitle: "Design", Quantity: 1,
		Priority: domain.PriorityMedium, Status: domain.TaskPending, TaskType: domain.TaskTypeRegularOrder,
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	now := time.Now()
	task.Status = domain.TaskInProgress
	task.StartedAt = &now
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	tasks, err := db.ListTasks(ctx, store.TaskFilter{ArtistID: a.ID, Statuses: domain.OpenTaskStatuses})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].StartedAt == nil || tasks[0].OrderID != o.ID {
		t.Errorf("ListTasks() = %+v", tasks)
	}

	standalone := &domain.ArtistTask{ArtistID: a.ID, TaskTitle: "Logo", Quantity: 1, Priority: domain.PriorityLow, Status: domain.TaskPending}
	if err := db.CreateTask(ctx, standalone); err != nil {
		t.Fatalf("CreateTask() without order failed: %v", err)
	}
	got, err := db.GetTask(ctx, standalone.ID)
	if err != nil || got.OrderID != "" {
		t.Errorf("GetTask() = %+v, %v", got, err)
	}
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	room := &domain.DesignChatRoom{OrderID: "o-1", CustomerID: "cust", ArtistID: "art"}
	if err := db.CreateDesignRoom(ctx, room); err != nil {
		t.Fatalf("CreateDesignRoom() failed: %v", err)
	}
	if err := db.CreateDesignRoom(ctx, &domain.DesignChatRoom{OrderID: "o-1", CustomerID: "cust"}); err == nil {
		t.Error("expected duplicate room for the same order to fail")
	}
	found, err := db.FindDesignRoomByOrder(ctx, "o-1")
	if err != nil || found.ID != room.ID {
		t.Fatalf("FindDesignRoomByOrder() = %+v, %v", found, err)
	}

	sent := time.Now()
	for i, sender := range []string{"cust", "art", "art"} {
		m := &domain.ChatMessage{
			RoomID: room.ID, SenderID: sender, SenderType: domain.SenderCustomer, Message: "hi",
			CreatedAt: sent.Add(time.Duration(i) * time.Millisecond),
		}
		if err := db.AddMessage(ctx, domain.ChatDesign, m); err != nil {
			t.Fatalf("AddMessage() failed: %v", err)
		}
	}
	n, err := db.MarkRead(ctx, domain.ChatDesign, room.ID, "cust")
	if err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("MarkRead() = %d, want 2", n)
	}
	msgs, err := db.ListMessages(ctx, domain.ChatDesign, room.ID)
	if err != nil || len(msgs) != 3 || msgs[0].SenderID != "cust" || msgs[0].IsRead {
		t.Errorf("ListMessages() = %+v, %v", msgs, err)
	}

	branch := &domain.Branch{Name: "Main"}
	if err := db.UpsertBranch(ctx, branch); err != nil {
		t.Fatalf("UpsertBranch() failed: %v", err)
	}
	br := &domain.BranchChatRoom{BranchID: branch.ID, CustomerID: "cust", Subject: "help"}
	if err := db.CreateBranchRoom(ctx, br); err != nil {
		t.Fatalf("CreateBranchRoom() failed: %v", err)
	}
	open, err := db.FindOpenBranchRoom(ctx, branch.ID, "cust")
	if err != nil || open.ID != br.ID {
		t.Fatalf("FindOpenBranchRoom() = %+v, %v", open, err)
	}
	br.Status = domain.RoomClosed
	if err := db.UpdateBranchRoom(ctx, br); err != nil {
		t.Fatalf("UpdateBranchRoom() failed: %v", err)
	}
	if _, err := db.FindOpenBranchRoom(ctx, branch.ID, "cust"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindOpenBranchRoom() after close error = %v, want ErrNotFound", err)
	}
	rooms, err := db.ListBranchRooms(ctx, store.BranchRoomFilter{BranchID: &branch.ID, Status: domain.RoomClosed})
	if err != nil || len(rooms) != 1 {
		t.Errorf("ListBranchRooms() = %+v, %v", rooms, err)
	}

	if err := db.AddMessage(ctx, domain.ChatKind("other"), &domain.ChatMessage{}); err == nil {
		t.Error("expected unknown chat kind to fail")
	}
}

func TestAddressesAndProfiles(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	first := &domain.Address{UserID: "u", FullName: "Ana", City: "Manila", CreatedAt: time.Now().Add(-time.Hour)}
	second := &domain.Address{UserID: "u", FullName: "Ana", City: "Cebu", IsDefault: true}
	for _, a := range []*domain.Address{first, second} {
		if err := db.CreateAddress(ctx, a); err != nil {
			t.Fatalf("CreateAddress() failed: %v", err)
		}
	}
	list, err := db.ListAddresses(ctx, "u")
	if err != nil || len(list) != 2 || list[0].City != "Cebu" {
		t.Fatalf("ListAddresses() = %+v, %v", list, err)
	}

	if err := db.ClearDefaultAddress(ctx, "u"); err != nil {
		t.Fatalf("ClearDefaultAddress() failed: %v", err)
	}
	first.IsDefault = true
	if err := db.UpdateAddress(ctx, first); err != nil {
		t.Fatalf("UpdateAddress() failed: %v", err)
	}
	list, _ = db.ListAddresses(ctx, "u")
	if list[0].ID != first.ID {
		t.Errorf("default address = %s, want %s", list[0].ID, first.ID)
	}

	if err := db.DeleteAddress(ctx, "someone-else", first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteAddress(other user) error = %v, want ErrNotFound", err)
	}

	if err := db.UpsertUserProfile(ctx, &domain.UserProfile{UserID: "u", FullName: "Ana Cruz"}); err != nil {
		t.Fatalf("UpsertUserProfile() failed: %v", err)
	}
	profiles, err := db.GetUserProfiles(ctx, []string{"u", "missing"})
	if err != nil {
		t.Fatalf("GetUserProfiles() failed: %v", err)
	}
	if len(profiles) != 1 || profiles["u"].FullName != "Ana Cruz" {
		t.Errorf("GetUserProfiles() = %+v", profiles)
	}
}

func TestListOrders_ByIDsAndType(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := seedOrder(t, db, nil)
	b := seedOrder(t, db, func(o *domain.Order) { o.OrderType = domain.OrderTypeCustomDesign })
	seedOrder(t, db, nil)

	orders, total, err := db.ListOrders(ctx, store.OrderFilter{IDs: []string{a.ID, b.ID}})
	if err != nil {
		t.Fatalf("ListOrders(ids) failed: %v", err)
	}
	if total != 2 || len(orders) != 2 {
		t.Errorf("ListOrders(ids) total = %d len = %d, want 2/2", total, len(orders))
	}

	orders, _, err = db.ListOrders(ctx, store.OrderFilter{OrderType: domain.OrderTypeCustomDesign})
	if err != nil {
		t.Fatalf("ListOrders(type) failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != b.ID {
		t.Errorf("ListOrders(type) = %+v", orders)
	}
}

func TestSetDesignFiles(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	o := seedOrder(t, db, nil)

	got, err := db.GetOrder(ctx, o.ID)
	if err != nil || len(got.DesignFiles) != 0 {
		t.Fatalf("GetOrder() design files = %+v, %v", got, err)
	}

	files := []domain.DesignFile{{Filename: "front.png", URL: "/media/front.png", PublicID: "designs/front.png", UploadedAt: time.Now()}}
	updated, err := db.SetDesignFiles(ctx, o.ID, files)
	if err != nil {
		t.Fatalf("SetDesignFiles() failed: %v", err)
	}
	if len(updated.DesignFiles) != 1 || updated.DesignFiles[0].PublicID != "designs/front.png" {
		t.Errorf("DesignFiles = %+v", updated.DesignFiles)
	}
	if _, err := db.SetDesignFiles(ctx, "missing", files); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetDesignFiles(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNewsletterSubscribers(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	if _, err := db.GetSubscriber(ctx, "ana@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetSubscriber(missing) error = %v, want ErrNotFound", err)
	}

	older := &domain.Subscriber{Email: "ana@example.com", IsActive: true, Source: "website", SubscribedAt: time.Now().Add(-time.Hour)}
	newer := &domain.Subscriber{Email: "ben@example.com", IsActive: true, Source: "website"}
	for _, s := range []*domain.Subscriber{older, newer} {
		if err := db.SaveSubscriber(ctx, s); err != nil {
			t.Fatalf("SaveSubscriber() failed: %v", err)
		}
	}

	now := time.Now()
	older.IsActive = false
	older.UnsubscribedAt = &now
	if err := db.SaveSubscriber(ctx, older); err != nil {
		t.Fatalf("SaveSubscriber() update failed: %v", err)
	}
	got, err := db.GetSubscriber(ctx, "ANA@example.com")
	if err != nil || got.IsActive || got.UnsubscribedAt == nil {
		t.Errorf("GetSubscriber() = %+v, %v", got, err)
	}

	active, err := db.ListSubscribers(ctx, true)
	if err != nil || len(active) != 1 || active[0].Email != "ben@example.com" {
		t.Errorf("ListSubscribers(active) = %+v, %v", active, err)
	}
	all, err := db.ListSubscribers(ctx, false)
	if err != nil || len(all) != 2 || all[0].Email != "ben@example.com" {
		t.Errorf("ListSubscribers() = %+v, %v", all, err)
	}
}

func TestDeleteProfiles(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := &domain.ArtistProfile{UserID: "u-art", ArtistName: "Mika", IsActive: true}
	if err := db.SaveArtistProfile(ctx, a); err != nil {
		t.Fatalf("SaveArtistProfile() failed: %v", err)
	}
	if err := db.DeleteArtistProfile(ctx, a.ID); err != nil {
		t.Fatalf("DeleteArtistProfile() failed: %v", err)
	}
	if err := db.DeleteArtistProfile(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteArtistProfile() error = %v, want ErrNotFound", err)
	}

	if err := db.UpsertUserProfile(ctx, &domain.UserProfile{UserID: "u", FullName: "Ana"}); err != nil {
		t.Fatalf("UpsertUserProfile() failed: %v", err)
	}
	if err := db.CreateAddress(ctx, &domain.Address{UserID: "u", FullName: "Ana", City: "Manila"}); err != nil {
		t.Fatalf("CreateAddress() failed: %v", err)
	}
	if err := db.DeleteUserProfile(ctx, "u"); err != nil {
		t.Fatalf("DeleteUserProfile() failed: %v", err)
	}
	profiles, _ := db.GetUserProfiles(ctx, []string{"u"})
	addresses, _ := db.ListAddresses(ctx, "u")
	if len(profiles) != 0 || len(addresses) != 0 {
		t.Errorf("after delete profiles = %v addresses = %v", profiles, addresses)
	}
}
