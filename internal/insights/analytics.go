package insights

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const (
	recentWindow        = 30 * 24 * time.Hour
	recentOrderLimit    = 10
	recentScanLimit     = 1000
	topGroupLimit       = 7
	topCustomerLimit    = 10
	topLocationProducts = 3
	onlineOrdersLabel   = "Online Orders"
	unknownLocation     = "Unknown Location"
)

var (
	cancelledStatuses  = statusSet("cancelled", "canceled")
	completedStatuses  = statusSet("completed", "delivered", "picked_up_delivered", "picked_up", "finished")
	processingStatuses = statusSet("processing", "confirmed", "layout", "packing_completing", "in_production",
		"ready_for_pickup", "ready_for_delivery", "sizing")
)

var branchColors = []string{
	"#1e3a8a", "#0d9488", "#166534", "#0284c7", "#0f766e",
	"#0369a1", "#7c3aed", "#64748b", "#15803d",
}

func statusSet(statuses ...string) map[string]bool {
	m := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

func isCancelled(o *domain.Order) bool {
	return cancelledStatuses[strings.ToLower(o.Status)]
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StatusBucket is a count and its share of non-cancelled orders.
type StatusBucket struct {
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// OrderStatusBreakdown groups orders into dashboard buckets. Total
// excludes cancelled orders.
type OrderStatusBreakdown struct {
	Completed  StatusBucket `json:"completed"`
	Processing StatusBucket `json:"processing"`
	Pending    StatusBucket `json:"pending"`
	Cancelled  StatusBucket `json:"cancelled"`
	Total      int          `json:"total"`
}

// PeriodSales is revenue for one month or year.
type PeriodSales struct {
	Key         string    `json:"key,omitempty"`
	Year        int       `json:"year"`
	Month       int       `json:"month,omitempty"`
	Label       string    `json:"label"`
	Date        time.Time `json:"date"`
	Sales       float64   `json:"sales"`
	Granularity string    `json:"granularity"`
}

// SalesOverTime holds monthly and yearly revenue series.
type SalesOverTime struct {
	Monthly []PeriodSales `json:"monthly"`
	Yearly  []PeriodSales `json:"yearly"`
}

// BranchSales is revenue attributed to one pickup location.
type BranchSales struct {
	Branch string  `json:"branch"`
	Sales  float64 `json:"sales"`
	Color  string  `json:"color"`
}

// GroupSales is what one product group sold.
type GroupSales struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Orders   int     `json:"orders"`
	Revenue  float64 `json:"revenue"`
}

// CategorySales is what one item category sold.
type CategorySales struct {
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
	Orders   int    `json:"orders"`
}

// DashboardSummary holds the headline figures.
type DashboardSummary struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	TotalOrders       int     `json:"totalOrders"`
	TotalCustomers    int     `json:"totalCustomers"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

// RecentOrder is a row of the dashboard's recent orders list.
type RecentOrder struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	TotalAmount float64   `json:"total_amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
}

// Dashboard is the analytics overview. Revenue series stop before the
// current month so partial months do not skew them.
type Dashboard struct {
	SalesOverTime SalesOverTime        `json:"salesOverTime"`
	SalesByBranch []BranchSales        `json:"salesByBranch"`
	OrderStatus   OrderStatusBreakdown `json:"orderStatus"`
	TopProducts   []GroupSales         `json:"topProducts"`
	TopCategories []CategorySales      `json:"topCategories"`
	Summary       DashboardSummary     `json:"summary"`
	RecentOrders  []RecentOrder        `json:"recentOrders"`
}

// Dashboard computes the analytics overview for sc.
func (s *Service) Dashboard(ctx context.Context, sc Scope) (*Dashboard, error) {
	orders, err := s.orders(ctx, sc, store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return buildDashboard(orders, sc, now), nil
}

func buildDashboard(orders []domain.Order, sc Scope, now time.Time) *Dashboard {
	d := &Dashboard{
		SalesOverTime: SalesOverTime{Monthly: []PeriodSales{}, Yearly: []PeriodSales{}},
		SalesByBranch: []BranchSales{},
		TopProducts:   []GroupSales{},
		TopCategories: []CategorySales{},
		RecentOrders:  []RecentOrder{},
	}
	current := monthStart(now)
	recentSince := dayStart(now.Add(-recentWindow))

	monthly := map[time.Time]float64{}
	type branchTotal struct {
		name  string
		sales float64
	}
	branches := map[string]*branchTotal{}
	var branchOrder []string
	customers := map[string]bool{}
	var recent []domain.Order

	for i := range orders {
		o := &orders[i]
		status := strings.ToLower(o.Status)
		switch {
		case cancelledStatuses[status]:
			d.OrderStatus.Cancelled.Count++
			continue
		case completedStatuses[status]:
			d.OrderStatus.Completed.Count++
		case processingStatuses[status]:
			d.OrderStatus.Processing.Count++
		default:
			d.OrderStatus.Pending.Count++
		}
		d.OrderStatus.Total++

		if o.CreatedAt.Before(current) {
			monthly[monthStart(o.CreatedAt)] += o.TotalAmount
			customers[o.UserID] = true

			name := strings.TrimSpace(o.PickupLocation)
			if !sc.All() {
				name = sc.BranchName
			} else if name == "" {
				name = onlineOrdersLabel
			}
			key := branchKey(name)
			if key == "" {
				key = name
			}
			b, ok := branches[key]
			if !ok {
				b = &branchTotal{name: name}
				branches[key] = b
				branchOrder = append(branchOrder, key)
			}
			b.sales += o.TotalAmount
		}
		if !o.CreatedAt.Before(recentSince) {
			recent = append(recent, *o)
		}
	}

	total := d.OrderStatus.Total
	for _, b := range []*StatusBucket{&d.OrderStatus.Completed, &d.OrderStatus.Processing, &d.OrderStatus.Pending, &d.OrderStatus.Cancelled} {
		if total > 0 {
			b.Percentage = int(roundHalfUp(float64(b.Count) / float64(total) * 100))
		}
	}

	months := make([]time.Time, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })
	yearly := map[int]float64{}
	var years []int
	for _, m := range months {
		sales := round2(monthly[m])
		d.SalesOverTime.Monthly = append(d.SalesOverTime.Monthly, PeriodSales{
			Key:         m.Format("2006-01"),
			Year:        m.Year(),
			Month:       int(m.Month()),
			Label:       m.Format("Jan 2006"),
			Date:        m,
			Sales:       sales,
			Granularity: "monthly",
		})
		if _, ok := yearly[m.Year()]; !ok {
			years = append(years, m.Year())
		}
		yearly[m.Year()] += sales
		d.Summary.TotalRevenue += sales
	}
	for _, y := range years {
		d.SalesOverTime.Yearly = append(d.SalesOverTime.Yearly, PeriodSales{
			Year:        y,
			Label:       strconv.Itoa(y),
			Date:        time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC),
			Sales:       round2(yearly[y]),
			Granularity: "yearly",
		})
	}

	for _, key := range branchOrder {
		b := branches[key]
		d.SalesByBranch = append(d.SalesByBranch, BranchSales{Branch: b.name, Sales: round2(b.sales)})
	}
	slices.SortStableFunc(d.SalesByBranch, func(a, b BranchSales) int { return cmp.Compare(b.Sales, a.Sales) })
	for i := range d.SalesByBranch {
		d.SalesByBranch[i].Color = branchColors[i%len(branchColors)]
	}

	slices.SortStableFunc(recent, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(recent) > recentScanLimit {
		recent = recent[:recentScanLimit]
	}
	for i, o := range recent {
		if i == recentOrderLimit {
			break
		}
		d.RecentOrders = append(d.RecentOrders, RecentOrder{
			ID: o.ID, OrderNumber: o.OrderNumber, TotalAmount: o.TotalAmount,
			Status: o.Status, CreatedAt: o.CreatedAt, UserID: o.UserID,
		})
	}
	d.TopProducts, d.TopCategories = groupSales(recent)

	d.Summary.TotalRevenue = round2(d.Summary.TotalRevenue)
	d.Summary.TotalOrders = total
	d.Summary.TotalCustomers = len(customers)
	if total > 0 {
		d.Summary.AverageOrderValue = round2(d.Summary.TotalRevenue / float64(total))
	}
	return d
}

func groupSales(orders []domain.Order) ([]GroupSales, []CategorySales) {
	type tally struct {
		quantity int
		revenue  float64
		orders   map[string]bool
	}
	groups := map[string]*tally{}
	categories := map[string]*tally{}
	bump := func(m map[string]*tally, key, orderID string, qty int, revenue float64) {
		t, ok := m[key]
		if !ok {
			t = &tally{orders: map[string]bool{}}
			m[key] = t
		}
		t.quantity += qty
		t.revenue += revenue
		t.orders[orderID] = true
	}
	for _, o := range orders {
		for _, it := range o.Items {
			category := strings.TrimSpace(it.Category)
			if category == "" {
				category = "Other"
			}
			qty := max(it.Quantity, 0)
			bump(groups, ProductGroup(it), o.ID, qty, float64(qty)*it.Price)
			bump(categories, category, o.ID, qty, 0)
		}
	}

	top := make([]GroupSales, 0, len(groups))
	for name, t := range groups {
		top = append(top, GroupSales{Product: name, Quantity: t.quantity, Orders: len(t.orders), Revenue: round2(t.revenue)})
	}
	slices.SortFunc(top, func(a, b GroupSales) int {
		return cmp.Or(cmp.Compare(b.Quantity, a.Quantity), strings.Compare(a.Product, b.Product))
	})
	if len(top) > topGroupLimit {
		top = top[:topGroupLimit]
	}

	cats := make([]CategorySales, 0, len(categories))
	for name, t := range categories {
		cats = append(cats, CategorySales{Category: name, Quantity: t.quantity, Orders: len(t.orders)})
	}
	slices.SortFunc(cats, func(a, b CategorySales) int {
		return cmp.Or(cmp.Compare(b.Quantity, a.Quantity), strings.Compare(a.Category, b.Category))
	})
	return top, cats
}

var apparelGroups = map[string]string{
	"basketball_jersey": "Basketball Jerseys",
	"volleyball_jersey": "Volleyball Jerseys",
	"hoodie":            "Hoodies",
	"tshirt":            "T-shirts",
	"longsleeves":       "Long Sleeves",
	"uniforms":          "Uniforms",
}

var keywordGroups = []struct{ keyword, group string }{
	{"basketball", "Basketball Jerseys"},
	{"volleyball", "Volleyball Jerseys"},
	{"hoodie", "Hoodies"},
	{"uniform", "Uniforms"},
	{"jersey", "Custom Jerseys"},
	{"ball", "Sports Balls"},
	{"troph", "Trophies"},
	{"medal", "Medals"},
}

// ProductGroup buckets an order item for the top products chart. Custom
// design apparel types win, then jersey categories, then keywords in the
// category and name.
func ProductGroup(it domain.OrderItem) string {
	if g, ok := apparelGroups[strings.ToLower(it.ApparelType)]; ok {
		return g
	}
	category := strings.ToLower(cmp.Or(it.Category, it.ProductType))
	name := strings.ToLower(it.Name)
	if category == "jerseys" || category == "jersey" {
		switch {
		case strings.Contains(name, "basketball"):
			return "Basketball Jerseys"
		case strings.Contains(name, "volleyball"):
			return "Volleyball Jerseys"
		}
		return "Custom Jerseys"
	}
	text := category + " " + name
	for _, k := range keywordGroups {
		if strings.Contains(text, k.keyword) {
			return k.group
		}
	}
	return "Other Products"
}

// TrendPoint is one day of sales.
type TrendPoint struct {
	Date   string  `json:"date"`
	Sales  float64 `json:"sales"`
	Orders int     `json:"orders"`
}

// SalesTrends returns daily sales over the last days, oldest first.
func (s *Service) SalesTrends(ctx context.Context, sc Scope, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	orders, err := s.orders(ctx, sc, store.OrderFilter{Since: &since})
	if err != nil {
		return nil, err
	}
	byDay := map[string]*TrendPoint{}
	for i := range orders {
		o := &orders[i]
		if isCancelled(o) {
			continue
		}
		day := o.CreatedAt.UTC().Format(time.DateOnly)
		p, ok := byDay[day]
		if !ok {
			p = &TrendPoint{Date: day}
			byDay[day] = p
		}
		p.Sales += o.TotalAmount
		p.Orders++
	}
	out := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		p.Sales = round2(p.Sales)
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b TrendPoint) int { return strings.Compare(a.Date, b.Date) })
	return out, nil
}

// ProductPerformance is what one product sold.
type ProductPerformance struct {
	Name                string  `json:"name"`
	Category            string  `json:"category"`
	TotalSold           int     `json:"totalSold"`
	TotalRevenue        float64 `json:"totalRevenue"`
	OrderCount          int     `json:"orderCount"`
	AvgQuantityPerOrder float64 `json:"avgQuantityPerOrder"`
}

// ProductPerformance ranks products sold in the last 30 days, leaving out
// the current month, by quantity.
func (s *Service) ProductPerformance(ctx context.Context, sc Scope) ([]ProductPerformance, error) {
	now := s.now().UTC()
	since := now.Add(-recentWindow)
	current := monthStart(now)
	orders, err := s.orders(ctx, sc, store.OrderFilter{Since: &since})
	if err != nil {
		return nil, err
	}

	type tally struct {
		ProductPerformance
		orders map[string]bool
		lines  int
	}
	stats := map[string]*tally{}
	var keys []string
	for i := range orders {
		o := &orders[i]
		if isCancelled(o) || !o.CreatedAt.Before(current) {
			continue
		}
		for _, it := range o.Items {
			name := cmp.Or(it.Name, "Unknown")
			category := cmp.Or(it.Category, "Unknown")
			key := name + "-" + category
			t, ok := stats[key]
			if !ok {
				t = &tally{ProductPerformance: ProductPerformance{Name: name, Category: category}, orders: map[string]bool{}}
				stats[key] = t
				keys = append(keys, key)
			}
			qty := max(it.Quantity, 0)
			t.TotalSold += qty
			t.TotalRevenue += float64(qty) * it.Price
			t.orders[o.ID] = true
			t.lines++
		}
	}

	out := make([]ProductPerformance, 0, len(stats))
	for _, key := range keys {
		t := stats[key]
		p := t.ProductPerformance
		p.TotalRevenue = round2(p.TotalRevenue)
		p.OrderCount = len(t.orders)
		if t.lines > 0 {
			p.AvgQuantityPerOrder = round2(float64(p.TotalSold) / float64(t.lines))
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b ProductPerformance) int { return cmp.Compare(b.TotalSold, a.TotalSold) })
	return out, nil
}

// CustomerSummary holds customer headline figures.
type CustomerSummary struct {
	TotalCustomers       int     `json:"totalCustomers"`
	NewCustomers         int     `json:"newCustomers"`
	AvgOrdersPerCustomer float64 `json:"avgOrdersPerCustomer"`
	AvgSpentPerCustomer  float64 `json:"avgSpentPerCustomer"`
}

// TopCustomer is one of the biggest spenders.
type TopCustomer struct {
	UserID        string    `json:"userId"`
	CustomerName  string    `json:"customerName,omitempty"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	OrderCount    int       `json:"orderCount"`
	TotalSpent    float64   `json:"totalSpent"`
	LastOrderDate time.Time `json:"lastOrderDate"`
}

// CustomerAnalytics summarizes customers and their spending.
type CustomerAnalytics struct {
	Summary      CustomerSummary `json:"summary"`
	TopCustomers []TopCustomer   `json:"topCustomers"`
}

// CustomerAnalytics covers non-cancelled orders placed before the current
// month. Customers with an order in the 30 days before the month started
// count as new.
func (s *Service) CustomerAnalytics(ctx context.Context, sc Scope) (*CustomerAnalytics, error) {
	orders, err := s.orders(ctx, sc, store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	current := monthStart(s.now())
	newSince := current.Add(-recentWindow)

	stats := map[string]*TopCustomer{}
	fresh := map[string]bool{}
	orderTotal := 0
	var spentTotal float64
	for i := range orders {
		o := &orders[i]
		if isCancelled(o) || !o.CreatedAt.Before(current) {
			continue
		}
		c, ok := stats[o.UserID]
		if !ok {
			c = &TopCustomer{UserID: o.UserID}
			stats[o.UserID] = c
		}
		c.OrderCount++
		c.TotalSpent += o.TotalAmount
		orderTotal++
		spentTotal += o.TotalAmount
		if o.CreatedAt.After(c.LastOrderDate) {
			c.LastOrderDate = o.CreatedAt
		}
		if !o.CreatedAt.Before(newSince) {
			fresh[o.UserID] = true
		}
		if name := o.DeliveryAddress.ReceiverLabel(); name != "" {
			c.CustomerName = name
		}
		for _, it := range o.Items {
			if email := strings.ToLower(strings.TrimSpace(it.ClientEmail)); email != "" {
				c.CustomerEmail = email
			}
		}
	}

	out := &CustomerAnalytics{TopCustomers: []TopCustomer{}}
	out.Summary.TotalCustomers = len(stats)
	out.Summary.NewCustomers = len(fresh)
	if n := len(stats); n > 0 {
		out.Summary.AvgOrdersPerCustomer = round2(float64(orderTotal) / float64(n))
		out.Summary.AvgSpentPerCustomer = round2(spentTotal / float64(n))
	}
	for _, c := range stats {
		c.TotalSpent = round2(c.TotalSpent)
		out.TopCustomers = append(out.TopCustomers, *c)
	}
	slices.SortFunc(out.TopCustomers, func(a, b TopCustomer) int {
		return cmp.Or(cmp.Compare(b.TotalSpent, a.TotalSpent), strings.Compare(a.UserID, b.UserID))
	})
	if len(out.TopCustomers) > topCustomerLimit {
		out.TopCustomers = out.TopCustomers[:topCustomerLimit]
	}
	return out, nil
}

// LocationStats are the orders delivered to one city.
type LocationStats struct {
	Location      string   `json:"location"`
	Orders        int      `json:"orders"`
	Revenue       float64  `json:"revenue"`
	Customers     int      `json:"customers"`
	Percentage    float64  `json:"percentage"`
	AvgOrderValue float64  `json:"avgOrderValue"`
	TopProducts   []string `json:"topProducts"`
}

// GeographicDistribution groups non-cancelled orders by delivery city,
// busiest first. Orders without a delivery city count as unknown.
func (s *Service) GeographicDistribution(ctx context.Context, sc Scope) ([]LocationStats, error) {
	orders, err := s.orders(ctx, sc, store.OrderFilter{})
	if err != nil {
		return nil, err
	}

	type tally struct {
		LocationStats
		customers map[string]bool
		products  map[string]int
	}
	cities := map[string]*tally{}
	counted := 0
	for i := range orders {
		o := &orders[i]
		if isCancelled(o) {
			continue
		}
		counted++
		city := unknownLocation
		if o.DeliveryAddress != nil && strings.TrimSpace(o.DeliveryAddress.City) != "" {
			city = strings.TrimSpace(o.DeliveryAddress.City)
		}
		t, ok := cities[city]
		if !ok {
			t = &tally{LocationStats: LocationStats{Location: city}, customers: map[string]bool{}, products: map[string]int{}}
			cities[city] = t
		}
		t.Orders++
		t.Revenue += o.TotalAmount
		t.customers[o.UserID] = true
		for _, it := range o.Items {
			t.products[cmp.Or(it.Name, "Unknown")] += max(it.Quantity, 0)
		}
	}

	out := make([]LocationStats, 0, len(cities))
	for _, t := range cities {
		l := t.LocationStats
		l.Customers = len(t.customers)
		if counted > 0 {
			l.Percentage = round1(float64(l.Orders) / float64(counted) * 100)
		}
		l.AvgOrderValue = round2(l.Revenue / float64(l.Orders))
		l.Revenue = round2(l.Revenue)
		l.TopProducts = topNames(t.products, topLocationProducts)
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b LocationStats) int {
		return cmp.Or(cmp.Compare(b.Orders, a.Orders), strings.Compare(a.Location, b.Location))
	})
	return out, nil
}

func topNames(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), strings.Compare(a, b))
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
