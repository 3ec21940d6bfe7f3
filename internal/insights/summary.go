// Package insights computes the back-office sales summary and answers
// analytics questions about it with Claude.
package insights

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// topProductLimit is the number of products in Summary.TopProducts.
const topProductLimit = 5

// BranchRevenue is the revenue of orders picked up at one branch.
type BranchRevenue struct {
	Branch  string  `json:"branch"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// ProductSales is the quantity sold of one product.
type ProductSales struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// Summary is the dashboard overview. Revenue figures exclude cancelled
// orders.
type Summary struct {
	TotalOrders       int             `json:"totalOrders"`
	TotalRevenue      float64         `json:"totalRevenue"`
	AverageOrderValue float64         `json:"averageOrderValue"`
	OrdersByStatus    map[string]int  `json:"ordersByStatus"`
	RevenueByBranch   []BranchRevenue `json:"revenueByBranch"`
	TopProducts       []ProductSales  `json:"topProducts"`
}

// Store is the persistence insights reads from.
type Store interface {
	store.OrderStore
	store.BranchStore
}

// Service computes summaries and answers questions.
type Service struct {
	store     Store
	completer Completer
	model     string
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates an insights service. completer may be nil, which
// disables Ask.
func NewService(s Store, completer Completer, model string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, completer: completer, model: model, log: log, now: time.Now}
}

// Summary aggregates the orders inside sc.
func (s *Service) Summary(ctx context.Context, sc Scope) (*Summary, error) {
	orders, err := s.orders(ctx, sc, store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	return Summarize(orders), nil
}

// Summarize aggregates orders into a Summary.
func Summarize(orders []domain.Order) *Summary {
	sum := &Summary{
		TotalOrders:     len(orders),
		OrdersByStatus:  make(map[string]int),
		RevenueByBranch: []BranchRevenue{},
		TopProducts:     []ProductSales{},
	}
	branches := make(map[string]*BranchRevenue)
	products := make(map[string]*ProductSales)
	counted := 0

	for _, o := range orders {
		sum.OrdersByStatus[o.Status]++
		if o.Status == domain.OrderCancelled {
			continue
		}
		counted++
		sum.TotalRevenue += o.TotalAmount

		name := strings.TrimSpace(o.PickupLocation)
		if name == "" {
			name = "Unassigned"
		}
		key := strings.ToUpper(name)
		b, ok := branches[key]
		if !ok {
			b = &BranchRevenue{Branch: name}
			branches[key] = b
		}
		b.Orders++
		b.Revenue += o.TotalAmount

		for _, it := range o.Items {
			pname := strings.TrimSpace(it.Name)
			if pname == "" {
				continue
			}
			p, ok := products[pname]
			if !ok {
				p = &ProductSales{Name: pname}
				products[pname] = p
			}
			p.Quantity += it.Qty()
			p.Revenue += it.Price * float64(it.Qty())
		}
	}

	sum.TotalRevenue = round2(sum.TotalRevenue)
	if counted > 0 {
		sum.AverageOrderValue = round2(sum.TotalRevenue / float64(counted))
	}
	for _, b := range branches {
		b.Revenue = round2(b.Revenue)
		sum.RevenueByBranch = append(sum.RevenueByBranch, *b)
	}
	slices.SortFunc(sum.RevenueByBranch, func(a, b BranchRevenue) int {
		return cmp.Or(cmp.Compare(b.Revenue, a.Revenue), strings.Compare(a.Branch, b.Branch))
	})
	for _, p := range products {
		p.Revenue = round2(p.Revenue)
		sum.TopProducts = append(sum.TopProducts, *p)
	}
	slices.SortFunc(sum.TopProducts, func(a, b ProductSales) int {
		return cmp.Or(cmp.Compare(b.Quantity, a.Quantity), strings.Compare(a.Name, b.Name))
	})
	if len(sum.TopProducts) > topProductLimit {
		sum.TopProducts = sum.TopProducts[:topProductLimit]
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
