// Package workflow tracks the production stages an order passes through
// after its design is laid out, from layout to hand-over.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

// DefaultUpdatedBy is recorded when a change carries no author.
const DefaultUpdatedBy = "system"

// Store is the persistence the workflow service needs.
type Store interface {
	store.WorkflowStore
	store.OrderStore
}

// Service implements production workflow operations.
type Service struct {
	store Store
	pub   realtime.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a workflow service. pub may be nil.
func NewService(s Store, pub realtime.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, pub: pub, log: log, now: time.Now}
}

// Update is a requested stage change.
type Update struct {
	Stage  string  `json:"stage"`
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// Progress summarises an order's stages.
type Progress struct {
	TotalStages          int           `json:"totalStages"`
	CompletedStages      int           `json:"completedStages"`
	InProgressStages     int           `json:"inProgressStages"`
	PendingStages        int           `json:"pendingStages"`
	SkippedStages        int           `json:"skippedStages"`
	CompletionPercentage float64       `json:"completionPercentage"`
	CurrentStage         *CurrentStage `json:"currentStage"`
}

// CurrentStage is the first stage still open.
type CurrentStage struct {
	Stage     string     `json:"stage"`
	StageName string     `json:"stageName"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"startedAt"`
	Notes     string     `json:"notes"`
}

// OverviewRow is one order in the production overview.
type OverviewRow struct {
	ID                   string    `json:"id"`
	OrderNumber          string    `json:"order_number"`
	ProductionStatus     string    `json:"production_status"`
	CreatedAt            time.Time `json:"created_at"`
	TotalStages          int       `json:"total_stages"`
	CompletedStages      int       `json:"completed_stages"`
	CurrentStage         string    `json:"current_stage,omitempty"`
	CurrentStageName     string    `json:"currentStageName,omitempty"`
	CompletionPercentage int       `json:"completionPercentage"`
}

// Meta describes the pipeline for clients.
type Meta struct {
	Stages     []string          `json:"stages"`
	StageNames map[string]string `json:"stageNames"`
	Statuses   []string          `json:"statuses"`
}

// Metadata returns the stage list, display names and statuses.
func Metadata() Meta {
	return Meta{Stages: domain.Stages, StageNames: domain.StageNames, Statuses: domain.StageStatuses}
}

func sortStages(stages []domain.WorkflowStage) {
	slices.SortStableFunc(stages, func(a, b domain.WorkflowStage) int {
		return domain.StageIndex(a.Stage) - domain.StageIndex(b.Stage)
	})
}

// Stages returns an order's stages in pipeline order.
func (s *Service) Stages(ctx context.Context, orderID string) ([]domain.WorkflowStage, error) {
	stages, err := s.store.ListStages(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch production workflow")
	}
	if stages == nil {
		stages = []domain.WorkflowStage{}
	}
	sortStages(stages)
	return stages, nil
}

// History returns an order's stage changes, newest first.
func (s *Service) History(ctx context.Context, orderID string) ([]domain.WorkflowHistory, error) {
	h, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch workflow history")
	}
	if h == nil {
		h = []domain.WorkflowHistory{}
	}
	return h, nil
}

// Initialize creates the missing stages of an order as pending and
// recomputes its production status.
func (s *Service) Initialize(ctx context.Context, orderID string) ([]domain.WorkflowStage, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Order", "")
		}
		return nil, apperr.Internal(err, "Failed to fetch order")
	}
	now := s.now().UTC()
	stages := make([]domain.WorkflowStage, 0, len(domain.Stages))
	for _, st := range domain.Stages {
		stages = append(stages, domain.WorkflowStage{
			OrderID:   orderID,
			Stage:     st,
			Status:    domain.StageStatusPending,
			UpdatedBy: DefaultUpdatedBy,
			UpdatedAt: now,
		})
	}
	if err := s.store.InitStages(ctx, stages); err != nil {
		return nil, apperr.Internal(err, "Failed to initialize production workflow")
	}
	if _, err := s.RefreshProductionStatus(ctx, orderID); err != nil {
		s.log.Warn("failed to update production status", zap.String("order", orderID), zap.Error(err))
	}
	return s.Stages(ctx, orderID)
}

func validate(u Update) error {
	if !domain.IsValidStage(u.Stage) {
		return apperr.Invalid("Invalid stage").With("validStages", domain.Stages)
	}
	if !domain.IsValidStageStatus(u.Status) {
		return apperr.Invalid("Invalid status").With("validStatuses", domain.StageStatuses)
	}
	return nil
}

// UpdateStage applies one stage change, records it in the history and
// recomputes the order's production status.
func (s *Service) UpdateStage(ctx context.Context, orderID string, u Update, updatedBy string) (*domain.WorkflowStage, error) {
	if err := validate(u); err != nil {
		return nil, err
	}
	st, err := s.apply(ctx, orderID, u, updatedBy)
	if err != nil {
		return nil, err
	}
	if _, err := s.RefreshProductionStatus(ctx, orderID); err != nil {
		s.log.Warn("failed to update production status", zap.String("order", orderID), zap.Error(err))
	}
	return st, nil
}

// BulkUpdate applies every valid change and skips the rest. It returns the
// stages that were updated.
func (s *Service) BulkUpdate(ctx context.Context, orderID string, updates []Update, updatedBy string) ([]domain.WorkflowStage, error) {
	if len(updates) == 0 {
		return nil, apperr.Invalid("Updates must be a non-empty array")
	}
	updated := []domain.WorkflowStage{}
	for _, u := range updates {
		if validate(u) != nil {
			continue
		}
		st, err := s.apply(ctx, orderID, u, updatedBy)
		if apperr.KindOf(err) == apperr.KindNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		updated = append(updated, *st)
	}
	if _, err := s.RefreshProductionStatus(ctx, orderID); err != nil {
		s.log.Warn("failed to update production status", zap.String("order", orderID), zap.Error(err))
	}
	return updated, nil
}

func (s *Service) apply(ctx context.Context, orderID string, u Update, updatedBy string) (*domain.WorkflowStage, error) {
	st, err := s.store.GetStage(ctx, orderID, u.Stage)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Workflow stage", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to update workflow stage")
	}
	if updatedBy == "" {
		updatedBy = DefaultUpdatedBy
	}
	now := s.now().UTC()
	old := st.Status

	st.Status = u.Status
	st.UpdatedBy = updatedBy
	st.UpdatedAt = now
	if u.Notes != nil {
		st.Notes = *u.Notes
	}
	switch u.Status {
	case domain.StageStatusInProgress:
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
	case domain.StageStatusCompleted, domain.StageStatusSkipped:
		st.CompletedAt = &now
	}
	if err := s.store.SaveStage(ctx, st); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Workflow stage", "")
		}
		return nil, apperr.Internal(err, "Failed to update workflow stage")
	}

	h := &domain.WorkflowHistory{
		OrderID:   orderID,
		Stage:     u.Stage,
		OldStatus: old,
		NewStatus: u.Status,
		Notes:     st.Notes,
		UpdatedBy: updatedBy,
		Timestamp: now,
	}
	if err := s.store.AppendHistory(ctx, h); err != nil {
		s.log.Warn("failed to record workflow history", zap.String("order", orderID), zap.Error(err))
	}
	if s.pub != nil {
		s.pub.Publish(realtime.OrderTopic(orderID), realtime.EventStageUpdated, st)
	}
	s.log.Debug("stage updated",
		zap.String("order", orderID),
		zap.String("stage", u.Stage),
		zap.String("from", old),
		zap.String("to", u.Status))
	return st, nil
}

// ProductionStatus derives an order's production status from its stages:
// completed when every stage is closed, otherwise the display name of the
// first open stage, otherwise pending.
func ProductionStatus(stages []domain.WorkflowStage) string {
	if len(stages) == 0 {
		return domain.ProductionStatusPending
	}
	sorted := slices.Clone(stages)
	sortStages(sorted)
	allClosed := true
	for _, st := range sorted {
		if !st.IsClosed() {
			allClosed = false
			break
		}
	}
	if allClosed {
		return domain.ProductionStatusDone
	}
	for _, st := range sorted {
		if st.Status == domain.StageStatusInProgress || st.Status == domain.StageStatusPending {
			return domain.StageNames[st.Stage]
		}
	}
	return domain.ProductionStatusPending
}

// RefreshProductionStatus recomputes and stores an order's production
// status.
func (s *Service) RefreshProductionStatus(ctx context.Context, orderID string) (string, error) {
	stages, err := s.store.ListStages(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to list stages: %w", err)
	}
	status := ProductionStatus(stages)
	if err := s.store.SetProductionStatus(ctx, orderID, status); err != nil {
		return "", fmt.Errorf("failed to set production status: %w", err)
	}
	return status, nil
}

// Progress summarises an order's stages.
func (s *Service) Progress(ctx context.Context, orderID string) (*Progress, error) {
	stages, err := s.store.ListStages(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch production progress")
	}
	sortStages(stages)
	p := &Progress{TotalStages: len(stages)}
	for _, st := range stages {
		switch st.Status {
		case domain.StageStatusCompleted:
			p.CompletedStages++
		case domain.StageStatusInProgress:
			p.InProgressStages++
		case domain.StageStatusPending:
			p.PendingStages++
		case domain.StageStatusSkipped:
			p.SkippedStages++
		}
		if p.CurrentStage == nil && (st.Status == domain.StageStatusInProgress || st.Status == domain.StageStatusPending) {
			p.CurrentStage = &CurrentStage{
				Stage:     st.Stage,
				StageName: domain.StageNames[st.Stage],
				Status:    st.Status,
				StartedAt: st.StartedAt,
				Notes:     st.Notes,
			}
		}
	}
	if p.TotalStages > 0 {
		pct := float64(p.CompletedStages) / float64(p.TotalStages) * 100
		p.CompletionPercentage = math.Round(pct*10) / 10
	}
	return p, nil
}

// Overview lists every order, newest first, with its stage counts and the
// latest in-progress stage.
func (s *Service) Overview(ctx context.Context) ([]OverviewRow, error) {
	orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch production overview")
	}
	stages, err := s.store.ListStages(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch production overview")
	}
	byOrder := make(map[string][]domain.WorkflowStage)
	for _, st := range stages {
		byOrder[st.OrderID] = append(byOrder[st.OrderID], st)
	}

	rows := make([]OverviewRow, 0, len(orders))
	for _, o := range orders {
		row := OverviewRow{
			ID:               o.ID,
			OrderNumber:      o.OrderNumber,
			ProductionStatus: o.ProductionStatus,
			CreatedAt:        o.CreatedAt,
		}
		current := -1
		for _, st := range byOrder[o.ID] {
			row.TotalStages++
			if st.Status == domain.StageStatusCompleted {
				row.CompletedStages++
			}
			if st.Status == domain.StageStatusInProgress && domain.StageIndex(st.Stage) > current {
				current = domain.StageIndex(st.Stage)
				row.CurrentStage = st.Stage
			}
		}
		if row.CurrentStage != "" {
			row.CurrentStageName = domain.StageNames[row.CurrentStage]
		}
		if row.TotalStages > 0 {
			row.CompletionPercentage = int(math.Round(float64(row.CompletedStages) / float64(row.TotalStages) * 100))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
