package domain

import "time"

// Production workflow stages, in pipeline order.
const (
	StageLayout             = "layout"
	StageSizing             = "sizing"
	StagePrinting           = "printing"
	StagePress              = "press"
	StageProd               = "prod"
	StagePackingCompleting  = "packing_completing"
	StagePickedUpDelivered  = "picked_up_delivered"
	StageStatusPending      = "pending"
	StageStatusInProgress   = "in_progress"
	StageStatusCompleted    = "completed"
	StageStatusSkipped      = "skipped"
	ProductionStatusPending = "pending"
	ProductionStatusDone    = "completed"
)

// Stages is the production pipeline.
var Stages = []string{
	StageLayout,
	StageSizing,
	StagePrinting,
	StagePress,
	StageProd,
	StagePackingCompleting,
	StagePickedUpDelivered,
}

// StageNames maps stages to display names.
var StageNames = map[string]string{
	StageLayout:            "Layout",
	StageSizing:            "Sizing",
	StagePrinting:          "Printing",
	StagePress:             "Press",
	StageProd:              "Prod",
	StagePackingCompleting: "Packing/Completing",
	StagePickedUpDelivered: "Picked Up/Delivered",
}

// StageStatuses lists valid stage statuses.
var StageStatuses = []string{StageStatusPending, StageStatusInProgress, StageStatusCompleted, StageStatusSkipped}

// StageIndex returns the pipeline position of stage; unknown stages sort last.
func StageIndex(stage string) int {
	for i, s := range Stages {
		if s == stage {
			return i
		}
	}
	return 99
}

// IsValidStage reports whether stage is part of the pipeline.
func IsValidStage(stage string) bool { return StageIndex(stage) != 99 }

// IsValidStageStatus reports whether status is a stage status.
func IsValidStageStatus(status string) bool {
	for _, s := range StageStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// WorkflowStage is one production step of an order.
type WorkflowStage struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsClosed reports whether the stage no longer blocks completion.
func (s *WorkflowStage) IsClosed() bool {
	return s.Status == StageStatusCompleted || s.Status == StageStatusSkipped
}

// WorkflowHistory is an audit entry for a stage change.
type WorkflowHistory struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Stage     string    `json:"stage"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedBy string    `json:"updated_by"`
	Timestamp time.Time `json:"timestamp"`
}
