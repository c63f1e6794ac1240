package server

import "actionline/internal/domain"

// Request payloads

type CreateActionRequest struct {
	SessionID       string   `json:"session_id"`
	ProjectID       *string  `json:"project_id,omitempty"`
	Title           string   `json:"title"`
	Description     *string  `json:"description,omitempty"`
	Steps           []string `json:"steps,omitempty"`
	SuccessCriteria *string  `json:"success_criteria,omitempty"`
	KillCriteria    *string  `json:"kill_criteria,omitempty"`
	Priority        *string  `json:"priority,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Timeline        *string  `json:"timeline,omitempty"`
	EstimatedDays   *int     `json:"estimated_duration_days,omitempty"`
	TargetStart     *string  `json:"target_start,omitempty" format:"date"`
	TargetEnd       *string  `json:"target_end,omitempty" format:"date"`
	Confidence      *int     `json:"confidence,omitempty"`
	SortOrder       *int     `json:"sort_order,omitempty"`
}

type UpdateActionRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Steps           []string `json:"steps,omitempty"`
	SuccessCriteria *string  `json:"success_criteria,omitempty"`
	KillCriteria    *string  `json:"kill_criteria,omitempty"`
	Priority        *string  `json:"priority,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Timeline        *string  `json:"timeline,omitempty"`
	EstimatedDays   *int     `json:"estimated_duration_days,omitempty"`
	TargetStart     *string  `json:"target_start,omitempty"`
	TargetEnd       *string  `json:"target_end,omitempty"`
	Confidence      *int     `json:"confidence,omitempty"`
	SortOrder       *int     `json:"sort_order,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" enum:"todo,in_progress,blocked,in_review,done,cancelled,failed,abandoned"`
	Reason string `json:"reason,omitempty"`
}

type AddDependencyRequest struct {
	DependsOnID string `json:"depends_on_id"`
	Type        string `json:"type,omitempty" enum:"finish_to_start,start_to_start,finish_to_finish"`
	LagDays     int    `json:"lag_days,omitempty"`
}

type ReplanRequest struct {
	Steps     []string `json:"steps,omitempty"`
	TargetEnd *string  `json:"target_end,omitempty" format:"date"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ActionIDsResponse struct {
	ActionIDs []string `json:"action_ids"`
}

type DependencyResultResponse struct {
	Created     bool   `json:"created"`
	Reason      string `json:"reason,omitempty"`
	ActionID    string `json:"action_id,omitempty"`
	DependsOnID string `json:"depends_on_id,omitempty"`
	Type        string `json:"type,omitempty"`
	LagDays     int    `json:"lag_days,omitempty"`
}

type AuditPageResponse struct {
	Records []domain.AuditRecord `json:"records"`
	Total   int                  `json:"total"`
}
