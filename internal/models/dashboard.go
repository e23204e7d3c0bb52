package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusSummary aggregates requests sharing a status.
type StatusSummary struct {
	Status RequestStatus   `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// DashboardSummary is the role-scoped overview returned by the dashboard.
type DashboardSummary struct {
	Scope           string          `json:"scope"`
	ByStatus        []StatusSummary `json:"by_status"`
	TotalCount      int             `json:"total_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AwaitingAction  int             `json:"awaiting_action"`
	NumbersThisYear int64           `json:"numbers_this_year"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
