package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus enumerates the lifecycle states of a shopping request.
type RequestStatus string

const (
	StatusDraft           RequestStatus = "draft"
	StatusPendingApproval RequestStatus = "pending_approval"
	StatusApproved        RequestStatus = "approved"
	StatusRejected        RequestStatus = "rejected"
	StatusCompleted       RequestStatus = "completed"
	StatusCancelled       RequestStatus = "cancelled"
)

// RequestStatuses lists every status in lifecycle order.
var RequestStatuses = []RequestStatus{
	StatusDraft,
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether the status is one of the known values.
func (s RequestStatus) Valid() bool {
	for _, status := range RequestStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// UnitOfMeasure is the categorical unit a line item quantity is expressed in.
type UnitOfMeasure string

const (
	UnitPiece   UnitOfMeasure = "pcs"
	UnitBox     UnitOfMeasure = "box"
	UnitPack    UnitOfMeasure = "pack"
	UnitSet     UnitOfMeasure = "set"
	UnitKg      UnitOfMeasure = "kg"
	UnitLiter   UnitOfMeasure = "l"
	UnitMeter   UnitOfMeasure = "m"
	UnitHour    UnitOfMeasure = "hour"
	UnitLicense UnitOfMeasure = "license"
)

// Valid reports whether the unit is supported.
func (u UnitOfMeasure) Valid() bool {
	switch u {
	case UnitPiece, UnitBox, UnitPack, UnitSet, UnitKg, UnitLiter, UnitMeter, UnitHour, UnitLicense:
		return true
	}
	return false
}

// ShoppingRequest is the aggregate persisted in shopping_requests.
type ShoppingRequest struct {
	ID                   string          `db:"id" json:"id"`
	Number               string          `db:"number" json:"number"`
	RequesterID          string          `db:"requester_id" json:"requester_id"`
	RequestType          string          `db:"request_type" json:"request_type"`
	Status               RequestStatus   `db:"status" json:"status"`
	TotalAmount          decimal.Decimal `db:"total_amount" json:"total_amount"`
	Justification        *string         `db:"justification" json:"justification,omitempty"`
	DesiredDeliveryDate  *time.Time      `db:"desired_delivery_date" json:"desired_delivery_date,omitempty"`
	PreferredSupplier    *string         `db:"preferred_supplier" json:"preferred_supplier,omitempty"`
	ClientName           *string         `db:"client_name" json:"client_name,omitempty"`
	ClientID             *string         `db:"client_id" json:"client_id,omitempty"`
	ApproverID           *string         `db:"approver_id" json:"approver_id,omitempty"`
	ApprovedByID         *string         `db:"approved_by_id" json:"approved_by_id,omitempty"`
	ApprovedAt           *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ApprovalComment      *string         `db:"approval_comment" json:"approval_comment,omitempty"`
	RejectionReason      *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ProcurementHandlerID *string         `db:"procurement_handler_id" json:"procurement_handler_id,omitempty"`
	ProcessedAt          *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	ProcurementNotes     *string         `db:"procurement_notes" json:"procurement_notes,omitempty"`
	CancellationNote     *string         `db:"cancellation_note" json:"cancellation_note,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
	Items                []LineItem      `db:"-" json:"items"`
}

// LineItem is a single good or service requested.
type LineItem struct {
	ID          string              `db:"id" json:"id"`
	RequestID   string              `db:"request_id" json:"request_id"`
	Position    int                 `db:"position" json:"position"`
	ItemCode    string              `db:"item_code" json:"item_code"`
	Description string              `db:"description" json:"description"`
	Quantity    decimal.Decimal     `db:"quantity" json:"quantity"`
	Unit        UnitOfMeasure       `db:"unit" json:"unit"`
	UnitPrice   decimal.NullDecimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.NullDecimal `db:"total_price" json:"total_price"`
	Supplier    *string             `db:"supplier" json:"supplier,omitempty"`
	Notes       *string             `db:"notes" json:"notes,omitempty"`
}

// RequestFilter narrows request listings. Viewer fields scope results to what the caller may see.
type RequestFilter struct {
	Status      []RequestStatus
	RequesterID string
	ApproverID  string
	RequestType string
	Search      string
	Year        int
	ViewerID    string
	ViewerRole  Role
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// RequestContent groups the requester-editable columns replaced on every save.
type RequestContent struct {
	RequestType         string
	Justification       *string
	DesiredDeliveryDate *time.Time
	PreferredSupplier   *string
	ClientName          *string
	ClientID            *string
	ApproverID          *string
	TotalAmount         decimal.Decimal
	Items               []LineItem
}
