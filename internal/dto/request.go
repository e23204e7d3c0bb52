package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/shopping-request-api/internal/models"
)

// LineItemInput describes a line item as submitted by the requester.
type LineItemInput struct {
	ItemCode    string               `json:"item_code" validate:"required,max=64"`
	Description string               `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal      `json:"quantity"`
	Unit        models.UnitOfMeasure `json:"unit" validate:"required"`
	UnitPrice   decimal.NullDecimal  `json:"unit_price"`
	Supplier    *string              `json:"supplier" validate:"omitempty,max=200"`
	Notes       *string              `json:"notes" validate:"omitempty,max=1000"`
}

// RequestInput is the requester-editable content of a shopping request.
type RequestInput struct {
	RequestType         string          `json:"request_type" validate:"required,max=64"`
	Justification       *string         `json:"justification" validate:"omitempty,max=4000"`
	DesiredDeliveryDate *time.Time      `json:"desired_delivery_date"`
	PreferredSupplier   *string         `json:"preferred_supplier" validate:"omitempty,max=200"`
	ClientName          *string         `json:"client_name" validate:"omitempty,max=200"`
	ClientID            *string         `json:"client_id" validate:"omitempty,max=64"`
	ApproverID          *string         `json:"approver_id" validate:"omitempty,uuid"`
	Items               []LineItemInput `json:"items" validate:"dive"`
}

// DecisionRequest carries the optional free text attached to a transition.
type DecisionRequest struct {
	Note *string `json:"note" validate:"omitempty,max=4000"`
}

// RequestQuery holds list filters parsed from the query string.
type RequestQuery struct {
	Status      []models.RequestStatus `form:"status"`
	RequesterID string                 `form:"requester_id"`
	ApproverID  string                 `form:"approver_id"`
	RequestType string                 `form:"request_type"`
	Search      string                 `form:"search"`
	Year        int                    `form:"year"`
	Page        int                    `form:"page"`
	PageSize    int                    `form:"page_size"`
	SortBy      string                 `form:"sort_by"`
	SortOrder   string                 `form:"sort_order"`
}

// ExportLinkResponse returns a signed download link for a rendered document.
type ExportLinkResponse struct {
	Number    string    `json:"number"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
