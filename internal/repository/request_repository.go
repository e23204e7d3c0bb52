package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	"github.com/noah-isme/shopping-request-api/pkg/database"
)

const uniqueViolation = "23505"

// ErrDuplicateNumber is returned when the request number unique index rejects an insert.
var ErrDuplicateNumber = errors.New("request number already exists")

const requestColumns = `id, number, requester_id, request_type, status, total_amount, justification,
	desired_delivery_date, preferred_supplier, client_name, client_id, approver_id, approved_by_id,
	approved_at, approval_comment, rejection_reason, procurement_handler_id, processed_at, procurement_notes,
	cancellation_note, created_at, updated_at`

const itemColumns = `id, request_id, position, item_code, description, quantity, unit, unit_price, total_price, supplier, notes`

// RequestRepository persists shopping requests and their line items.
type RequestRepository struct {
	db                   *sqlx.DB
	assignedApproverOnly bool
}

// NewRequestRepository constructs the repository. assignedApproverOnly mirrors the
// application policy in the storage guard for manager decisions.
func NewRequestRepository(db *sqlx.DB, assignedApproverOnly bool) *RequestRepository {
	return &RequestRepository{db: db, assignedApproverOnly: assignedApproverOnly}
}

// Create inserts the request and its items in one transaction.
func (r *RequestRepository) Create(ctx context.Context, req *models.ShoppingRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.StatusDraft
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO shopping_requests (id, number, requester_id, request_type, status, total_amount,
		justification, desired_delivery_date, preferred_supplier, client_name, client_id, approver_id, created_at, updated_at)
		VALUES (:id, :number, :requester_id, :request_type, :status, :total_amount, :justification, :desired_delivery_date,
		:preferred_supplier, :client_name, :client_id, :approver_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, req.Number)
			}
			return fmt.Errorf("create request: %w", err)
		}
		return insertItems(ctx, tx, req.ID, req.Items)
	})
}

// GetByID loads a request with its items.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ShoppingRequest, error) {
	return r.getOne(ctx, "id", id)
}

// GetByNumber loads a request by its human-readable number.
func (r *RequestRepository) GetByNumber(ctx context.Context, number string) (*models.ShoppingRequest, error) {
	return r.getOne(ctx, "number", number)
}

func (r *RequestRepository) getOne(ctx context.Context, column, value string) (*models.ShoppingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM shopping_requests WHERE %s = $1 LIMIT 1`, requestColumns, column)
	var req models.ShoppingRequest
	if err := r.db.GetContext(ctx, &req, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get request by %s: %w", column, err)
	}
	items, err := r.listItems(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return &req, nil
}

func (r *RequestRepository) listItems(ctx context.Context, requestID string) ([]models.LineItem, error) {
	query := `SELECT ` + itemColumns + ` FROM request_items WHERE request_id = $1 ORDER BY position ASC`
	items := make([]models.LineItem, 0)
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("list request items: %w", err)
	}
	return items, nil
}

// List returns requests visible to the viewer in the filter, without items.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ShoppingRequest, int, error) {
	where, args := buildRequestConditions(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"number":       true,
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM shopping_requests%s ORDER BY %s %s LIMIT %d OFFSET %d",
		requestColumns, where, sortBy, sortOrder, pageSize, offset)
	requests := make([]models.ShoppingRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM shopping_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// ReplaceContent rewrites the requester-editable columns and all items. The row must
// belong to requesterID and still be editable, otherwise sql.ErrNoRows is returned.
func (r *RequestRepository) ReplaceContent(ctx context.Context, id, requesterID string, content models.RequestContent) error {
	editable := workflow.Sources(workflow.ActionEdit)
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE shopping_requests SET request_type = $3, justification = $4, desired_delivery_date = $5,
		preferred_supplier = $6, client_name = $7, client_id = $8, approver_id = $9, total_amount = $10,
		status = $11, updated_at = $12
		WHERE id = $1 AND requester_id = $2 AND status = ANY($13)`
		result, err := tx.ExecContext(ctx, query,
			id,
			requesterID,
			content.RequestType,
			content.Justification,
			content.DesiredDeliveryDate,
			content.PreferredSupplier,
			content.ClientName,
			content.ClientID,
			content.ApproverID,
			content.TotalAmount,
			models.StatusDraft,
			time.Now().UTC(),
			pq.Array(statusStrings(editable)),
		)
		if err != nil {
			return fmt.Errorf("replace request content: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check request update rows: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = $1`, id); err != nil {
			return fmt.Errorf("delete request items: %w", err)
		}
		return insertItems(ctx, tx, id, content.Items)
	})
}

// TransitionParams describes a single guarded status change.
type TransitionParams struct {
	ID      string
	Action  workflow.Action
	ActorID string
	Note    *string
	At      time.Time
}

// Transition applies the status change and its side-effect columns in one conditional
// UPDATE. The WHERE clause repeats the lifecycle and identity rules so a row that moved
// on, or an actor lacking the role, matches nothing and sql.ErrNoRows is returned.
func (r *RequestRepository) Transition(ctx context.Context, params TransitionParams) (*models.ShoppingRequest, error) {
	sources := workflow.Sources(params.Action)
	if len(sources) == 0 {
		return nil, fmt.Errorf("transition %s: %w", params.Action, workflow.ErrUnknownAction)
	}
	to, err := workflow.Next(sources[0], params.Action)
	if err != nil {
		return nil, err
	}
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}

	args := []interface{}{params.ID, pq.Array(statusStrings(sources)), to, params.At, params.ActorID}
	sets := []string{"status = $3", "updated_at = $4"}
	var guard string

	switch params.Action {
	case workflow.ActionSubmit:
		sets = append(sets, "approved_by_id = NULL", "approved_at = NULL", "approval_comment = NULL", "cancellation_note = NULL")
		guard = `requester_id = $5 AND approver_id IS NOT NULL
		AND EXISTS (SELECT 1 FROM request_items i WHERE i.request_id = shopping_requests.id)`
	case workflow.ActionApprove:
		args = append(args, params.Note)
		sets = append(sets, "approved_by_id = $5", "approved_at = $4", "approval_comment = $6")
		guard = r.deciderGuard()
	case workflow.ActionReject:
		args = append(args, params.Note)
		sets = append(sets, "rejection_reason = $6")
		guard = r.deciderGuard()
	case workflow.ActionCancel:
		args = append(args, params.Note)
		sets = append(sets, "cancellation_note = $6")
		guard = r.deciderGuard()
	case workflow.ActionComplete:
		args = append(args, params.Note)
		sets = append(sets, "procurement_handler_id = $5", "processed_at = $4", "procurement_notes = $6")
		guard = `EXISTS (SELECT 1 FROM profiles p WHERE p.id = $5 AND p.active AND p.role = 'procurement')`
	default:
		return nil, fmt.Errorf("transition %s: %w", params.Action, workflow.ErrUnknownAction)
	}

	query := fmt.Sprintf(`UPDATE shopping_requests SET %s WHERE id = $1 AND status = ANY($2) AND %s RETURNING %s`,
		strings.Join(sets, ", "), guard, requestColumns)

	var req models.ShoppingRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("transition request %s: %w", params.Action, err)
	}
	items, err := r.listItems(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return &req, nil
}

func (r *RequestRepository) deciderGuard() string {
	if r.assignedApproverOnly {
		return `EXISTS (SELECT 1 FROM profiles p WHERE p.id = $5 AND p.active
		AND (p.role = 'procurement' OR (p.role = 'manager' AND shopping_requests.approver_id = p.id)))`
	}
	return `EXISTS (SELECT 1 FROM profiles p WHERE p.id = $5 AND p.active AND p.role IN ('manager', 'procurement'))`
}

// Delete removes a draft owned by requesterID; items cascade.
func (r *RequestRepository) Delete(ctx context.Context, id, requesterID string) error {
	const query = `DELETE FROM shopping_requests WHERE id = $1 AND requester_id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, requesterID, models.StatusDraft)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summary aggregates counts and amounts per status within the viewer scope.
func (r *RequestRepository) Summary(ctx context.Context, filter models.RequestFilter) ([]models.StatusSummary, error) {
	where, args := buildRequestConditions(filter)
	query := "SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount FROM shopping_requests" +
		where + " GROUP BY status ORDER BY status"
	summaries := make([]models.StatusSummary, 0)
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("summarise requests: %w", err)
	}
	return summaries, nil
}

// CountAwaiting counts requests waiting on the given decider.
func (r *RequestRepository) CountAwaiting(ctx context.Context, actorID string, role models.Role) (int, error) {
	var (
		query string
		args  []interface{}
	)
	switch role {
	case models.RoleManager:
		query = `SELECT COUNT(*) FROM shopping_requests WHERE status = $1 AND approver_id = $2`
		args = []interface{}{models.StatusPendingApproval, actorID}
	case models.RoleProcurement:
		query = `SELECT COUNT(*) FROM shopping_requests WHERE status = $1`
		args = []interface{}{models.StatusApproved}
	default:
		return 0, nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count awaiting requests: %w", err)
	}
	return count, nil
}

// MaxIssued returns the highest suffix already used for prefix and year.
func (r *RequestRepository) MaxIssued(ctx context.Context, prefix string, year int) (int64, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM 7 FOR 4) AS INTEGER)), 0)
	FROM shopping_requests WHERE number LIKE $1`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, fmt.Sprintf("%s%04d%%", prefix, year)); err != nil {
		return 0, fmt.Errorf("max issued number: %w", err)
	}
	return value, nil
}

func buildRequestConditions(filter models.RequestFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Status) > 0 {
		conditions = append(conditions, "status = ANY("+next(pq.Array(statusStrings(filter.Status)))+")")
	}
	if filter.RequesterID != "" {
		conditions = append(conditions, "requester_id = "+next(filter.RequesterID))
	}
	if filter.ApproverID != "" {
		conditions = append(conditions, "approver_id = "+next(filter.ApproverID))
	}
	if filter.RequestType != "" {
		conditions = append(conditions, "request_type = "+next(filter.RequestType))
	}
	if filter.Year > 0 {
		conditions = append(conditions, "number LIKE "+next(fmt.Sprintf("__%04d%%", filter.Year)))
	}
	if filter.Search != "" {
		p := next("%" + strings.ToLower(filter.Search) + "%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(number) LIKE %s OR LOWER(COALESCE(client_name, '')) LIKE %s OR LOWER(COALESCE(justification, '')) LIKE %s)", p, p, p))
	}

	switch filter.ViewerRole {
	case models.RoleProcurement, models.RoleAdmin:
	case models.RoleManager:
		p := next(filter.ViewerID)
		conditions = append(conditions, fmt.Sprintf("(requester_id = %s OR approver_id = %s OR requester_id IN (SELECT id FROM profiles WHERE manager_id = %s))", p, p, p))
	default:
		conditions = append(conditions, "requester_id = "+next(filter.ViewerID))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func insertItems(ctx context.Context, tx *sqlx.Tx, requestID string, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].RequestID = requestID
		items[i].Position = i + 1
	}
	query := `INSERT INTO request_items (` + itemColumns + `) VALUES (:id, :request_id, :position, :item_code, :description, :quantity, :unit, :unit_price, :total_price, :supplier, :notes)`
	if _, err := tx.NamedExecContext(ctx, query, items); err != nil {
		return fmt.Errorf("insert request items: %w", err)
	}
	return nil
}

func statusStrings(statuses []models.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

