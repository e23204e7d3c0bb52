package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var requestRowColumns = []string{
	"id", "number", "requester_id", "request_type", "status", "total_amount", "justification",
	"desired_delivery_date", "preferred_supplier", "client_name", "client_id", "approver_id", "approved_by_id",
	"approved_at", "approval_comment", "rejection_reason", "procurement_handler_id", "processed_at", "procurement_notes",
	"cancellation_note", "created_at", "updated_at",
}

var itemRowColumns = []string{"id", "request_id", "position", "item_code", "description", "quantity", "unit", "unit_price", "total_price", "supplier", "notes"}

func requestRow(id, number string, status models.RequestStatus, approver interface{}) *sqlmock.Rows {
	return decidedRequestRow(id, number, status, approver, nil)
}

func decidedRequestRow(id, number string, status models.RequestStatus, approver, approvedBy interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(requestRowColumns).AddRow(
		id, number, "u-1", "office", string(status), "125.50", nil,
		nil, nil, "Acme", nil, approver, approvedBy,
		nil, nil, nil, nil, nil, nil,
		nil, now, now,
	)
}

func TestRequestCreateInsertsRequestAndItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shopping_requests").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO request_items").WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	req := &models.ShoppingRequest{
		Number:      "SC20250001",
		RequesterID: "u-1",
		RequestType: "office",
		TotalAmount: decimal.RequireFromString("30"),
		Items: []models.LineItem{
			{ItemCode: "A", Description: "Paper", Quantity: decimal.NewFromInt(3), Unit: models.UnitBox, UnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(10))},
			{ItemCode: "B", Description: "Pens", Quantity: decimal.NewFromInt(1), Unit: models.UnitPack},
		},
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusDraft, req.Status)
	assert.Equal(t, req.ID, req.Items[1].RequestID)
	assert.Equal(t, 2, req.Items[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestCreateDuplicateNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shopping_requests").WillReturnError(&pq.Error{Code: "23505", Constraint: "shopping_requests_number_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.ShoppingRequest{Number: "SC20250001", RequesterID: "u-1"})
	require.ErrorIs(t, err, ErrDuplicateNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestGetByIDLoadsItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(`SELECT .* FROM shopping_requests WHERE id = \$1 LIMIT 1`).
		WithArgs("r-1").
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusDraft, "m-1"))
	mock.ExpectQuery(`SELECT .* FROM request_items WHERE request_id = \$1 ORDER BY position ASC`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(itemRowColumns).
			AddRow("i-1", "r-1", 1, "A", "Paper", "3", "box", "10.00", "30.00", nil, nil).
			AddRow("i-2", "r-1", 2, "B", "Pens", "1", "pack", nil, nil, nil, nil))

	req, err := repo.GetByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "SC20250001", req.Number)
	assert.True(t, req.TotalAmount.Equal(decimal.RequireFromString("125.50")))
	require.Len(t, req.Items, 2)
	assert.True(t, req.Items[0].UnitPrice.Valid)
	assert.False(t, req.Items[1].UnitPrice.Valid)
	require.NotNil(t, req.ApproverID)
	assert.Equal(t, "m-1", *req.ApproverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestGetByNumberNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(`FROM shopping_requests WHERE number = \$1`).WithArgs("SC20259999").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByNumber(context.Background(), "SC20259999")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRequestReplaceContentGuardedByOwnerAndStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shopping_requests SET request_type = \$3.*WHERE id = \$1 AND requester_id = \$2 AND status = ANY\(\$13\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ReplaceContent(context.Background(), "r-1", "intruder", models.RequestContent{RequestType: "office"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestReplaceContentReplacesItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shopping_requests SET request_type`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM request_items WHERE request_id = $1`)).WithArgs("r-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO request_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	content := models.RequestContent{
		RequestType: "office",
		TotalAmount: decimal.NewFromInt(12),
		Items:       []models.LineItem{{ItemCode: "C", Description: "Toner", Quantity: decimal.NewFromInt(1), Unit: models.UnitPiece}},
	}
	require.NoError(t, repo.ReplaceContent(context.Background(), "r-1", "u-1", content))
	assert.Equal(t, "r-1", content.Items[0].RequestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionApproveStrictGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	comment := "ok"
	mock.ExpectQuery(`UPDATE shopping_requests SET status = \$3, updated_at = \$4, approved_by_id = \$5, approved_at = \$4, approval_comment = \$6 WHERE id = \$1 AND status = ANY\(\$2\) AND EXISTS .*shopping_requests.approver_id = p.id.* RETURNING`).
		WithArgs("r-1", sqlmock.AnyArg(), models.StatusApproved, at, "m-1", &comment).
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusApproved, "m-1"))
	mock.ExpectQuery(`FROM request_items`).WithArgs("r-1").WillReturnRows(sqlmock.NewRows(itemRowColumns))

	req, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionApprove, ActorID: "m-1", Note: &comment, At: at})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionApproveKeepsAssignedApprover(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(`UPDATE shopping_requests SET .*approved_by_id = \$5`).
		WithArgs("r-1", sqlmock.AnyArg(), models.StatusApproved, sqlmock.AnyArg(), "p-1", nil).
		WillReturnRows(decidedRequestRow("r-1", "SC20250001", models.StatusApproved, "m-1", "p-1"))
	mock.ExpectQuery(`FROM request_items`).WithArgs("r-1").WillReturnRows(sqlmock.NewRows(itemRowColumns))

	req, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionApprove, ActorID: "p-1"})
	require.NoError(t, err)
	require.NotNil(t, req.ApproverID)
	assert.Equal(t, "m-1", *req.ApproverID)
	require.NotNil(t, req.ApprovedByID)
	assert.Equal(t, "p-1", *req.ApprovedByID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionBroadGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, false)

	mock.ExpectQuery(`UPDATE shopping_requests SET .*rejection_reason = \$6.*p.role IN \('manager', 'procurement'\)`).
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusRejected, "m-1"))
	mock.ExpectQuery(`FROM request_items`).WillReturnRows(sqlmock.NewRows(itemRowColumns))

	reason := "over budget"
	req, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionReject, ActorID: "m-2", Note: &reason})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionGuardRejectsUnprivilegedActor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	// The storage guard alone decides here: the profile lookup in EXISTS finds no
	// manager or procurement row for u-1, so nothing is updated.
	mock.ExpectQuery(`UPDATE shopping_requests SET status = \$3`).
		WithArgs("r-1", sqlmock.AnyArg(), models.StatusApproved, sqlmock.AnyArg(), "u-1", nil).
		WillReturnRows(sqlmock.NewRows(requestRowColumns))

	_, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionApprove, ActorID: "u-1"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionSubmitAndComplete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(`SET status = \$3, updated_at = \$4, approved_by_id = NULL, approved_at = NULL.*requester_id = \$5 AND approver_id IS NOT NULL.*EXISTS \(SELECT 1 FROM request_items`).
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusPendingApproval, "m-1"))
	mock.ExpectQuery(`FROM request_items`).WillReturnRows(sqlmock.NewRows(itemRowColumns))
	mock.ExpectQuery(`procurement_handler_id = \$5, processed_at = \$4, procurement_notes = \$6.*p.role = 'procurement'`).
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusCompleted, "m-1"))
	mock.ExpectQuery(`FROM request_items`).WillReturnRows(sqlmock.NewRows(itemRowColumns))

	req, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionSubmit, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, req.Status)

	req, err = repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionComplete, ActorID: "p-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestTransitionRejectsEdit(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	_, err := repo.Transition(context.Background(), TransitionParams{ID: "r-1", Action: workflow.ActionEdit, ActorID: "u-1"})
	require.ErrorIs(t, err, workflow.ErrUnknownAction)
}

func TestRequestDeleteOnlyDrafts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM shopping_requests WHERE id = $1 AND requester_id = $2 AND status = $3`)).
		WithArgs("r-1", "u-1", models.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "r-1", "u-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestListScopesManager(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM shopping_requests WHERE status = ANY($1) AND (requester_id = $2 OR approver_id = $2 OR requester_id IN (SELECT id FROM profiles WHERE manager_id = $2)) ORDER BY created_at DESC LIMIT 20 OFFSET 0`)).
		WithArgs(sqlmock.AnyArg(), "m-1").
		WillReturnRows(requestRow("r-1", "SC20250001", models.StatusPendingApproval, "m-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM shopping_requests WHERE status = ANY($1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.RequestFilter{
		Status:     []models.RequestStatus{models.StatusPendingApproval},
		ViewerID:   "m-1",
		ViewerRole: models.RoleManager,
	})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestListUserSeesOwnOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM shopping_requests WHERE number LIKE $1 AND requester_id = $2 ORDER BY number ASC LIMIT 5 OFFSET 5`)).
		WithArgs("__2025%", "u-1").
		WillReturnRows(sqlmock.NewRows(requestRowColumns))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM shopping_requests`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.RequestFilter{
		Year: 2025, ViewerID: "u-1", ViewerRole: models.RoleUser,
		Page: 2, PageSize: 5, SortBy: "number", SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestSummary(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount FROM shopping_requests GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "amount"}).
			AddRow("approved", 2, "300.00").
			AddRow("draft", 1, "0"))

	summary, err := repo.Summary(context.Background(), models.RequestFilter{ViewerRole: models.RoleProcurement})
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, models.StatusApproved, summary[0].Status)
	assert.True(t, summary[0].Amount.Equal(decimal.NewFromInt(300)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestMaxIssued(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db, true)

	mock.ExpectQuery(`SELECT COALESCE\(MAX`).WithArgs("SC2025%").WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(17))

	value, err := repo.MaxIssued(context.Background(), "SC", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(17), value)
}
