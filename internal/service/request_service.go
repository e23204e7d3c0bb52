package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/realtime"
	"github.com/noah-isme/shopping-request-api/internal/repository"
	"github.com/noah-isme/shopping-request-api/internal/sequence"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
)

const (
	auditResourceRequest = "shopping_request"

	maxQuantityPlaces = 3
	maxPricePlaces    = 2
)

type requestStore interface {
	Create(ctx context.Context, req *models.ShoppingRequest) error
	GetByID(ctx context.Context, id string) (*models.ShoppingRequest, error)
	GetByNumber(ctx context.Context, number string) (*models.ShoppingRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ShoppingRequest, int, error)
	ReplaceContent(ctx context.Context, id, requesterID string, content models.RequestContent) error
	Transition(ctx context.Context, params repository.TransitionParams) (*models.ShoppingRequest, error)
	Delete(ctx context.Context, id, requesterID string) error
}

type numberGenerator interface {
	Next(ctx context.Context) (string, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type requestAuditTrail interface {
	auditLogger
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

type requestNotifier interface {
	Notify(ctx context.Context, event RequestEvent)
}

type eventPublisher interface {
	Publish(event realtime.Event)
}

// RequestEvent is a lifecycle change handed to notification delivery.
type RequestEvent struct {
	Action  workflow.Action
	Request models.ShoppingRequest
	ActorID string
}

// RequestConfig tunes request lifecycle behaviour.
type RequestConfig struct {
	Policy                  workflow.Policy
	RejectionPlaceholder    string
	CancellationPlaceholder string
}

// RequestOption wires optional collaborators.
type RequestOption func(*RequestService)

// WithRequestNotifier delivers lifecycle e-mails.
func WithRequestNotifier(n requestNotifier) RequestOption {
	return func(s *RequestService) { s.notifier = n }
}

// WithRequestPublisher pushes lifecycle events to realtime subscribers.
func WithRequestPublisher(p eventPublisher) RequestOption {
	return func(s *RequestService) { s.events = p }
}

// WithRequestCache invalidates cached dashboards on every change.
func WithRequestCache(c *CacheService) RequestOption {
	return func(s *RequestService) { s.cache = c }
}

// WithRequestMetrics records transition and numbering metrics.
func WithRequestMetrics(m *MetricsService) RequestOption {
	return func(s *RequestService) { s.metrics = m }
}

// WithRequestClock overrides the clock used for transition timestamps.
func WithRequestClock(now func() time.Time) RequestOption {
	return func(s *RequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// RequestService runs the shopping request lifecycle.
type RequestService struct {
	repo      requestStore
	numbers   numberGenerator
	profiles  profileLookup
	audit     requestAuditTrail
	notifier  requestNotifier
	events    eventPublisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RequestConfig
	now       func() time.Time
}

// NewRequestService constructs a RequestService.
func NewRequestService(repo requestStore, numbers numberGenerator, profiles profileLookup, audit requestAuditTrail, validate *validator.Validate, logger *zap.Logger, cfg RequestConfig, opts ...RequestOption) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.RejectionPlaceholder == "" {
		cfg.RejectionPlaceholder = "Rejected without reason"
	}
	if cfg.CancellationPlaceholder == "" {
		cfg.CancellationPlaceholder = "Cancelled without note"
	}
	s := &RequestService{
		repo:      repo,
		numbers:   numbers,
		profiles:  profiles,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new draft under a freshly issued request number.
func (s *RequestService) Create(ctx context.Context, input dto.RequestInput, actor workflow.Actor) (*models.ShoppingRequest, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	content, err := s.buildContent(ctx, input, actor)
	if err != nil {
		return nil, err
	}

	number, err := s.issueNumber(ctx)
	if err != nil {
		return nil, err
	}

	req := &models.ShoppingRequest{
		Number:              number,
		RequesterID:         actor.ID,
		RequestType:         content.RequestType,
		Status:              models.StatusDraft,
		TotalAmount:         content.TotalAmount,
		Justification:       content.Justification,
		DesiredDeliveryDate: content.DesiredDeliveryDate,
		PreferredSupplier:   content.PreferredSupplier,
		ClientName:          content.ClientName,
		ClientID:            content.ClientID,
		ApproverID:          content.ApproverID,
		Items:               content.Items,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateNumber) {
			s.logger.Error("request number collision", zap.String("number", number), zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrNumberConflict, err, fmt.Sprintf("request number %s already issued", number))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.afterChange(ctx, "request.created", models.AuditActionRequestCreate, actor.ID, nil, req)
	return req, nil
}

// Update replaces content and items of a draft or cancelled request; cancelled requests return to draft.
func (s *RequestService) Update(ctx context.Context, id string, input dto.RequestInput, actor workflow.Actor) (*models.ShoppingRequest, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.cfg.Policy.Check(actor, workflow.SubjectOf(current), workflow.ActionEdit); err != nil {
		s.metrics.RecordTransition(string(workflow.ActionEdit), outcomeFor(err))
		return nil, mapWorkflowError(err)
	}
	content, err := s.buildContent(ctx, input, actor)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceContent(ctx, id, actor.ID, content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.lostRace(ctx, current, workflow.ActionEdit)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	s.metrics.RecordTransition(string(workflow.ActionEdit), "applied")

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.afterChange(ctx, "request.updated", models.AuditActionRequestUpdate, actor.ID, current, updated)
	return updated, nil
}

// Submit sends a draft or cancelled request for approval.
func (s *RequestService) Submit(ctx context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error) {
	return s.transition(ctx, id, workflow.ActionSubmit, actor, nil)
}

// Approve records the decision of a manager or procurement officer.
func (s *RequestService) Approve(ctx context.Context, id string, actor workflow.Actor, comment *string) (*models.ShoppingRequest, error) {
	return s.transition(ctx, id, workflow.ActionApprove, actor, trimmedOrNil(comment))
}

// Reject closes a pending request. An empty reason is replaced with the configured placeholder.
func (s *RequestService) Reject(ctx context.Context, id string, actor workflow.Actor, reason *string) (*models.ShoppingRequest, error) {
	return s.transition(ctx, id, workflow.ActionReject, actor, orPlaceholder(reason, s.cfg.RejectionPlaceholder))
}

// Complete marks an approved request as fulfilled by procurement.
func (s *RequestService) Complete(ctx context.Context, id string, actor workflow.Actor, notes *string) (*models.ShoppingRequest, error) {
	return s.transition(ctx, id, workflow.ActionComplete, actor, trimmedOrNil(notes))
}

// Cancel returns a pending or approved request to the requester for editing.
func (s *RequestService) Cancel(ctx context.Context, id string, actor workflow.Actor, note *string) (*models.ShoppingRequest, error) {
	return s.transition(ctx, id, workflow.ActionCancel, actor, orPlaceholder(note, s.cfg.CancellationPlaceholder))
}

// Delete removes a draft owned by the actor.
func (s *RequestService) Delete(ctx context.Context, id string, actor workflow.Actor) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.cfg.Policy.Check(actor, workflow.SubjectOf(current), workflow.ActionDelete); err != nil {
		s.metrics.RecordTransition(string(workflow.ActionDelete), outcomeFor(err))
		return mapWorkflowError(err)
	}
	if err := s.repo.Delete(ctx, id, actor.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.lostRace(ctx, current, workflow.ActionDelete)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}
	s.metrics.RecordTransition(string(workflow.ActionDelete), "applied")
	s.afterChange(ctx, "request.deleted", models.AuditActionRequestDelete, actor.ID, current, nil)
	return nil
}

// Get returns a request the actor is allowed to see.
func (s *RequestService) Get(ctx context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureVisible(ctx, req, actor); err != nil {
		return nil, err
	}
	return req, nil
}

// GetByNumber returns a request by its human-readable number.
func (s *RequestService) GetByNumber(ctx context.Context, number string, actor workflow.Actor) (*models.ShoppingRequest, error) {
	if !sequence.Valid(number) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed request number")
	}
	req, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := s.ensureVisible(ctx, req, actor); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns the requests within the actor's scope.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor workflow.Actor) ([]models.ShoppingRequest, *models.Pagination, error) {
	filter, err := requestFilterFor(query, actor)
	if err != nil {
		return nil, nil, err
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, paginationFor(filter.Page, filter.PageSize, total), nil
}

// History returns the audit trail of a visible request.
func (s *RequestService) History(ctx context.Context, id string, actor workflow.Actor) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audit.ListByResource(ctx, auditResourceRequest, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}
	return logs, nil
}

func (s *RequestService) transition(ctx context.Context, id string, action workflow.Action, actor workflow.Actor, note *string) (*models.ShoppingRequest, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.cfg.Policy.Check(actor, workflow.SubjectOf(current), action); err != nil {
		s.metrics.RecordTransition(string(action), outcomeFor(err))
		s.logger.Info("transition refused",
			zap.String("request_id", id), zap.String("action", string(action)),
			zap.String("status", string(current.Status)), zap.String("user_id", actor.ID), zap.Error(err))
		return nil, mapWorkflowError(err)
	}

	updated, err := s.repo.Transition(ctx, repository.TransitionParams{
		ID:      id,
		Action:  action,
		ActorID: actor.ID,
		Note:    note,
		At:      s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.lostRace(ctx, current, action)
		}
		s.metrics.RecordTransition(string(action), "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s request", action))
	}
	s.metrics.RecordTransition(string(action), "applied")

	s.afterChange(ctx, "request."+pastTense(action), auditActionFor(action), actor.ID, current, updated)
	if s.notifier != nil {
		s.notifier.Notify(ctx, RequestEvent{Action: action, Request: *updated, ActorID: actor.ID})
	}
	return updated, nil
}

// lostRace explains a guarded write that matched no row: the request either moved on
// (or vanished) since it was read, or the storage rules refused the actor.
func (s *RequestService) lostRace(ctx context.Context, before *models.ShoppingRequest, action workflow.Action) error {
	latest, err := s.repo.GetByID(ctx, before.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordTransition(string(action), "conflict")
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	case err != nil:
		s.metrics.RecordTransition(string(action), "error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload request")
	case latest.Status != before.Status:
		s.metrics.RecordTransition(string(action), "conflict")
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("request moved from %s to %s before %s was applied", before.Status, latest.Status, action))
	default:
		s.metrics.RecordTransition(string(action), "denied")
		s.logger.Warn("storage guard refused transition allowed by policy",
			zap.String("request_id", before.ID), zap.String("action", string(action)))
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("not permitted to %s this request", action))
	}
}

func (s *RequestService) load(ctx context.Context, id string) (*models.ShoppingRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *RequestService) ensureVisible(ctx context.Context, req *models.ShoppingRequest, actor workflow.Actor) error {
	switch {
	case actor.ID == "":
		return appErrors.ErrUnauthorized
	case actor.Role == models.RoleProcurement || actor.Role == models.RoleAdmin:
		return nil
	case req.RequesterID == actor.ID:
		return nil
	case req.ApproverID != nil && *req.ApproverID == actor.ID:
		return nil
	case actor.Role == models.RoleManager && s.profiles != nil:
		requester, err := s.profiles.FindByID(ctx, req.RequesterID)
		if err == nil && requester.ManagerID != nil && *requester.ManagerID == actor.ID {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester")
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "request is not visible to you")
}

func (s *RequestService) issueNumber(ctx context.Context) (string, error) {
	start := time.Now()
	number, err := s.numbers.Next(ctx)
	year := s.now().UTC().Year()
	if parsed, perr := sequence.Parse(number); perr == nil {
		year = parsed.Year
	}
	s.metrics.RecordNumberIssued(year, err, time.Since(start))

	switch {
	case err == nil:
		return number, nil
	case errors.Is(err, sequence.ErrExhausted):
		return "", appErrors.WrapAs(appErrors.ErrSequenceExhausted, err, fmt.Sprintf("request numbers for %d are exhausted", year))
	case errors.Is(err, sequence.ErrStoreUnavailable):
		s.logger.Error("sequence store unavailable", zap.Error(err))
		return "", appErrors.WrapAs(appErrors.ErrServiceUnavailable, err, "request number store unavailable")
	default:
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue request number")
	}
}

// buildContent validates input, resolves the approver and computes totals.
func (s *RequestService) buildContent(ctx context.Context, input dto.RequestInput, actor workflow.Actor) (models.RequestContent, error) {
	if err := s.validator.Struct(input); err != nil {
		return models.RequestContent{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	items, total, err := BuildLineItems(input.Items)
	if err != nil {
		return models.RequestContent{}, err
	}
	approverID, err := s.resolveApprover(ctx, trimmedOrNil(input.ApproverID), actor)
	if err != nil {
		return models.RequestContent{}, err
	}
	return models.RequestContent{
		RequestType:         strings.TrimSpace(input.RequestType),
		Justification:       trimmedOrNil(input.Justification),
		DesiredDeliveryDate: input.DesiredDeliveryDate,
		PreferredSupplier:   trimmedOrNil(input.PreferredSupplier),
		ClientName:          trimmedOrNil(input.ClientName),
		ClientID:            trimmedOrNil(input.ClientID),
		ApproverID:          approverID,
		TotalAmount:         total,
		Items:               items,
	}, nil
}

// resolveApprover checks an explicit approver, falling back to the requester's manager.
func (s *RequestService) resolveApprover(ctx context.Context, approverID *string, actor workflow.Actor) (*string, error) {
	if s.profiles == nil {
		return approverID, nil
	}
	if approverID == nil {
		requester, err := s.profiles.FindByID(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester")
		}
		if requester.ManagerID == nil {
			return nil, nil
		}
		approverID = requester.ManagerID
	}
	if *approverID == actor.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requester cannot approve their own request")
	}

	approver, err := s.profiles.FindByID(ctx, *approverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approver profile does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approver")
	}
	if !approver.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approver profile is inactive")
	}
	if approver.Role != models.RoleManager && approver.Role != models.RoleProcurement {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approver must be a manager or procurement officer")
	}
	id := approver.ID
	return &id, nil
}

// BuildLineItems validates inputs and returns items with line totals and the request total.
// A missing unit price leaves the line total empty and counts as zero.
func BuildLineItems(inputs []dto.LineItemInput) ([]models.LineItem, decimal.Decimal, error) {
	items := make([]models.LineItem, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		position := i + 1
		if !in.Quantity.IsPositive() {
			return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: quantity must be greater than zero", position))
		}
		if !in.Quantity.Equal(in.Quantity.Round(maxQuantityPlaces)) {
			return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: quantity allows at most %d decimals", position, maxQuantityPlaces))
		}
		if !in.Unit.Valid() {
			return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: unknown unit %q", position, in.Unit))
		}

		item := models.LineItem{
			Position:    position,
			ItemCode:    strings.TrimSpace(in.ItemCode),
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			Unit:        in.Unit,
			UnitPrice:   in.UnitPrice,
			Supplier:    trimmedOrNil(in.Supplier),
			Notes:       trimmedOrNil(in.Notes),
		}
		if in.UnitPrice.Valid {
			price := in.UnitPrice.Decimal
			if price.IsNegative() {
				return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: unit price cannot be negative", position))
			}
			if !price.Equal(price.Round(maxPricePlaces)) {
				return nil, decimal.Zero, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: unit price allows at most %d decimals", position, maxPricePlaces))
			}
			line := in.Quantity.Mul(price)
			item.TotalPrice = decimal.NewNullDecimal(line)
			total = total.Add(line)
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *RequestService) afterChange(ctx context.Context, event, auditAction, actorID string, before, after *models.ShoppingRequest) {
	subject := after
	if subject == nil {
		subject = before
	}
	s.record(ctx, actorID, auditAction, subject.ID, before, after)

	if err := s.cache.InvalidateDashboards(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}

	if s.events != nil {
		e := realtime.Event{
			Event:       event,
			RequestID:   subject.ID,
			Number:      subject.Number,
			Status:      subject.Status,
			ActorID:     actorID,
			RequesterID: subject.RequesterID,
			At:          s.now().UTC(),
		}
		if subject.ApproverID != nil {
			e.ApproverID = *subject.ApproverID
		}
		if s.profiles != nil {
			if requester, err := s.profiles.FindByID(ctx, subject.RequesterID); err == nil && requester.ManagerID != nil {
				e.RequesterManagerID = *requester.ManagerID
			}
		}
		s.events.Publish(e)
	}
}

func (s *RequestService) record(ctx context.Context, actorID, action, requestID string, before, after *models.ShoppingRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: auditResourceRequest, ResourceID: &requestID}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record request audit log", zap.String("action", action), zap.Error(err))
	}
}

func requestFilterFor(query dto.RequestQuery, actor workflow.Actor) (models.RequestFilter, error) {
	if actor.ID == "" {
		return models.RequestFilter{}, appErrors.ErrUnauthorized
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return models.RequestFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if query.Year < 0 || query.Year > 9999 {
		return models.RequestFilter{}, appErrors.Clone(appErrors.ErrValidation, "year out of range")
	}
	return models.RequestFilter{
		Status:      query.Status,
		RequesterID: strings.TrimSpace(query.RequesterID),
		ApproverID:  strings.TrimSpace(query.ApproverID),
		RequestType: strings.TrimSpace(query.RequestType),
		Search:      strings.TrimSpace(query.Search),
		Year:        query.Year,
		ViewerID:    actor.ID,
		ViewerRole:  actor.Role,
		Page:        query.Page,
		PageSize:    query.PageSize,
		SortBy:      query.SortBy,
		SortOrder:   query.SortOrder,
	}, nil
}

func mapWorkflowError(err error) error {
	message := strings.TrimPrefix(err.Error(), "workflow: ")
	switch {
	case errors.Is(err, workflow.ErrNotAuthorized):
		return appErrors.WrapAs(appErrors.ErrForbidden, err, message)
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrUnknownStatus):
		return appErrors.WrapAs(appErrors.ErrInvalidTransition, err, message)
	case errors.Is(err, workflow.ErrNotReady), errors.Is(err, workflow.ErrUnknownAction):
		return appErrors.WrapAs(appErrors.ErrValidation, err, message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, workflow.ErrNotAuthorized):
		return "denied"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "conflict"
	default:
		return "invalid"
	}
}

func auditActionFor(action workflow.Action) string {
	switch action {
	case workflow.ActionSubmit:
		return models.AuditActionRequestSubmit
	case workflow.ActionApprove:
		return models.AuditActionRequestApprove
	case workflow.ActionReject:
		return models.AuditActionRequestReject
	case workflow.ActionComplete:
		return models.AuditActionRequestComplete
	case workflow.ActionCancel:
		return models.AuditActionRequestCancel
	case workflow.ActionEdit:
		return models.AuditActionRequestUpdate
	case workflow.ActionDelete:
		return models.AuditActionRequestDelete
	}
	return strings.ToUpper("REQUEST_" + string(action))
}

func pastTense(action workflow.Action) string {
	switch action {
	case workflow.ActionSubmit:
		return "submitted"
	case workflow.ActionApprove:
		return "approved"
	case workflow.ActionReject:
		return "rejected"
	case workflow.ActionComplete:
		return "completed"
	case workflow.ActionCancel:
		return "cancelled"
	case workflow.ActionEdit:
		return "updated"
	case workflow.ActionDelete:
		return "deleted"
	}
	return string(action)
}

func orPlaceholder(value *string, placeholder string) *string {
	if trimmed := trimmedOrNil(value); trimmed != nil {
		return trimmed
	}
	return &placeholder
}
